// Package compare measures how far apart the stop sequences of two routes are.
package compare

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/agnivade/levenshtein"

	"gtfsreport/internal/dataset"
	"gtfsreport/internal/gtfs"
)

var (
	ErrNotSingleStory = errors.New("route does not have exactly one route story")
	ErrTooManyStops   = errors.New("too many distinct stops to compare")
)

type Result struct {
	RouteA, RouteB string
	StoryA, StoryB int
	StopsA, StopsB int
	Distance       int // stop insertions, deletions and substitutions
}

// Routes compares two routes that each run a single route story. The distance is the
// Levenshtein distance between the stop id sequences, one symbol per stop id.
func Routes(ds *dataset.Dataset, routeA, routeB string) (*Result, error) {
	a, err := singleStory(ds, routeA)
	if err != nil {
		return nil, err
	}
	b, err := singleStory(ds, routeB)
	if err != nil {
		return nil, err
	}

	symbols := make(map[string]rune)
	sa, err := encode(a, symbols)
	if err != nil {
		return nil, err
	}
	sb, err := encode(b, symbols)
	if err != nil {
		return nil, err
	}
	return &Result{
		RouteA:   routeA,
		RouteB:   routeB,
		StoryA:   a.ID,
		StoryB:   b.ID,
		StopsA:   len(a.Stops),
		StopsB:   len(b.Stops),
		Distance: levenshtein.ComputeDistance(sa, sb),
	}, nil
}

// StoriesOf returns the distinct story ids used by the trips of a route, in first-seen order.
func StoriesOf(ds *dataset.Dataset, routeID string) []int {
	seen := make(map[int]struct{})
	var ids []int
	for _, t := range ds.Schedule.Trips {
		if t.Route == nil || t.Route.ID != routeID {
			continue
		}
		a, ok := ds.Assignments[t.ID]
		if !ok {
			continue
		}
		if _, dup := seen[a.StoryID]; !dup {
			seen[a.StoryID] = struct{}{}
			ids = append(ids, a.StoryID)
		}
	}
	return ids
}

func singleStory(ds *dataset.Dataset, routeID string) (gtfs.RouteStory, error) {
	if _, ok := ds.Schedule.Routes[routeID]; !ok {
		return gtfs.RouteStory{}, fmt.Errorf("unknown route %q", routeID)
	}
	ids := StoriesOf(ds, routeID)
	if len(ids) != 1 {
		return gtfs.RouteStory{}, fmt.Errorf("route %s has %d route stories: %w", routeID, len(ids), ErrNotSingleStory)
	}
	return ds.Stories[ids[0]], nil
}

// encode maps each stop id to its own rune so the sequences can be compared as strings.
func encode(rs gtfs.RouteStory, symbols map[string]rune) (string, error) {
	out := make([]rune, len(rs.Stops))
	for i, s := range rs.Stops {
		r, ok := symbols[s.StopID]
		if !ok {
			var err error
			if r, err = symbol(len(symbols)); err != nil {
				return "", err
			}
			symbols[s.StopID] = r
		}
		out[i] = r
	}
	return string(out), nil
}

// symbol returns the n-th valid rune, skipping the surrogate range.
func symbol(n int) (rune, error) {
	r := rune(n)
	if r >= surrogateMin {
		r += surrogateMax - surrogateMin + 1
	}
	if n < 0 || r > unicode.MaxRune {
		return 0, fmt.Errorf("%d stops: %w", n+1, ErrTooManyStops)
	}
	return r, nil
}

const (
	surrogateMin = 0xD800
	surrogateMax = 0xDFFF
)
