// Package station finds train stations in a feed and the nearest one to every stop.
package station

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"strconv"

	"gtfsreport/internal/geo"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/story"
)

var ErrNoStations = errors.New("no train stations found")

// Nearest is the closest station to a stop and the great-circle distance to it in meters.
type Nearest struct {
	StationID string
	Distance  float64
}

// Meters returns the distance truncated toward zero.
func (n Nearest) Meters() int {
	return int(n.Distance)
}

// Set is a set of stop ids.
type Set map[string]struct{}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in CompareIDs order.
func (s Set) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareIDs)
	return ids
}

// FindStations returns the stops visited by the stories of trips whose route has the given
// type. Trips without a story or with an unknown route are ignored.
func FindStations(trips []*gtfs.Trip, res *story.Result, routeType int) Set {
	storyIDs := make(map[int]struct{})
	for _, t := range trips {
		if t.Route == nil || t.Route.Type != routeType {
			continue
		}
		if a, ok := res.Assignments[t.ID]; ok {
			storyIDs[a.StoryID] = struct{}{}
		}
	}

	stations := make(Set)
	for id := range storyIDs {
		rs, _ := res.Story(id)
		for _, s := range rs.Stops {
			stations[s.StopID] = struct{}{}
		}
	}
	return stations
}

type located struct {
	id    string
	point geo.Point
}

// Resolve maps every stop to its nearest station by brute force. Stations map to themselves
// at distance 0. When two stations are equally near, the one first in CompareIDs order wins.
// Station ids missing from stops have no position and are skipped.
func Resolve(stops []*gtfs.Stop, stations Set) (map[string]Nearest, error) {
	byID := make(map[string]*gtfs.Stop, len(stops))
	for _, s := range stops {
		byID[s.ID] = s
	}

	points := make([]located, 0, len(stations))
	for _, id := range stations.Sorted() {
		if s, ok := byID[id]; ok {
			points = append(points, located{id: id, point: geo.Point{Lat: s.Lat, Lon: s.Lon}})
		}
	}
	if len(points) == 0 {
		return nil, ErrNoStations
	}

	nearest := make(map[string]Nearest, len(stops))
	for _, s := range stops {
		if stations.Has(s.ID) {
			nearest[s.ID] = Nearest{StationID: s.ID}
			continue
		}
		p := geo.Point{Lat: s.Lat, Lon: s.Lon}
		best := Nearest{Distance: math.Inf(1)}
		for _, st := range points {
			if d := geo.Distance(p, st.point); d < best.Distance {
				best = Nearest{StationID: st.id, Distance: d}
			}
		}
		nearest[s.ID] = best
	}
	return nearest, nil
}

// CompareIDs orders integer ids numerically before all other ids, which sort as strings.
func CompareIDs(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

// RoutesByStop returns, for every stop, the routes whose assigned trips visit it, ordered by
// short name and then id.
func RoutesByStop(trips []*gtfs.Trip, res *story.Result) map[string][]*gtfs.Route {
	seen := make(map[string]map[string]*gtfs.Route)
	for _, t := range trips {
		if t.Route == nil {
			continue
		}
		a, ok := res.Assignments[t.ID]
		if !ok {
			continue
		}
		rs, _ := res.Story(a.StoryID)
		for _, s := range rs.Stops {
			m := seen[s.StopID]
			if m == nil {
				m = make(map[string]*gtfs.Route)
				seen[s.StopID] = m
			}
			m[t.Route.ID] = t.Route
		}
	}

	out := make(map[string][]*gtfs.Route, len(seen))
	for stopID, m := range seen {
		routes := make([]*gtfs.Route, 0, len(m))
		for _, r := range m {
			routes = append(routes, r)
		}
		slices.SortFunc(routes, func(x, y *gtfs.Route) int {
			if c := cmp.Compare(x.ShortName, y.ShortName); c != 0 {
				return c
			}
			return cmp.Compare(x.ID, y.ID)
		})
		out[stopID] = routes
	}
	return out
}
