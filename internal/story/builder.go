// Package story collapses trips with identical stop patterns into shared route stories.
//
// A route story is the ordered list of stop visits of a trip with times rewritten as offsets
// from the trip's first arrival. Trips that produce the same list share one story id. Ids are
// dense integers starting at 1, assigned in the order stories are first seen, so they depend
// on the order trips are added.
package story

import (
	"cmp"
	"errors"
	"slices"
	"strconv"
	"strings"

	"gtfsreport/internal/gtfs"
)

var (
	ErrNoStopTimes  = errors.New("trip has no stop_times rows")
	ErrBadSequence  = errors.New("stop_sequence does not run 1..n")
	ErrMissingTimes = errors.New("stop_times row without arrival or departure time")
	ErrMalformedRow = errors.New("stop_times row with an unparsable value")
)

// Assignment links a trip to its story. StartTime is the first arrival in seconds since
// midnight of the service day.
type Assignment struct {
	StoryID   int
	StartTime int
}

type Stats struct {
	Trips      int // trips offered to the builder
	Assigned   int
	Stories    int
	StoryStops int

	BadSequences     int
	MissingStopTimes int
	MissingTimes     int
	MalformedRows    int // trips with at least one unparsable stop_times row

	// stop_times trip ids that do not appear in trips.txt
	OrphanStopTimeTrips int
}

// Rejected is the number of trips left without a story.
func (s Stats) Rejected() int {
	return s.BadSequences + s.MissingStopTimes + s.MissingTimes + s.MalformedRows
}

type Result struct {
	Stories     []gtfs.RouteStory // Stories[i].ID == i+1
	Assignments map[string]Assignment
	Stats       Stats
}

func (r *Result) Story(id int) (gtfs.RouteStory, bool) {
	if id < 1 || id > len(r.Stories) {
		return gtfs.RouteStory{}, false
	}
	return r.Stories[id-1], true
}

// Builder holds the story table of one run. It is not safe for concurrent use.
type Builder struct {
	// OnReject, when set, is called for every trip that gets no story.
	OnReject func(tripID string, err error)

	ids         map[string]int
	stories     []gtfs.RouteStory
	assignments map[string]Assignment
	stats       Stats
}

func NewBuilder() *Builder {
	return &Builder{
		ids:         make(map[string]int),
		assignments: make(map[string]Assignment),
	}
}

// Add builds the story of one trip and assigns it an id. rows may be in any order and are
// not modified. Add must be called once per trip id.
func (b *Builder) Add(tripID string, rows []gtfs.StopTimeRecord) (Assignment, error) {
	b.stats.Trips++

	stops, start, err := b.normalize(rows)
	if err != nil {
		if b.OnReject != nil {
			b.OnReject(tripID, err)
		}
		return Assignment{}, err
	}

	key := storyKey(stops)
	id, ok := b.ids[key]
	if !ok {
		id = len(b.stories) + 1
		b.ids[key] = id
		b.stories = append(b.stories, gtfs.RouteStory{ID: id, Stops: stops})
		b.stats.StoryStops += len(stops)
	}

	a := Assignment{StoryID: id, StartTime: start}
	b.assignments[tripID] = a
	b.stats.Assigned++
	return a, nil
}

func (b *Builder) normalize(rows []gtfs.StopTimeRecord) ([]gtfs.RouteStoryStop, int, error) {
	if len(rows) == 0 {
		b.stats.MissingStopTimes++
		return nil, 0, ErrNoStopTimes
	}
	for _, r := range rows {
		if r.Malformed != "" {
			b.stats.MalformedRows++
			return nil, 0, ErrMalformedRow
		}
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(x, y gtfs.StopTimeRecord) int {
		return cmp.Compare(x.StopSequence, y.StopSequence)
	})
	// Only the ends are checked: a duplicate and a gap in the middle cancel out.
	if sorted[0].StopSequence != 1 || sorted[len(sorted)-1].StopSequence != len(sorted) {
		b.stats.BadSequences++
		return nil, 0, ErrBadSequence
	}
	for _, r := range sorted {
		if !r.Timed {
			b.stats.MissingTimes++
			return nil, 0, ErrMissingTimes
		}
	}

	start := sorted[0].ArrivalTime
	stops := make([]gtfs.RouteStoryStop, len(sorted))
	for i, r := range sorted {
		stops[i] = gtfs.RouteStoryStop{
			ArrivalOffset:   r.ArrivalTime - start,
			DepartureOffset: r.DepartureTime - start,
			StopID:          r.StopID,
			PickupType:      r.PickupType,
			DropOffType:     r.DropOffType,
		}
	}
	return stops, start, nil
}

// AddAll adds trips in order, taking their rows from grouped, and counts the grouped trip ids
// no trip refers to.
func (b *Builder) AddAll(trips []*gtfs.Trip, grouped gtfs.StopTimesByTrip) {
	known := make(map[string]struct{}, len(trips))
	for _, t := range trips {
		known[t.ID] = struct{}{}
		_, _ = b.Add(t.ID, grouped[t.ID])
	}
	for tripID := range grouped {
		if _, ok := known[tripID]; !ok {
			b.stats.OrphanStopTimeTrips++
		}
	}
}

// Result returns the stories and assignments built so far. The builder must not be used
// afterwards.
func (b *Builder) Result() *Result {
	stats := b.stats
	stats.Stories = len(b.stories)
	return &Result{
		Stories:     b.stories,
		Assignments: b.assignments,
		Stats:       stats,
	}
}

// Build runs a fresh Builder over trips in trips.txt order.
func Build(trips []*gtfs.Trip, grouped gtfs.StopTimesByTrip) *Result {
	b := NewBuilder()
	b.AddAll(trips, grouped)
	return b.Result()
}

// GroupByTrip groups rows by trip id, keeping their relative order.
func GroupByTrip(rows []gtfs.StopTimeRecord) gtfs.StopTimesByTrip {
	grouped := make(gtfs.StopTimesByTrip)
	for _, r := range rows {
		grouped.Add(r)
	}
	return grouped
}

// storyKey encodes the full stop tuple. Strings are length-prefixed so that no two distinct
// tuples share a key.
func storyKey(stops []gtfs.RouteStoryStop) string {
	var sb strings.Builder
	buf := make([]byte, 0, 64)
	for _, s := range stops {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(s.ArrivalOffset), 10)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, int64(s.DepartureOffset), 10)
		for _, field := range [...]string{s.StopID, s.PickupType, s.DropOffType} {
			buf = append(buf, ',')
			buf = strconv.AppendInt(buf, int64(len(field)), 10)
			buf = append(buf, ':')
			buf = append(buf, field...)
		}
		buf = append(buf, ';')
		sb.Write(buf)
	}
	return sb.String()
}
