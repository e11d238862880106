// Package dataset joins a feed schedule with the derived route stories and nearest stations,
// either from the current run or reloaded from the derived tables on disk.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gtfsreport/internal/feed"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/station"
	"gtfsreport/internal/story"
)

type Dataset struct {
	Schedule    *feed.Schedule
	Stories     map[int]gtfs.RouteStory
	Assignments map[string]story.Assignment
	Nearest     map[string]station.Nearest // empty when the feed has no stations
}

// New wraps the results of an in-process run. nearest may be nil.
func New(s *feed.Schedule, res *story.Result, nearest map[string]station.Nearest) *Dataset {
	stories := make(map[int]gtfs.RouteStory, len(res.Stories))
	for _, rs := range res.Stories {
		stories[rs.ID] = rs
	}
	if nearest == nil {
		nearest = map[string]station.Nearest{}
	}
	return &Dataset{
		Schedule:    s,
		Stories:     stories,
		Assignments: res.Assignments,
		Nearest:     nearest,
	}
}

// LoadStories reads route_story_stops.txt and full_trips.txt from dir. Story ids must run
// 1..n in file order, as the story table is written.
func LoadStories(dir string) (*story.Result, error) {
	f, err := os.Open(filepath.Join(dir, gtfs.RouteStoryStopsFile))
	if err != nil {
		return nil, err
	}
	stories, err := feed.ReadRouteStoryStops(f)
	if err != nil {
		return nil, err
	}
	res := &story.Result{Stories: stories, Assignments: make(map[string]story.Assignment)}
	seen := make(map[int]struct{}, len(stories))
	for i, rs := range stories {
		if _, dup := seen[rs.ID]; dup {
			return nil, fmt.Errorf("%s: route story %d is not contiguous", gtfs.RouteStoryStopsFile, rs.ID)
		}
		seen[rs.ID] = struct{}{}
		if rs.ID != i+1 {
			return nil, fmt.Errorf("%s: found route story %d where %d was expected", gtfs.RouteStoryStopsFile, rs.ID, i+1)
		}
		res.Stats.StoryStops += len(rs.Stops)
	}
	res.Stats.Stories = len(stories)

	if f, err = os.Open(filepath.Join(dir, gtfs.FullTripsFile)); err != nil {
		return nil, err
	}
	trips, err := feed.ReadFullTrips(f)
	if err != nil {
		return nil, err
	}
	for _, ft := range trips {
		if _, ok := res.Story(ft.StoryID); !ok {
			return nil, fmt.Errorf("%s: trip %s refers to unknown route story %d", gtfs.FullTripsFile, ft.TripID, ft.StoryID)
		}
		res.Assignments[ft.TripID] = story.Assignment{StoryID: ft.StoryID, StartTime: ft.StartTime}
	}
	res.Stats.Trips = len(trips)
	res.Stats.Assigned = len(trips)
	return res, nil
}

// Load reads route_story_stops.txt, full_trips.txt and full_stops.txt from dir.
func Load(s *feed.Schedule, dir string) (*Dataset, error) {
	res, err := LoadStories(dir)
	if err != nil {
		return nil, err
	}
	ds := New(s, res, nil)

	f, err := os.Open(filepath.Join(dir, gtfs.FullStopsFile))
	if err != nil {
		return nil, err
	}
	stops, err := feed.ReadFullStops(f)
	if err != nil {
		return nil, err
	}
	for _, ss := range stops {
		if ss.StationID == "" {
			continue
		}
		ds.Nearest[ss.StopID] = station.Nearest{StationID: ss.StationID, Distance: float64(ss.Distance)}
	}
	return ds, nil
}

// Story returns the story and assignment of a trip.
func (d *Dataset) Story(tripID string) (gtfs.RouteStory, story.Assignment, bool) {
	a, ok := d.Assignments[tripID]
	if !ok {
		return gtfs.RouteStory{}, story.Assignment{}, false
	}
	rs, ok := d.Stories[a.StoryID]
	return rs, a, ok
}

// Trips returns trips, in trips.txt order, that have a story, a known route of the given
// type, and a service valid at some point in [start, end].
func (d *Dataset) Trips(routeType int, start, end time.Time) []*gtfs.Trip {
	var out []*gtfs.Trip
	for _, t := range d.Schedule.Trips {
		if t.Route == nil || t.Service == nil || t.Route.Type != routeType {
			continue
		}
		if !t.Service.Overlaps(start, end) {
			continue
		}
		if _, ok := d.Assignments[t.ID]; !ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Stations returns the ids stops resolve to.
func (d *Dataset) Stations() station.Set {
	set := make(station.Set)
	for _, n := range d.Nearest {
		set[n.StationID] = struct{}{}
	}
	return set
}

// StopsWithin returns the stops at most radius meters from their nearest station.
func (d *Dataset) StopsWithin(radius float64) station.Set {
	set := make(station.Set)
	for id, n := range d.Nearest {
		if n.Distance <= radius {
			set[id] = struct{}{}
		}
	}
	return set
}

// StopName returns the stop name, or the id when the stop is unknown.
func (d *Dataset) StopName(id string) string {
	if s, ok := d.Schedule.StopsByID[id]; ok {
		return s.Name
	}
	return id
}
