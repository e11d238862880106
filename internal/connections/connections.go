// Package connections pairs train arrivals with the bus departures and arrivals around them
// at the same station.
package connections

import (
	"cmp"
	"slices"
	"time"

	"gtfsreport/internal/dataset"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/station"
)

// Visit is one scheduled call of a trip at a stop on one weekday.
type Visit struct {
	Day       time.Weekday
	Arrival   int
	Departure int
	Route     *gtfs.Route
	StopID    string
}

// VisitsAtStops lists every call at the given stops by trips valid in [start, end], once per
// weekday of the trip's service. Trips with an unknown route or service are skipped.
func VisitsAtStops(ds *dataset.Dataset, stopIDs station.Set, start, end time.Time) []Visit {
	// story id -> stops of the story that are selected
	selected := make(map[int][]gtfs.RouteStoryStop)
	for id, rs := range ds.Stories {
		for _, s := range rs.Stops {
			if stopIDs.Has(s.StopID) {
				selected[id] = append(selected[id], s)
			}
		}
	}

	var visits []Visit
	for _, t := range ds.Schedule.Trips {
		if t.Route == nil || t.Service == nil {
			continue
		}
		a, ok := ds.Assignments[t.ID]
		if !ok || len(selected[a.StoryID]) == 0 {
			continue
		}
		if !t.Service.Overlaps(start, end) {
			continue
		}
		for _, day := range t.Service.Weekdays() {
			for _, s := range selected[a.StoryID] {
				visits = append(visits, Visit{
					Day:       day,
					Arrival:   a.StartTime + s.ArrivalOffset,
					Departure: a.StartTime + s.DepartureOffset,
					Route:     t.Route,
					StopID:    s.StopID,
				})
			}
		}
	}
	return visits
}

type Options struct {
	Day         time.Weekday
	MinTransfer int // seconds
	RailType    int
	BusType     int
}

// TrainVisit is a train call with, for one bus route near the station, the last bus arriving
// before it and the first bus departing after it. Either may be nil.
type TrainVisit struct {
	Train         Visit
	BusRouteID    string
	LastBusBefore *Visit
	FirstBusAfter *Visit
}

// TrainToBus matches every train visit on opts.Day with each bus route that calls, the same
// day, at a stop whose nearest station is the train's stop. Bus routes are taken in id order.
func TrainToBus(ds *dataset.Dataset, visits []Visit, opts Options) []TrainVisit {
	// station -> bus route id -> visits sorted by arrival
	byStation := make(map[string]map[string][]Visit)
	for _, v := range visits {
		if v.Route.Type != opts.BusType || v.Day != opts.Day {
			continue
		}
		n, ok := ds.Nearest[v.StopID]
		if !ok {
			continue
		}
		routes := byStation[n.StationID]
		if routes == nil {
			routes = make(map[string][]Visit)
			byStation[n.StationID] = routes
		}
		routes[v.Route.ID] = append(routes[v.Route.ID], v)
	}
	for _, routes := range byStation {
		for _, vs := range routes {
			slices.SortStableFunc(vs, func(a, b Visit) int { return cmp.Compare(a.Arrival, b.Arrival) })
		}
	}

	var out []TrainVisit
	for _, train := range visits {
		if train.Route.Type != opts.RailType || train.Day != opts.Day {
			continue
		}
		routes := byStation[train.StopID]
		routeIDs := make([]string, 0, len(routes))
		for id := range routes {
			routeIDs = append(routeIDs, id)
		}
		slices.Sort(routeIDs)

		for _, id := range routeIDs {
			out = append(out, TrainVisit{
				Train:         train,
				BusRouteID:    id,
				LastBusBefore: arrivalBefore(train, routes[id], opts.MinTransfer),
				FirstBusAfter: departureAfter(train, routes[id], opts.MinTransfer),
			})
		}
	}
	return out
}

// arrivalBefore returns the last bus, in arrival order, arriving more than gap seconds
// before the train.
func arrivalBefore(train Visit, buses []Visit, gap int) *Visit {
	var last *Visit
	for i := range buses {
		if buses[i].Arrival < train.Arrival-gap {
			last = &buses[i]
		}
	}
	return last
}

// departureAfter returns the first bus, in arrival order, departing more than gap seconds
// after the train arrives.
func departureAfter(train Visit, buses []Visit, gap int) *Visit {
	for i := range buses {
		if buses[i].Departure > train.Arrival+gap {
			return &buses[i]
		}
	}
	return nil
}

// FilterByStation keeps the visits of trains calling at stationID.
func FilterByStation(visits []TrainVisit, stationID string) []TrainVisit {
	var out []TrainVisit
	for _, v := range visits {
		if v.Train.StopID == stationID {
			out = append(out, v)
		}
	}
	return out
}

// Stations returns the station ids trains call at in visits, in station.CompareIDs order.
func Stations(visits []TrainVisit) []string {
	set := make(station.Set)
	for _, v := range visits {
		set[v.Train.StopID] = struct{}{}
	}
	return set.Sorted()
}
