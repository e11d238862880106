// Package stats counts scheduled stop visits per train station by weekday and hour.
package stats

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"gtfsreport/internal/dataset"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/station"
)

// Hours covers the service day plus the overflow past midnight that night trips use.
const Hours = 26

type Slot struct {
	Day  time.Weekday
	Hour int
}

// Counter holds visit counts per station id and slot.
type Counter map[string]map[Slot]int

func (c Counter) add(stationID string, day time.Weekday, hour int) {
	m := c[stationID]
	if m == nil {
		m = make(map[Slot]int)
		c[stationID] = m
	}
	m[Slot{Day: day, Hour: hour}]++
}

// TrainStationVisits counts, for rail trips valid in [start, end], every stop visit against
// the station the stop resolves to, once per weekday the trip's service runs.
func TrainStationVisits(ds *dataset.Dataset, start, end time.Time, railType int) Counter {
	c := make(Counter)
	for _, t := range ds.Trips(railType, start, end) {
		rs, a, _ := ds.Story(t.ID)
		for _, s := range rs.Stops {
			n, ok := ds.Nearest[s.StopID]
			if !ok {
				continue
			}
			hour := (a.StartTime + s.ArrivalOffset) / 3600
			for _, day := range t.Service.Weekdays() {
				c.add(n.StationID, day, hour)
			}
		}
	}
	return c
}

// BusStationVisits counts bus trips valid in [start, end] passing within radius meters of a
// station. Each trip counts once per station at the story stop closest to it, or twice when
// a loop route serves that stop in both directions.
func BusStationVisits(ds *dataset.Dataset, start, end time.Time, busType int, radius float64) Counter {
	c := make(Counter)
	for _, t := range ds.Trips(busType, start, end) {
		rs, a, _ := ds.Story(t.ID)
		for _, v := range StationStops(ds, rs, radius) {
			hour := (a.StartTime + v.Stop.ArrivalOffset) / 3600
			for _, day := range t.Service.Weekdays() {
				c.add(v.StationID, day, hour)
			}
		}
	}
	return c
}

// StationStop is a story stop chosen to represent a station.
type StationStop struct {
	StationID string
	Stop      gtfs.RouteStoryStop
}

// StationStops picks, for each station the story passes within radius meters of, the story
// stops at the stop nearest to that station. Stations are returned in station.CompareIDs
// order, stops in story order.
func StationStops(ds *dataset.Dataset, rs gtfs.RouteStory, radius float64) []StationStop {
	closest := make(map[string]string) // station -> stop id
	for _, s := range rs.Stops {
		n, ok := ds.Nearest[s.StopID]
		if !ok || n.Distance > radius {
			continue
		}
		cur, seen := closest[n.StationID]
		if !seen || n.Distance < ds.Nearest[cur].Distance {
			closest[n.StationID] = s.StopID
		}
	}

	stations := make([]string, 0, len(closest))
	for id := range closest {
		stations = append(stations, id)
	}
	slices.SortFunc(stations, station.CompareIDs)

	var out []StationStop
	for _, st := range stations {
		for _, s := range rs.Stops {
			if s.StopID == closest[st] {
				out = append(out, StationStop{StationID: st, Stop: s})
			}
		}
	}
	return out
}

// Hourly is the average number of visits per hour of the service day at one station.
type Hourly struct {
	StationID string
	Hours     [Hours]float64
}

func (h Hourly) Total() float64 {
	var sum float64
	for _, v := range h.Hours {
		sum += v
	}
	return sum
}

// HourlyAverage averages each hour over days. Hours past the end of the table are dropped.
// Stations are sorted with station.CompareIDs.
func HourlyAverage(c Counter, days []time.Weekday) []Hourly {
	if len(days) == 0 {
		return nil
	}
	out := make([]Hourly, 0, len(c))
	for stationID, slots := range c {
		h := Hourly{StationID: stationID}
		for hour := range Hours {
			sum := 0
			for _, d := range days {
				sum += slots[Slot{Day: d, Hour: hour}]
			}
			h.Hours[hour] = float64(sum) / float64(len(days))
		}
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b Hourly) int { return station.CompareIDs(a.StationID, b.StationID) })
	return out
}

// DaysLabel names a weekday selection for file names, e.g. "sun_mon_tue".
func DaysLabel(days []time.Weekday) string {
	sorted := slices.Clone(days)
	slices.SortFunc(sorted, func(a, b time.Weekday) int { return cmp.Compare(a, b) })
	names := make([]string, len(sorted))
	for i, d := range sorted {
		names[i] = strings.ToLower(d.String()[:3])
	}
	return strings.Join(names, "_")
}

func TrainArrivalsFile(days []time.Weekday, start, end time.Time) string {
	return fmt.Sprintf("hourly_train_arrivals_%s_%s_%s.txt", DaysLabel(days), start.Format(time.DateOnly), end.Format(time.DateOnly))
}

func BusVisitsFile(days []time.Weekday, start, end time.Time) string {
	return fmt.Sprintf("hourly_bus_station_visits_%s_%s_%s.txt", DaysLabel(days), start.Format(time.DateOnly), end.Format(time.DateOnly))
}
