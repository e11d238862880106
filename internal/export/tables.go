package export

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"gtfsreport/internal/connections"
	"gtfsreport/internal/dataset"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/station"
	"gtfsreport/internal/stats"
	"gtfsreport/internal/story"
)

// WriteRouteStoryStops writes one row per story stop, stories in id order.
func WriteRouteStoryStops(path string, stories []gtfs.RouteStory) error {
	header := []string{"route_story_id", "arrival_offset", "departure_offset", "stop_id", "pickup_type", "drop_off_type"}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, rs := range stories {
			id := strconv.Itoa(rs.ID)
			for _, s := range rs.Stops {
				if err := w.Write([]string{
					id,
					strconv.Itoa(s.ArrivalOffset),
					strconv.Itoa(s.DepartureOffset),
					s.StopID,
					s.PickupType,
					s.DropOffType,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// WriteFullTrips writes trips.txt order rows for the trips that have a story.
func WriteFullTrips(path string, trips []*gtfs.Trip, assignments map[string]story.Assignment) error {
	header := []string{"route_id", "service_id", "trip_id", "direction_id", "shape_id", "start_time", "route_story"}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, t := range trips {
			a, ok := assignments[t.ID]
			if !ok {
				continue
			}
			if err := w.Write([]string{
				t.RouteID,
				t.ServiceID,
				t.ID,
				t.DirectionID,
				t.ShapeID,
				gtfs.FormatDaySeconds(a.StartTime),
				strconv.Itoa(a.StoryID),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteFullStops writes stops.txt rows extended with the nearest station, its distance in
// whole meters and the short names of the routes serving the stop. The station columns are
// blank for stops missing from nearest.
func WriteFullStops(path string, stops []*gtfs.Stop, nearest map[string]station.Nearest, routes map[string][]*gtfs.Route) error {
	header := []string{
		"stop_id", "stop_code", "stop_name", "stop_desc", "stop_lat", "stop_lon",
		"location_type", "parent_station", "zone_id",
		"nearest_train_station", "train_station_distance", "routes_here",
	}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, s := range stops {
			var stationID, distance string
			if n, ok := nearest[s.ID]; ok {
				stationID, distance = n.StationID, strconv.Itoa(n.Meters())
			}
			if err := w.Write([]string{
				s.ID,
				s.Code,
				s.Name,
				s.Desc,
				formatFloat(s.Lat),
				formatFloat(s.Lon),
				s.LocationType,
				s.ParentStation,
				s.ZoneID,
				stationID,
				distance,
				RoutesHere(routes[s.ID]),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// RoutesHere joins route short names with spaces, using the route id for unnamed routes.
func RoutesHere(routes []*gtfs.Route) string {
	names := make([]string, len(routes))
	for i, r := range routes {
		names[i] = r.ShortName
		if names[i] == "" {
			names[i] = r.ID
		}
	}
	return strings.Join(names, " ")
}

// WriteStationHourly writes one row per station with the daily total and hourly averages.
func WriteStationHourly(path string, ds *dataset.Dataset, rows []stats.Hourly) error {
	header := []string{"station_stop_id", "station_name", "daily_total"}
	for h := range stats.Hours {
		header = append(header, fmt.Sprintf("h%d", h))
	}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, h := range rows {
			rec := make([]string, 0, len(header))
			rec = append(rec, h.StationID, ds.StopName(h.StationID), formatFloat(h.Total()))
			for _, v := range h.Hours {
				rec = append(rec, formatFloat(v))
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteTrainVisits writes train visits with the surrounding bus calls. Times are seconds
// since midnight, repeated in HH:MM:SS form.
func WriteTrainVisits(path string, ds *dataset.Dataset, visits []connections.TrainVisit) error {
	header := []string{
		"day", "arrival", "departure", "train_route_id", "train_station_id",
		"train_station_name", "train_route_name",
		"bus_route_id", "bus_route_name", "bus_route_long_name",
		"bus_route_description", "agency_id",
		"last_bus_arrival", "first_bus_departure",
		"formatted_train_time", "formatted_last_arrival", "formatted_first_departure",
	}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, v := range visits {
			bus := ds.Schedule.Routes[v.BusRouteID]
			if bus == nil {
				bus = &gtfs.Route{ID: v.BusRouteID}
			}
			var lastArrival, firstDeparture, lastFormatted, firstFormatted string
			if v.LastBusBefore != nil {
				lastArrival = strconv.Itoa(v.LastBusBefore.Arrival)
				lastFormatted = gtfs.FormatDaySeconds(v.LastBusBefore.Arrival)
			}
			if v.FirstBusAfter != nil {
				firstDeparture = strconv.Itoa(v.FirstBusAfter.Departure)
				firstFormatted = gtfs.FormatDaySeconds(v.FirstBusAfter.Departure)
			}
			if err := w.Write([]string{
				strings.ToLower(v.Train.Day.String()),
				strconv.Itoa(v.Train.Arrival),
				strconv.Itoa(v.Train.Departure),
				v.Train.Route.ID,
				v.Train.StopID,
				ds.StopName(v.Train.StopID),
				v.Train.Route.LongName,
				bus.ID,
				bus.ShortName,
				bus.LongName,
				bus.Desc,
				bus.AgencyID,
				lastArrival,
				firstDeparture,
				gtfs.FormatDaySeconds(v.Train.Arrival),
				lastFormatted,
				firstFormatted,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
