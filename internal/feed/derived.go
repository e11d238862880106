package feed

import (
	"io"
	"strconv"
	"strings"

	"gtfsreport/internal/gtfs"
)

// ReadRouteStoryStops reads route_story_stops.txt. Rows of one story must be adjacent and
// in visiting order, which is how they are written.
func ReadRouteStoryStops(r io.ReadCloser) (stories []gtfs.RouteStory, err error) {
	t, err := openTable(gtfs.RouteStoryStopsFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	idColumn := t.f.RequiredColumn("route_story_id")
	arrivalColumn := t.f.RequiredColumn("arrival_offset")
	departureColumn := t.f.RequiredColumn("departure_offset")
	stopIDColumn := t.f.RequiredColumn("stop_id")
	pickupColumn := t.f.OptionalColumn("pickup_type")
	dropOffColumn := t.f.OptionalColumn("drop_off_type")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		rawID, rawArrival, rawDeparture := idColumn.Read(), arrivalColumn.Read(), departureColumn.Read()
		s := gtfs.RouteStoryStop{
			StopID:      stopIDColumn.Read(),
			PickupType:  pickupColumn.Read(),
			DropOffType: dropOffColumn.Read(),
		}
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(strings.TrimSpace(rawID))
		if err != nil {
			return nil, t.invalid("route_story_id", rawID, err)
		}
		if s.ArrivalOffset, err = strconv.Atoi(strings.TrimSpace(rawArrival)); err != nil {
			return nil, t.invalid("arrival_offset", rawArrival, err)
		}
		if s.DepartureOffset, err = strconv.Atoi(strings.TrimSpace(rawDeparture)); err != nil {
			return nil, t.invalid("departure_offset", rawDeparture, err)
		}

		if n := len(stories); n > 0 && stories[n-1].ID == id {
			stories[n-1].Stops = append(stories[n-1].Stops, s)
			continue
		}
		stories = append(stories, gtfs.RouteStory{ID: id, Stops: []gtfs.RouteStoryStop{s}})
	}
	return stories, nil
}

// ReadFullTrips reads the story columns of full_trips.txt. start_time is HH:MM:SS.
func ReadFullTrips(r io.ReadCloser) (trips []gtfs.FullTrip, err error) {
	t, err := openTable(gtfs.FullTripsFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	tripIDColumn := t.f.RequiredColumn("trip_id")
	startColumn := t.f.RequiredColumn("start_time")
	storyColumn := t.f.RequiredColumn("route_story")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		ft := gtfs.FullTrip{TripID: tripIDColumn.Read()}
		rawStart, rawStory := startColumn.Read(), storyColumn.Read()
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		if ft.StartTime, err = gtfs.ParseDaySeconds(strings.TrimSpace(rawStart)); err != nil {
			return nil, t.invalid("start_time", rawStart, err)
		}
		if ft.StoryID, err = strconv.Atoi(strings.TrimSpace(rawStory)); err != nil {
			return nil, t.invalid("route_story", rawStory, err)
		}
		trips = append(trips, ft)
	}
	return trips, nil
}

// ReadFullStops reads the nearest station columns of full_stops.txt. Rows with a blank
// station are returned with an empty StationID.
func ReadFullStops(r io.ReadCloser) (stops []gtfs.StopStation, err error) {
	t, err := openTable(gtfs.FullStopsFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	stopIDColumn := t.f.RequiredColumn("stop_id")
	stationColumn := t.f.OptionalColumn("nearest_train_station")
	distanceColumn := t.f.OptionalColumn("train_station_distance")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		ss := gtfs.StopStation{
			StopID:    stopIDColumn.Read(),
			StationID: strings.TrimSpace(stationColumn.Read()),
		}
		rawDistance := strings.TrimSpace(distanceColumn.Read())
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		if ss.StationID != "" {
			if ss.Distance, err = strconv.Atoi(rawDistance); err != nil {
				return nil, t.invalid("train_station_distance", rawDistance, err)
			}
		}
		stops = append(stops, ss)
	}
	return stops, nil
}
