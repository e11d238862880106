package feed

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jamespfennell/gtfs/constants"
	"github.com/jamespfennell/gtfs/csv"

	"gtfsreport/internal/gtfs"
)

const (
	AgencyFile    = "agency.txt"
	RoutesFile    = "routes.txt"
	CalendarFile  = "calendar.txt"
	TripsFile     = "trips.txt"
	StopTimesFile = "stop_times.txt"
	StopsFile     = "stops.txt"
)

// table wraps a csv.File with the row counter used in error messages.
type table struct {
	name string
	f    *csv.File
	row  int
}

func openTable(name string, r io.ReadCloser) (*table, error) {
	f, err := csv.New(constants.StaticFile(name), r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &table{name: name, f: f}, nil
}

func (t *table) checkColumns() error {
	if missing := t.f.MissingRequiredColumns(); len(missing) > 0 {
		return &MissingColumnsError{File: t.name, Columns: missing}
	}
	return nil
}

func (t *table) next() bool {
	if !t.f.NextRow() {
		return false
	}
	t.row++
	return true
}

// checkRow rejects rows where a required column is present in the header but empty.
// It must run after the row's columns have been read.
func (t *table) checkRow() error {
	if missing := t.f.MissingRowKeys(); len(missing) > 0 {
		return &InvalidValueError{File: t.name, Column: strings.Join(missing, ","), Row: t.row, Reason: errEmpty}
	}
	return nil
}

func (t *table) invalid(column, value string, reason error) error {
	return &InvalidValueError{File: t.name, Column: column, Row: t.row, Value: value, Reason: reason}
}

func (t *table) close(err error) error {
	if cerr := t.f.Close(); cerr != nil && err == nil {
		return fmt.Errorf("%s: %w", t.name, cerr)
	}
	return err
}

var errEmpty = errors.New("empty value")

func ReadAgencies(r io.ReadCloser) (agencies []gtfs.Agency, err error) {
	t, err := openTable(AgencyFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	idColumn := t.f.OptionalColumn("agency_id")
	nameColumn := t.f.RequiredColumn("agency_name")
	urlColumn := t.f.OptionalColumn("agency_url")
	timezoneColumn := t.f.OptionalColumn("agency_timezone")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		a := gtfs.Agency{
			ID:       idColumn.Read(),
			Name:     nameColumn.Read(),
			URL:      urlColumn.Read(),
			Timezone: timezoneColumn.Read(),
		}
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		agencies = append(agencies, a)
	}
	return agencies, nil
}

func ReadRoutes(r io.ReadCloser) (routes []gtfs.Route, err error) {
	t, err := openTable(RoutesFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	idColumn := t.f.RequiredColumn("route_id")
	typeColumn := t.f.RequiredColumn("route_type")
	agencyIDColumn := t.f.OptionalColumn("agency_id")
	shortNameColumn := t.f.OptionalColumn("route_short_name")
	longNameColumn := t.f.OptionalColumn("route_long_name")
	descColumn := t.f.OptionalColumn("route_desc")
	colorColumn := t.f.OptionalColumn("route_color")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		route := gtfs.Route{
			ID:        idColumn.Read(),
			AgencyID:  agencyIDColumn.Read(),
			ShortName: shortNameColumn.Read(),
			LongName:  longNameColumn.Read(),
			Desc:      descColumn.Read(),
			Color:     colorColumn.Read(),
		}
		rawType := typeColumn.Read()
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		if route.Type, err = strconv.Atoi(strings.TrimSpace(rawType)); err != nil {
			return nil, t.invalid("route_type", rawType, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func ReadCalendar(r io.ReadCloser) (services []gtfs.Service, err error) {
	t, err := openTable(CalendarFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	idColumn := t.f.RequiredColumn("service_id")
	var dayColumns [7]csv.RequiredColumn
	for d, name := range gtfs.CalendarColumns {
		dayColumns[d] = t.f.RequiredColumn(name)
	}
	startColumn := t.f.RequiredColumn("start_date")
	endColumn := t.f.RequiredColumn("end_date")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		s := gtfs.Service{ID: idColumn.Read()}
		for d, col := range dayColumns {
			s.Days[d] = strings.TrimSpace(col.Read()) == "1"
		}
		rawStart, rawEnd := startColumn.Read(), endColumn.Read()
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		if s.StartDate, err = gtfs.ParseDate(rawStart); err != nil {
			return nil, t.invalid("start_date", rawStart, err)
		}
		if s.EndDate, err = gtfs.ParseDate(rawEnd); err != nil {
			return nil, t.invalid("end_date", rawEnd, err)
		}
		services = append(services, s)
	}
	return services, nil
}

// ReadTrips returns trips in file order with unresolved route and service references.
func ReadTrips(r io.ReadCloser) (trips []gtfs.Trip, err error) {
	t, err := openTable(TripsFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	routeIDColumn := t.f.RequiredColumn("route_id")
	serviceIDColumn := t.f.RequiredColumn("service_id")
	tripIDColumn := t.f.RequiredColumn("trip_id")
	directionIDColumn := t.f.OptionalColumn("direction_id")
	shapeIDColumn := t.f.OptionalColumn("shape_id")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		trip := gtfs.Trip{
			RouteID:     routeIDColumn.Read(),
			ServiceID:   serviceIDColumn.Read(),
			ID:          tripIDColumn.Read(),
			DirectionID: directionIDColumn.Read(),
			ShapeID:     shapeIDColumn.Read(),
		}
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// ReadStopTimes streams stop_times.txt rows to fn and returns the number of rows read.
// A row with neither arrival nor departure time is passed on with Timed unset; a row
// with only one of them copies it to the other. A row with an empty or unparsable value is
// passed on with Malformed set instead of failing the read.
func ReadStopTimes(r io.ReadCloser, fn func(gtfs.StopTimeRecord) error) (rows int, err error) {
	t, err := openTable(StopTimesFile, r)
	if err != nil {
		return 0, err
	}
	defer func() { err = t.close(err) }()

	tripIDColumn := t.f.RequiredColumn("trip_id")
	sequenceColumn := t.f.RequiredColumn("stop_sequence")
	stopIDColumn := t.f.RequiredColumn("stop_id")
	arrivalColumn := t.f.RequiredColumn("arrival_time")
	departureColumn := t.f.RequiredColumn("departure_time")
	pickupColumn := t.f.OptionalColumn("pickup_type")
	dropOffColumn := t.f.OptionalColumn("drop_off_type")
	if err := t.checkColumns(); err != nil {
		return 0, err
	}

	for t.next() {
		rec := gtfs.StopTimeRecord{
			TripID:      tripIDColumn.Read(),
			StopID:      stopIDColumn.Read(),
			PickupType:  pickupColumn.Read(),
			DropOffType: dropOffColumn.Read(),
		}
		rec.Malformed = parseStopTime(&rec, sequenceColumn.Read(), arrivalColumn.Read(), departureColumn.Read())

		if err := fn(rec); err != nil {
			return t.row, err
		}
	}
	return t.row, nil
}

// parseStopTime fills the parsed fields of rec and returns the first column that could not
// be parsed, or "".
func parseStopTime(rec *gtfs.StopTimeRecord, sequence, arrival, departure string) string {
	switch {
	case rec.TripID == "":
		return "trip_id"
	case rec.StopID == "":
		return "stop_id"
	}
	var err error
	if rec.StopSequence, err = strconv.Atoi(strings.TrimSpace(sequence)); err != nil {
		return "stop_sequence"
	}

	arrival, departure = strings.TrimSpace(arrival), strings.TrimSpace(departure)
	if arrival == "" {
		arrival = departure
	}
	if departure == "" {
		departure = arrival
	}
	if arrival == "" {
		return ""
	}
	if rec.ArrivalTime, err = gtfs.ParseDaySeconds(arrival); err != nil {
		return "arrival_time"
	}
	if rec.DepartureTime, err = gtfs.ParseDaySeconds(departure); err != nil {
		return "departure_time"
	}
	rec.Timed = true
	return ""
}

func ReadStops(r io.ReadCloser) (stops []gtfs.Stop, err error) {
	t, err := openTable(StopsFile, r)
	if err != nil {
		return nil, err
	}
	defer func() { err = t.close(err) }()

	idColumn := t.f.RequiredColumn("stop_id")
	latColumn := t.f.RequiredColumn("stop_lat")
	lonColumn := t.f.RequiredColumn("stop_lon")
	codeColumn := t.f.OptionalColumn("stop_code")
	nameColumn := t.f.OptionalColumn("stop_name")
	descColumn := t.f.OptionalColumn("stop_desc")
	locationTypeColumn := t.f.OptionalColumn("location_type")
	parentColumn := t.f.OptionalColumn("parent_station")
	zoneColumn := t.f.OptionalColumn("zone_id")
	if err := t.checkColumns(); err != nil {
		return nil, err
	}

	for t.next() {
		s := gtfs.Stop{
			ID:            idColumn.Read(),
			Code:          codeColumn.Read(),
			Name:          nameColumn.Read(),
			Desc:          descColumn.Read(),
			LocationType:  locationTypeColumn.Read(),
			ParentStation: parentColumn.Read(),
			ZoneID:        zoneColumn.Read(),
		}
		rawLat, rawLon := latColumn.Read(), lonColumn.Read()
		if err := t.checkRow(); err != nil {
			return nil, err
		}
		if s.Lat, err = strconv.ParseFloat(strings.TrimSpace(rawLat), 64); err != nil {
			return nil, t.invalid("stop_lat", rawLat, err)
		}
		if s.Lon, err = strconv.ParseFloat(strings.TrimSpace(rawLon), 64); err != nil {
			return nil, t.invalid("stop_lon", rawLon, err)
		}
		stops = append(stops, s)
	}
	return stops, nil
}
