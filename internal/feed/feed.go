package feed

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gtfsreport/internal/gtfs"
)

const progressEvery = 500000

// Feed is a GTFS feed opened from a zip archive or an unpacked directory.
type Feed struct {
	Name string
	Path string

	fsys   fs.FS
	closer io.Closer
}

func Open(path string) (*Feed, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stat.IsDir() {
		return &Feed{Name: name, Path: path, fsys: os.DirFS(path)}, nil
	}

	arch, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	return &Feed{Name: name, Path: path, fsys: arch, closer: arch}, nil
}

// FromFS wraps an already opened file system, e.g. an fstest.MapFS in tests.
func FromFS(name string, fsys fs.FS) *Feed {
	return &Feed{Name: name, fsys: fsys}
}

func (f *Feed) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

func (f *Feed) open(name string) (io.ReadCloser, error) {
	file, err := f.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", f.Name, err)
	}
	return file, nil
}

// Schedule holds every table except stop_times, with trip references resolved.
type Schedule struct {
	Agencies  []gtfs.Agency
	Routes    map[string]*gtfs.Route
	Services  map[string]*gtfs.Service
	Trips     []*gtfs.Trip // trips.txt order
	TripsByID map[string]*gtfs.Trip
	Stops     []*gtfs.Stop // stops.txt order
	StopsByID map[string]*gtfs.Stop

	UnknownRoutes   int
	UnknownServices int
}

// LoadSchedule reads agency, routes, calendar, trips and stops. Trips pointing at an
// unknown route or service are logged and kept with a nil reference.
func (f *Feed) LoadSchedule(ctx context.Context, logger *slog.Logger) (*Schedule, error) {
	s := &Schedule{
		Routes:    make(map[string]*gtfs.Route),
		Services:  make(map[string]*gtfs.Service),
		TripsByID: make(map[string]*gtfs.Trip),
		StopsByID: make(map[string]*gtfs.Stop),
	}

	r, err := f.open(AgencyFile)
	if err != nil {
		return nil, err
	}
	if s.Agencies, err = ReadAgencies(r); err != nil {
		return nil, err
	}

	if r, err = f.open(RoutesFile); err != nil {
		return nil, err
	}
	routes, err := ReadRoutes(r)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		s.Routes[routes[i].ID] = &routes[i]
	}

	if r, err = f.open(CalendarFile); err != nil {
		return nil, err
	}
	services, err := ReadCalendar(r)
	if err != nil {
		return nil, err
	}
	for i := range services {
		s.Services[services[i].ID] = &services[i]
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r, err = f.open(TripsFile); err != nil {
		return nil, err
	}
	trips, err := ReadTrips(r)
	if err != nil {
		return nil, err
	}
	s.Trips = make([]*gtfs.Trip, 0, len(trips))
	for i := range trips {
		t := &trips[i]
		if t.Route = s.Routes[t.RouteID]; t.Route == nil {
			s.UnknownRoutes++
			logger.Error("unknown route_id for trip", "trip_id", t.ID, "route_id", t.RouteID)
		}
		if t.Service = s.Services[t.ServiceID]; t.Service == nil {
			s.UnknownServices++
			logger.Error("unknown service_id for trip", "trip_id", t.ID, "service_id", t.ServiceID)
		}
		s.Trips = append(s.Trips, t)
		s.TripsByID[t.ID] = t
	}

	if r, err = f.open(StopsFile); err != nil {
		return nil, err
	}
	stops, err := ReadStops(r)
	if err != nil {
		return nil, err
	}
	s.Stops = make([]*gtfs.Stop, 0, len(stops))
	for i := range stops {
		s.Stops = append(s.Stops, &stops[i])
		s.StopsByID[stops[i].ID] = &stops[i]
	}

	logger.Info("loaded schedule",
		"feed", f.Name,
		"agencies", len(s.Agencies),
		"routes", len(s.Routes),
		"services", len(s.Services),
		"trips", len(s.Trips),
		"stops", len(s.Stops),
		"unknown_routes", s.UnknownRoutes,
		"unknown_services", s.UnknownServices)
	return s, nil
}

// StopTimes reads stop_times.txt grouped by trip id.
func (f *Feed) StopTimes(ctx context.Context, logger *slog.Logger) (gtfs.StopTimesByTrip, int, error) {
	r, err := f.open(StopTimesFile)
	if err != nil {
		return nil, 0, err
	}

	logger.Info("reading stop_times", "feed", f.Name)
	grouped := make(gtfs.StopTimesByTrip)
	n, malformed := 0, 0
	rows, err := ReadStopTimes(r, func(rec gtfs.StopTimeRecord) error {
		grouped.Add(rec)
		n++
		if rec.Malformed != "" {
			malformed++
			logger.Debug("malformed stop_times row", "row", n, "trip_id", rec.TripID, "column", rec.Malformed)
		}
		if n%progressEvery == 0 {
			logger.Debug("stop_times progress", "rows", n)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, rows, err
	}
	if malformed > 0 {
		logger.Warn("stop_times rows with unparsable values, their trips get no story", "rows", malformed)
	}
	logger.Info("read stop_times", "rows", rows, "trips", len(grouped))
	return grouped, rows, nil
}
