package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"gtfsreport/internal/compare"
	"gtfsreport/internal/connections"
	"gtfsreport/internal/dataset"
	"gtfsreport/internal/db"
	"gtfsreport/internal/export"
	"gtfsreport/internal/feed"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/logging"
	"gtfsreport/internal/station"
	"gtfsreport/internal/stats"
	"gtfsreport/internal/story"
)

const (
	StationsDir       = "stations"
	stationFileWorker = 4
)

// Stories builds the route stories and writes route_story_stops.txt and full_trips.txt.
func (r *Runner) Stories(ctx context.Context) (*Report, error) {
	return r.stage(ctx, "stories", func(ctx context.Context, rep *Report) error {
		f, s, err := r.openSchedule(ctx)
		if err != nil {
			return err
		}
		defer logging.SafeClose(f, logging.FromContext(ctx), "close feed")

		res, err := r.buildStories(ctx, f, s)
		if err != nil {
			return err
		}
		return r.writeStories(s, res, rep)
	})
}

// Stops resolves the nearest train station of every stop from the stories already written
// to the output directory, and writes full_stops.txt.
func (r *Runner) Stops(ctx context.Context) (*Report, error) {
	return r.stage(ctx, "stops", func(ctx context.Context, rep *Report) error {
		f, s, err := r.openSchedule(ctx)
		if err != nil {
			return err
		}
		defer logging.SafeClose(f, logging.FromContext(ctx), "close feed")

		res, err := dataset.LoadStories(r.cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("load route stories: %w", err)
		}
		rep.Trips = res.Stats.Trips
		rep.Stories = res.Stats.Stories
		rep.StoryStops = res.Stats.StoryStops
		rep.data = &db.RunData{Stories: res.Stories, Trips: fullTrips(s, res)}
		return r.writeStops(ctx, s, res, rep)
	})
}

// All builds the stories and the stops tables in one pass over the feed.
func (r *Runner) All(ctx context.Context) (*Report, error) {
	return r.stage(ctx, "all", func(ctx context.Context, rep *Report) error {
		f, s, err := r.openSchedule(ctx)
		if err != nil {
			return err
		}
		defer logging.SafeClose(f, logging.FromContext(ctx), "close feed")

		res, err := r.buildStories(ctx, f, s)
		if err != nil {
			return err
		}
		if err := r.writeStories(s, res, rep); err != nil {
			return err
		}
		return r.writeStops(ctx, s, res, rep)
	})
}

// Stats writes the hourly train arrival and bus station visit tables.
func (r *Runner) Stats(ctx context.Context) (*Report, error) {
	return r.stage(ctx, "stats", func(ctx context.Context, rep *Report) error {
		ds, err := r.loadDataset(ctx)
		if err != nil {
			return err
		}
		start, end := r.cfg.StatsRange(ds.Schedule.Services)
		days := r.cfg.StatsDays
		logging.FromContext(ctx).Info("station statistics",
			"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"), "days", stats.DaysLabel(days))

		train := stats.HourlyAverage(stats.TrainStationVisits(ds, start, end, r.cfg.StationRouteType), days)
		bus := stats.HourlyAverage(stats.BusStationVisits(ds, start, end, r.cfg.BusRouteType, r.cfg.StationRadius), days)
		rep.Stations = len(ds.Stations())

		tables := []struct {
			name string
			rows []stats.Hourly
		}{
			{stats.TrainArrivalsFile(days, start, end), train},
			{stats.BusVisitsFile(days, start, end), bus},
		}
		for _, t := range tables {
			if err := export.WriteStationHourly(r.output(t.name), ds, t.rows); err != nil {
				return err
			}
			r.wrote(rep, t.name, t.name, len(t.rows))
		}
		return nil
	})
}

// Connections writes, for every train call on the configured day, the bus connections at
// the stops near the station.
func (r *Runner) Connections(ctx context.Context) (*Report, error) {
	return r.stage(ctx, "connections", func(ctx context.Context, rep *Report) error {
		ds, err := r.loadDataset(ctx)
		if err != nil {
			return err
		}
		start, end := r.cfg.StatsRange(ds.Schedule.Services)
		stops := ds.StopsWithin(r.cfg.ConnectionRadius)
		visits := connections.VisitsAtStops(ds, stops, start, end)
		tv := connections.TrainToBus(ds, visits, connections.Options{
			Day:         r.cfg.ConnectionsDay,
			MinTransfer: r.cfg.MinTransferSec,
			RailType:    r.cfg.StationRouteType,
			BusType:     r.cfg.BusRouteType,
		})
		logging.FromContext(ctx).Info("train to bus connections",
			"stops", len(stops), "visits", len(visits), "rows", len(tv), "day", r.cfg.ConnectionsDay)

		if err := export.WriteTrainVisits(r.output(gtfs.TrainVisitsFile), ds, tv); err != nil {
			return err
		}
		r.wrote(rep, gtfs.TrainVisitsFile, gtfs.TrainVisitsFile, len(tv))

		stations := connections.Stations(tv)
		rep.Stations = len(stations)
		if !r.cfg.ConnectionsPerStation {
			return nil
		}
		return r.writeStationVisits(ctx, ds, tv, stations, rep)
	})
}

// writeStationVisits writes one train visits file per station.
func (r *Runner) writeStationVisits(ctx context.Context, ds *dataset.Dataset, tv []connections.TrainVisit, stations []string, rep *Report) error {
	names := make([]string, len(stations))
	counts := make([]int, len(stations))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(stationFileWorker)
	for i, id := range stations {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows := connections.FilterByStation(tv, id)
			names[i] = filepath.Join(StationsDir, StationVisitsFile(id))
			counts[i] = len(rows)
			return export.WriteTrainVisits(r.output(names[i]), ds, rows)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range stations {
		r.wrote(rep, names[i], StationsDir, counts[i])
	}
	return nil
}

// StationVisitsFile names the per-station train visits file.
func StationVisitsFile(stationID string) string {
	return "train_visits_" + safeName(stationID) + ".txt"
}

// safeName keeps letters, digits, '-', '_' and '.'; anything else becomes '_'.
func safeName(s string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
	if name == "" || strings.Trim(name, ".") == "" {
		return "_"
	}
	return name
}

// Compare prints the stop sequence distance between two single-story routes.
func (r *Runner) Compare(ctx context.Context, routeA, routeB string) (*Report, error) {
	return r.stage(ctx, "compare", func(ctx context.Context, rep *Report) error {
		ds, err := r.loadDataset(ctx)
		if err != nil {
			return err
		}
		res, err := compare.Routes(ds, routeA, routeB)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(r.Out, "%s (story %d, %d stops) vs %s (story %d, %d stops): distance %d\n",
			res.RouteA, res.StoryA, res.StopsA, res.RouteB, res.StoryB, res.StopsB, res.Distance)
		return err
	})
}

// Check parses the whole feed with an independent GTFS parser and prints the counts.
func (r *Runner) Check(ctx context.Context) (*Report, error) {
	return r.stage(ctx, "check", func(ctx context.Context, rep *Report) error {
		c, err := feed.Check(ctx, r.cfg.FeedPath, logging.FromContext(ctx))
		if err != nil {
			return err
		}
		rep.Trips = c.Trips
		fmt.Fprintf(r.Out, "agencies=%d routes=%d stops=%d services=%d trips=%d stop_times=%d shapes=%d warnings=%d\n",
			c.Agencies, c.Routes, c.Stops, c.Services, c.Trips, c.StopTimes, c.Shapes, c.WarningCount)
		if c.UnknownRoutes+c.UnknownServices+c.SkippedStopTimes > 0 {
			fmt.Fprintf(r.Out, "not parsed: unknown_routes=%d unknown_services=%d stop_times=%d\n",
				c.UnknownRoutes, c.UnknownServices, c.SkippedStopTimes)
		}
		for _, w := range c.Warnings {
			fmt.Fprintf(r.Out, "warning: %s\n", w)
		}
		if c.WarningCount > len(c.Warnings) {
			fmt.Fprintf(r.Out, "... %d more warnings\n", c.WarningCount-len(c.Warnings))
		}
		return nil
	})
}

// Runs prints the most recent saved runs.
func (r *Runner) Runs(ctx context.Context, limit int) error {
	if r.store == nil {
		return errors.New("runs: DATABASE_URL is not set")
	}
	runs, err := r.store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Fprintf(r.Out, "%d\t%s\t%s\t%s\ttrips=%d stories=%d story_stops=%d rejected=%d stations=%d\n",
			run.ID, run.StartedAt.Format("2006-01-02T15:04:05Z"), run.Duration, run.Feed,
			run.Trips, run.Stories, run.StoryStops, run.Rejected, run.Stations)
	}
	return nil
}

func (r *Runner) buildStories(ctx context.Context, f *feed.Feed, s *feed.Schedule) (*story.Result, error) {
	logger := logging.FromContext(ctx)
	grouped, rows, err := f.StopTimes(ctx, logger)
	if err != nil {
		return nil, err
	}
	r.metrics.StopTimeRows.Add(float64(rows))

	b := story.NewBuilder()
	b.OnReject = func(tripID string, err error) {
		r.metrics.RejectedTrips.WithLabelValues(rejectReason(err)).Inc()
		logger.Debug("trip rejected", "trip_id", tripID, "error", err)
	}
	b.AddAll(s.Trips, grouped)
	res := b.Result()

	st := res.Stats
	r.metrics.Trips.Add(float64(st.Trips))
	r.metrics.Stories.Add(float64(st.Stories))
	r.metrics.StoryStops.Add(float64(st.StoryStops))
	r.metrics.UnknownReferences.WithLabelValues("stop_times_trip").Add(float64(st.OrphanStopTimeTrips))
	if st.Rejected() > 0 {
		logger.Warn("trips without a route story",
			"bad_sequence", st.BadSequences,
			"missing_stop_times", st.MissingStopTimes,
			"missing_times", st.MissingTimes,
			"malformed_rows", st.MalformedRows)
	}
	if st.OrphanStopTimeTrips > 0 {
		logger.Warn("stop_times rows for unknown trips", "trips", st.OrphanStopTimeTrips)
	}
	logger.Info("built route stories",
		"trips", st.Trips, "assigned", st.Assigned, "stories", st.Stories, "story_stops", st.StoryStops)
	return res, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, story.ErrBadSequence):
		return "bad_sequence"
	case errors.Is(err, story.ErrNoStopTimes):
		return "missing_stop_times"
	case errors.Is(err, story.ErrMissingTimes):
		return "missing_times"
	case errors.Is(err, story.ErrMalformedRow):
		return "malformed_row"
	}
	return "other"
}

func (r *Runner) writeStories(s *feed.Schedule, res *story.Result, rep *Report) error {
	if err := export.WriteRouteStoryStops(r.output(gtfs.RouteStoryStopsFile), res.Stories); err != nil {
		return err
	}
	r.wrote(rep, gtfs.RouteStoryStopsFile, gtfs.RouteStoryStopsFile, res.Stats.StoryStops)

	if err := export.WriteFullTrips(r.output(gtfs.FullTripsFile), s.Trips, res.Assignments); err != nil {
		return err
	}
	r.wrote(rep, gtfs.FullTripsFile, gtfs.FullTripsFile, res.Stats.Assigned)

	rep.Trips = res.Stats.Trips
	rep.Stories = res.Stats.Stories
	rep.StoryStops = res.Stats.StoryStops
	rep.Rejected = res.Stats.Rejected()
	rep.data = &db.RunData{Stories: res.Stories, Trips: fullTrips(s, res)}
	return nil
}

func (r *Runner) writeStops(ctx context.Context, s *feed.Schedule, res *story.Result, rep *Report) error {
	logger := logging.FromContext(ctx)

	stations := station.FindStations(s.Trips, res, r.cfg.StationRouteType)
	nearest, err := station.Resolve(s.Stops, stations)
	switch {
	case errors.Is(err, station.ErrNoStations):
		logger.Warn("no train stations in feed, nearest station columns left blank",
			"route_type", r.cfg.StationRouteType)
		nearest = nil
	case err != nil:
		return err
	}
	rep.Stations = len(stations)
	r.metrics.Stations.Set(float64(len(stations)))
	logger.Info("resolved nearest stations", "stations", len(stations), "stops", len(nearest))

	routes := station.RoutesByStop(s.Trips, res)
	if err := export.WriteFullStops(r.output(gtfs.FullStopsFile), s.Stops, nearest, routes); err != nil {
		return err
	}
	r.wrote(rep, gtfs.FullStopsFile, gtfs.FullStopsFile, len(s.Stops))

	if rep.data != nil {
		rep.data.Stops = stopStations(s.Stops, nearest)
	}
	return nil
}

func (r *Runner) loadDataset(ctx context.Context) (*dataset.Dataset, error) {
	f, s, err := r.openSchedule(ctx)
	if err != nil {
		return nil, err
	}
	logging.SafeClose(f, logging.FromContext(ctx), "close feed")

	ds, err := dataset.Load(s, r.cfg.OutputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load derived tables (run the all command first): %w", err)
		}
		return nil, fmt.Errorf("load derived tables: %w", err)
	}
	return ds, nil
}

// wrote records a written file; label is the metrics label the rows are counted under.
func (r *Runner) wrote(rep *Report, name, label string, rows int) {
	rep.Files = append(rep.Files, name)
	r.metrics.RowsWritten.WithLabelValues(label).Add(float64(rows))
}

// fullTrips lists the assigned trips in trips.txt order.
func fullTrips(s *feed.Schedule, res *story.Result) []gtfs.FullTrip {
	out := make([]gtfs.FullTrip, 0, len(res.Assignments))
	for _, t := range s.Trips {
		if a, ok := res.Assignments[t.ID]; ok {
			out = append(out, gtfs.FullTrip{TripID: t.ID, StoryID: a.StoryID, StartTime: a.StartTime})
		}
	}
	return out
}

func stopStations(stops []*gtfs.Stop, nearest map[string]station.Nearest) []gtfs.StopStation {
	out := make([]gtfs.StopStation, 0, len(stops))
	for _, st := range stops {
		ss := gtfs.StopStation{StopID: st.ID}
		if n, ok := nearest[st.ID]; ok {
			ss.StationID = n.StationID
			ss.Distance = n.Meters()
		}
		out = append(out, ss)
	}
	return out
}
