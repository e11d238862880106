package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gtfsreport/internal/gtfs"
)

// Store keeps the results of each run: the route stories, the trip assignments and the
// nearest station of every stop, keyed by run id.
type Store struct {
	DB     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{DB: db, driver: driver}
}

// Run is one row of the runs table.
type Run struct {
	ID         int64
	Feed       string
	StartedAt  time.Time
	Duration   time.Duration
	Trips      int
	Stories    int
	StoryStops int
	Rejected   int
	Stations   int
}

// RunData holds the derived tables saved with a run.
type RunData struct {
	Stories []gtfs.RouteStory
	Trips   []gtfs.FullTrip
	Stops   []gtfs.StopStation
}

func (s *Store) schema() []string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id ` + id + `,
			feed TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL,
			trips INTEGER NOT NULL,
			stories INTEGER NOT NULL,
			story_stops INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			stations INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS route_story_stops (
			run_id BIGINT NOT NULL,
			story_id INTEGER NOT NULL,
			stop_sequence INTEGER NOT NULL,
			stop_id TEXT NOT NULL,
			arrival_offset INTEGER NOT NULL,
			departure_offset INTEGER NOT NULL,
			pickup_type TEXT NOT NULL,
			drop_off_type TEXT NOT NULL,
			PRIMARY KEY (run_id, story_id, stop_sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS trip_stories (
			run_id BIGINT NOT NULL,
			trip_id TEXT NOT NULL,
			story_id INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			PRIMARY KEY (run_id, trip_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stop_stations (
			run_id BIGINT NOT NULL,
			stop_id TEXT NOT NULL,
			station_id TEXT NOT NULL,
			distance_m INTEGER NOT NULL,
			PRIMARY KEY (run_id, stop_id)
		)`,
	}
}

// Init creates the tables if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("store: db is nil")
	}
	for _, q := range s.schema() {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SaveRun inserts the run and its tables in a single transaction and returns the run id.
func (s *Store) SaveRun(ctx context.Context, run Run, data RunData) (_ int64, err error) {
	if s.DB == nil {
		return 0, errors.New("store: db is nil")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save run: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := rebind(s.driver, `
	INSERT INTO runs (feed, started_at, duration_ms, trips, stories, story_stops, rejected, stations)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`)
	var id int64
	err = tx.QueryRowContext(ctx, q,
		run.Feed, run.StartedAt.Unix(), run.Duration.Milliseconds(),
		run.Trips, run.Stories, run.StoryStops, run.Rejected, run.Stations,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save run: insert runs: %w", err)
	}

	var rows [][]any
	for _, rs := range data.Stories {
		for i, st := range rs.Stops {
			rows = append(rows, []any{id, rs.ID, i + 1, st.StopID, st.ArrivalOffset, st.DepartureOffset, st.PickupType, st.DropOffType})
		}
	}
	if err := s.insert(ctx, tx, "route_story_stops",
		[]string{"run_id", "story_id", "stop_sequence", "stop_id", "arrival_offset", "departure_offset", "pickup_type", "drop_off_type"}, rows); err != nil {
		return 0, err
	}

	rows = rows[:0]
	for _, t := range data.Trips {
		rows = append(rows, []any{id, t.TripID, t.StoryID, t.StartTime})
	}
	if err := s.insert(ctx, tx, "trip_stories", []string{"run_id", "trip_id", "story_id", "start_time"}, rows); err != nil {
		return 0, err
	}

	rows = rows[:0]
	for _, st := range data.Stops {
		if st.StationID == "" {
			continue
		}
		rows = append(rows, []any{id, st.StopID, st.StationID, st.Distance})
	}
	if err := s.insert(ctx, tx, "stop_stations", []string{"run_id", "stop_id", "station_id", "distance_m"}, rows); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save run: commit: %w", err)
	}
	return id, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := rebind(s.driver, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), ph))

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("insert %s: db prepare: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

// CountRows returns the number of rows a run saved to table.
func (s *Store) CountRows(ctx context.Context, table string, runID int64) (int, error) {
	switch table {
	case "route_story_stops", "trip_stories", "stop_stations":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	q := rebind(s.driver, "SELECT COUNT(*) FROM "+table+" WHERE run_id = ?")
	if err := s.DB.QueryRowContext(ctx, q, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
