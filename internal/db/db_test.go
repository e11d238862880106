package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsreport/internal/gtfs"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Ping(context.Background(), db))

	s := NewStore(db, DriverSQLite)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func sampleData() RunData {
	return RunData{
		Stories: []gtfs.RouteStory{
			{ID: 1, Stops: []gtfs.RouteStoryStop{{StopID: "100"}, {ArrivalOffset: 600, DepartureOffset: 660, StopID: "200"}}},
			{ID: 2, Stops: []gtfs.RouteStoryStop{{StopID: "300"}, {ArrivalOffset: 600, DepartureOffset: 600, StopID: "500"}}},
		},
		Trips: []gtfs.FullTrip{
			{TripID: "T1", StoryID: 1, StartTime: 28800},
			{TripID: "T2", StoryID: 1, StartTime: 32400},
			{TripID: "T3", StoryID: 2, StartTime: 28500},
		},
		Stops: []gtfs.StopStation{
			{StopID: "100", StationID: "100"},
			{StopID: "300", StationID: "100", Distance: 111},
			{StopID: "900"},
		},
	}
}

func TestDriver(t *testing.T) {
	tests := []struct {
		dsn, driver, source string
	}{
		{"postgres://u@h/db", DriverPostgres, "postgres://u@h/db"},
		{"postgresql://u@h/db", DriverPostgres, "postgresql://u@h/db"},
		{"sqlite:///var/lib/gtfsreport.db", DriverSQLite, "/var/lib/gtfsreport.db"},
		{"runs.db", DriverSQLite, "runs.db"},
		{":memory:", DriverSQLite, ":memory:"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			driver, source := Driver(tt.dsn)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestOpenEmpty(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	assert.Equal(t, q, rebind(DriverSQLite, q))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", rebind(DriverPostgres, q))
}

func TestWithDBName(t *testing.T) {
	got, err := WithDBName("postgres://u:p@localhost:5432/postgres?sslmode=disable", "gtfs")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/gtfs?sslmode=disable", got)

	got, err = WithDBName("runs.db", "gtfs")
	require.NoError(t, err)
	assert.Equal(t, "runs.db", got)

	got, err = WithDBName("postgres://localhost/a", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/a", got)

	_, err = WithDBName("", "gtfs")
	assert.Error(t, err)
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	started := time.Date(2016, 6, 1, 12, 0, 0, 0, time.UTC)
	id, err := s.SaveRun(ctx, Run{
		Feed:       "/data/israel-public-transportation.zip",
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
		Trips:      3,
		Stories:    2,
		StoryStops: 4,
		Stations:   2,
	}, sampleData())
	require.NoError(t, err)
	assert.Positive(t, id)

	for table, want := range map[string]int{"route_story_stops": 4, "trip_stories": 3, "stop_stations": 2} {
		n, err := s.CountRows(ctx, table, id)
		require.NoError(t, err, table)
		assert.Equal(t, want, n, table)
	}

	var arrival, departure int
	require.NoError(t, s.DB.QueryRowContext(ctx,
		`SELECT arrival_offset, departure_offset FROM route_story_stops WHERE run_id = ? AND story_id = 1 AND stop_sequence = 2`, id,
	).Scan(&arrival, &departure))
	assert.Equal(t, 600, arrival)
	assert.Equal(t, 660, departure)

	run, err := s.LatestRun(ctx, "ISRAEL")
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, started, run.StartedAt)
	assert.Equal(t, 1500*time.Millisecond, run.Duration)
	assert.Equal(t, 2, run.Stories)
}

func TestSaveRunTwice(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first, err := s.SaveRun(ctx, Run{Feed: "a.zip", StartedAt: time.Unix(100, 0)}, sampleData())
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, Run{Feed: "b.zip", StartedAt: time.Unix(200, 0)}, RunData{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b.zip", runs[0].Feed)
	assert.Equal(t, "a.zip", runs[1].Feed)

	n, err := s.CountRows(ctx, "trip_stories", second)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLatestRunErrors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.LatestRun(ctx, " ")
	assert.Error(t, err)

	_, err = s.LatestRun(ctx, "nowhere")
	assert.ErrorContains(t, err, `no run found for feed like "nowhere"`)
}

func TestCountRowsUnknownTable(t *testing.T) {
	s := newStore(t)
	_, err := s.CountRows(context.Background(), "runs; DROP TABLE runs", 1)
	assert.Error(t, err)
}

func TestFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	db, err := Open("sqlite://" + path)
	require.NoError(t, err)
	s := NewStore(db, DriverSQLite)
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Init(ctx), "init is idempotent")
	_, err = s.SaveRun(ctx, Run{Feed: "feed", StartedAt: time.Unix(1, 0)}, sampleData())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	runs, err := NewStore(db, DriverSQLite).Runs(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
