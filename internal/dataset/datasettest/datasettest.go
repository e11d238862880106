// Package datasettest builds a Dataset from the feedtest sample feed.
package datasettest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"gtfsreport/internal/dataset"
	"gtfsreport/internal/feed"
	"gtfsreport/internal/feed/feedtest"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/station"
	"gtfsreport/internal/story"
)

// Sample loads the sample feed, builds its stories and resolves stations. See feedtest for
// the expected story ids.
func Sample(t *testing.T) (*dataset.Dataset, *story.Result) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	f := feed.FromFS("sample", feedtest.FS(nil))
	s, err := f.LoadSchedule(ctx, logger)
	if err != nil {
		t.Fatal(err)
	}
	grouped, _, err := f.StopTimes(ctx, logger)
	if err != nil {
		t.Fatal(err)
	}

	res := story.Build(s.Trips, grouped)
	nearest, err := station.Resolve(s.Stops, station.FindStations(s.Trips, res, gtfs.RouteTypeRail))
	if err != nil {
		t.Fatal(err)
	}
	return dataset.New(s, res, nearest), res
}
