package dataset_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsreport/internal/dataset"
	"gtfsreport/internal/dataset/datasettest"
	"gtfsreport/internal/export"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/station"
)

func writeDerived(t *testing.T, ds *dataset.Dataset, stories []gtfs.RouteStory, nearest map[string]station.Nearest) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, export.WriteRouteStoryStops(filepath.Join(dir, gtfs.RouteStoryStopsFile), stories))
	require.NoError(t, export.WriteFullTrips(filepath.Join(dir, gtfs.FullTripsFile), ds.Schedule.Trips, ds.Assignments))
	require.NoError(t, export.WriteFullStops(filepath.Join(dir, gtfs.FullStopsFile), ds.Schedule.Stops, nearest, nil))
	return dir
}

func TestLoadRoundTrip(t *testing.T) {
	ds, res := datasettest.Sample(t)
	dir := writeDerived(t, ds, res.Stories, ds.Nearest)

	loaded, err := dataset.Load(ds.Schedule, dir)
	require.NoError(t, err)

	assert.Equal(t, ds.Stories, loaded.Stories)
	assert.Equal(t, ds.Assignments, loaded.Assignments)
	require.Len(t, loaded.Nearest, len(ds.Nearest))
	for id, n := range ds.Nearest {
		assert.Equal(t, n.StationID, loaded.Nearest[id].StationID, id)
		assert.Equal(t, n.Meters(), loaded.Nearest[id].Meters(), id)
	}
}

func TestLoadWithoutStations(t *testing.T) {
	ds, res := datasettest.Sample(t)
	dir := writeDerived(t, ds, res.Stories, nil)

	loaded, err := dataset.Load(ds.Schedule, dir)
	require.NoError(t, err)
	assert.Empty(t, loaded.Nearest)
	assert.Empty(t, loaded.Stations())
}

func TestLoadMissingFile(t *testing.T) {
	ds, res := datasettest.Sample(t)
	dir := writeDerived(t, ds, res.Stories, ds.Nearest)
	require.NoError(t, os.Remove(filepath.Join(dir, gtfs.FullTripsFile)))

	_, err := dataset.Load(ds.Schedule, dir)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadUnknownStory(t *testing.T) {
	ds, res := datasettest.Sample(t)
	// drop the last story but keep the trip pointing at it
	dir := writeDerived(t, ds, res.Stories[:len(res.Stories)-1], ds.Nearest)

	_, err := dataset.Load(ds.Schedule, dir)
	assert.ErrorContains(t, err, "unknown route story 5")
}

func TestLoadNonContiguousStory(t *testing.T) {
	ds, res := datasettest.Sample(t)
	stories := append([]gtfs.RouteStory(nil), res.Stories...)
	stories = append(stories, gtfs.RouteStory{ID: 1, Stops: []gtfs.RouteStoryStop{{StopID: "100"}}})
	dir := writeDerived(t, ds, stories, ds.Nearest)

	_, err := dataset.Load(ds.Schedule, dir)
	assert.ErrorContains(t, err, "not contiguous")
}

func TestLoadStories(t *testing.T) {
	ds, res := datasettest.Sample(t)
	dir := writeDerived(t, ds, res.Stories, nil)

	loaded, err := dataset.LoadStories(dir)
	require.NoError(t, err)

	assert.Equal(t, res.Stories, loaded.Stories)
	assert.Equal(t, res.Assignments, loaded.Assignments)
	assert.Equal(t, res.Stats.Stories, loaded.Stats.Stories)
	assert.Equal(t, res.Stats.StoryStops, loaded.Stats.StoryStops)
	assert.Equal(t, res.Stats.Assigned, loaded.Stats.Assigned)

	rs, ok := loaded.Story(2)
	require.True(t, ok)
	assert.Equal(t, []string{"300", "500", "400"}, rs.StopIDs())
}

func TestLoadStoriesGap(t *testing.T) {
	ds, res := datasettest.Sample(t)
	dir := writeDerived(t, ds, res.Stories[1:], nil)

	_, err := dataset.LoadStories(dir)
	assert.ErrorContains(t, err, "found route story 2 where 1 was expected")
}

func TestTrips(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	june := time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)

	ids := func(trips []*gtfs.Trip) []string {
		var out []string
		for _, tr := range trips {
			out = append(out, tr.ID)
		}
		return out
	}
	assert.Equal(t, []string{"T1", "T2"}, ids(ds.Trips(gtfs.RouteTypeRail, june, june)))
	// T5 and T7 have no story, T6 no service
	assert.Equal(t, []string{"T3", "T4"}, ids(ds.Trips(gtfs.RouteTypeBus, june, june)))
	assert.Empty(t, ds.Trips(gtfs.RouteTypeBus, june.AddDate(1, 0, 0), june.AddDate(1, 0, 0)))
}

func TestHelpers(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	rs, a, ok := ds.Story("T2")
	require.True(t, ok)
	assert.Equal(t, 1, rs.ID)
	assert.Equal(t, 9*3600, a.StartTime)

	_, _, ok = ds.Story("T5")
	assert.False(t, ok)

	assert.Equal(t, []string{"100", "200"}, ds.Stations().Sorted())
	assert.Equal(t, []string{"100", "200", "300", "400"}, ds.StopsWithin(300).Sorted())
	assert.Equal(t, "Station B", ds.StopName("200"))
	assert.Equal(t, "999", ds.StopName("999"))
}
