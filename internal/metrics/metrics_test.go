package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	c := NewCollector()

	c.Trips.Add(8)
	c.RejectedTrips.WithLabelValues("bad_sequence").Inc()
	c.RejectedTrips.WithLabelValues("missing_stop_times").Add(2)
	c.Stations.Set(2)

	assert.Equal(t, 8.0, testutil.ToFloat64(c.Trips))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RejectedTrips.WithLabelValues("bad_sequence")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RejectedTrips.WithLabelValues("missing_stop_times")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Stations))
}

func TestObserveStage(t *testing.T) {
	c := NewCollector()

	c.ObserveStage("stories", time.Now().Add(-time.Second), nil)
	c.ObserveStage("stops", time.Now(), errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(c.StageDuration))
	assert.Positive(t, testutil.ToFloat64(c.LastSuccess))
}

func TestCollectorsAreIsolated(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.Stories.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.Stories))
	assert.Zero(t, testutil.ToFloat64(b.Stories))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.StopTimeRows.Add(15)
	path := filepath.Join(t.TempDir(), "gtfsreport.prom")

	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gtfsreport_stop_time_rows_total 15")
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.Stories.Add(5)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "gtfsreport_route_stories_total 5"))
}
