package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	StopTimeRows prometheus.Counter
	Trips        prometheus.Counter
	Stories      prometheus.Counter
	StoryStops   prometheus.Counter

	RejectedTrips     *prometheus.CounterVec // reason label: bad_sequence|missing_stop_times|missing_times
	UnknownReferences *prometheus.CounterVec // kind label: route|service|stop_times_trip

	Stations prometheus.Gauge

	RowsWritten *prometheus.CounterVec // file label

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	StageDuration *prometheus.HistogramVec // stage label
	LastSuccess   prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		StopTimeRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gtfsreport_stop_time_rows_total",
			Help: "Total stop_times.txt rows read.",
		}),
		Trips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gtfsreport_trips_total",
			Help: "Total trips offered to the route story builder.",
		}),
		Stories: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gtfsreport_route_stories_total",
			Help: "Total distinct route stories built.",
		}),
		StoryStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gtfsreport_route_story_stops_total",
			Help: "Total stops across all route stories.",
		}),
		RejectedTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfsreport_rejected_trips_total",
			Help: "Trips left without a route story.",
		}, []string{"reason"}),
		UnknownReferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfsreport_unknown_references_total",
			Help: "References to ids missing from the feed.",
		}, []string{"kind"}),
		Stations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfsreport_train_stations",
			Help: "Number of train stations found in the feed.",
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfsreport_rows_written_total",
			Help: "Rows written to derived tables.",
		}, []string{"file"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gtfsreport_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gtfsreport_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfsreport_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gtfsreport_nats_publish_duration_seconds",
			Help:    "Duration of NATS publishes.",
			Buckets: prometheus.DefBuckets,
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfsreport_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"stage"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfsreport_last_success_timestamp_seconds",
			Help: "Unix time of the last successful stage.",
		}),
	}

	reg.MustRegister(
		c.StopTimeRows, c.Trips, c.Stories, c.StoryStops,
		c.RejectedTrips, c.UnknownReferences, c.Stations, c.RowsWritten,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.StageDuration, c.LastSuccess,
	)
	return c
}

// ObserveStage records how long a stage took and, when it succeeded, when it finished.
func (c *Collector) ObserveStage(stage string, start time.Time, err error) {
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err == nil {
		c.LastSuccess.SetToCurrentTime()
	}
}

func (c *Collector) Gatherer() prometheus.Gatherer { return c.reg }

// WriteTextfile writes all metrics in the text format for node_exporter's textfile
// collector. The write is atomic.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.reg)
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
