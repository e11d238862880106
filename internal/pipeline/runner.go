// Package pipeline runs the report commands: it opens the feed, drives the builders and
// writers, and reports every stage to the metrics collector, the run store and NATS.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"gtfsreport/internal/config"
	"gtfsreport/internal/db"
	"gtfsreport/internal/feed"
	"gtfsreport/internal/logging"
	"gtfsreport/internal/metrics"
	"gtfsreport/internal/publisher"
)

// Publisher receives a summary after every stage.
type Publisher interface {
	PublishRun(msg publisher.RunSummary) error
}

type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	store   *db.Store // nil disables the run store
	pub     Publisher // nil disables publishing

	// Out receives the human-readable output of compare, check and runs.
	Out io.Writer
}

func NewRunner(cfg *config.Config, logger *slog.Logger, m *metrics.Collector, store *db.Store, pub Publisher, out io.Writer) *Runner {
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Runner{cfg: cfg, logger: logger, metrics: m, store: store, pub: pub, Out: out}
}

// Report describes what a stage did.
type Report struct {
	Command   string
	StartedAt time.Time
	Duration  time.Duration

	Trips      int
	Stories    int
	StoryStops int
	Rejected   int
	Stations   int
	Files      []string

	RunID int64 // set when the run was saved

	data *db.RunData // tables to save with the run
}

// stage runs fn as one named stage: it is timed, logged, saved and published.
func (r *Runner) stage(ctx context.Context, command string, fn func(ctx context.Context, rep *Report) error) (*Report, error) {
	start := time.Now()
	logger := r.logger.With("command", command)
	rep := &Report{Command: command, StartedAt: start}

	err := fn(logging.WithLogger(ctx, logger), rep)
	rep.Duration = time.Since(start)
	r.metrics.ObserveStage(command, start, err)
	if err != nil {
		logging.LogError(logger, "stage failed", err, slog.Duration("duration", rep.Duration))
		r.publish(logger, rep, err)
		return nil, err
	}

	if r.store != nil && rep.data != nil {
		id, err := r.store.SaveRun(ctx, db.Run{
			Feed:       r.cfg.FeedPath,
			StartedAt:  rep.StartedAt,
			Duration:   rep.Duration,
			Trips:      rep.Trips,
			Stories:    rep.Stories,
			StoryStops: rep.StoryStops,
			Rejected:   rep.Rejected,
			Stations:   rep.Stations,
		}, *rep.data)
		if err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
		rep.RunID = id
	}
	r.publish(logger, rep, nil)

	logging.LogOperation(logger, "stage finished",
		slog.Int("trips", rep.Trips),
		slog.Int("stories", rep.Stories),
		slog.Int("rejected", rep.Rejected),
		slog.Int("stations", rep.Stations),
		slog.Int("files", len(rep.Files)),
		slog.Int64("run_id", rep.RunID),
		slog.Duration("duration", rep.Duration))
	return rep, nil
}

// publish sends the run summary; errors are only logged.
func (r *Runner) publish(logger *slog.Logger, rep *Report, stageErr error) {
	if r.pub == nil {
		return
	}
	msg := publisher.RunSummary{
		RunID:      rep.RunID,
		Command:    rep.Command,
		Feed:       r.cfg.FeedPath,
		OutputDir:  r.cfg.OutputDir,
		StartedAt:  rep.StartedAt.UTC(),
		DurationMS: rep.Duration.Milliseconds(),
		Trips:      rep.Trips,
		Stories:    rep.Stories,
		StoryStops: rep.StoryStops,
		Rejected:   rep.Rejected,
		Stations:   rep.Stations,
		Files:      rep.Files,
	}
	if stageErr != nil {
		msg.Error = stageErr.Error()
	}
	if err := r.pub.PublishRun(msg); err != nil {
		logging.LogError(logger, "publish run summary", err)
	}
}

// Flush writes the metrics textfile when one is configured.
func (r *Runner) Flush() error {
	if r.cfg.MetricsTextfile == "" {
		return nil
	}
	if err := r.metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func (r *Runner) output(name string) string {
	return filepath.Join(r.cfg.OutputDir, name)
}

// openSchedule opens the feed and loads every table but stop_times. The caller closes the feed.
func (r *Runner) openSchedule(ctx context.Context) (*feed.Feed, *feed.Schedule, error) {
	logger := logging.FromContext(ctx)
	f, err := feed.Open(r.cfg.FeedPath)
	if err != nil {
		return nil, nil, err
	}
	s, err := f.LoadSchedule(ctx, logger)
	if err != nil {
		logging.SafeClose(f, logger, "close feed")
		return nil, nil, err
	}
	r.metrics.UnknownReferences.WithLabelValues("route").Add(float64(s.UnknownRoutes))
	r.metrics.UnknownReferences.WithLabelValues("service").Add(float64(s.UnknownServices))
	return f, s, nil
}
