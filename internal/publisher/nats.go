package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logger *slog.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("gtfsreport"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger, metrics: m}, nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// RunSummary is published once per finished command.
type RunSummary struct {
	RunID      int64     `json:"runId,omitempty"`
	Command    string    `json:"command"`
	Feed       string    `json:"feed"`
	OutputDir  string    `json:"outputDir"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
	Trips      int       `json:"trips"`
	Stories    int       `json:"stories"`
	StoryStops int       `json:"storyStops"`
	Rejected   int       `json:"rejected"`
	Stations   int       `json:"stations"`
	Files      []string  `json:"files,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Subject returns <prefix>.<feed name>.<command>.
func Subject(prefix, feed, command string) string {
	name := strings.TrimSuffix(filepath.Base(feed), filepath.Ext(feed))
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(name), subjectToken(command))
}

func (p *NATSPublisher) PublishRun(msg RunSummary) error {
	subject := Subject(p.prefix, msg.Feed, msg.Command)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.logger.Debug("nats publish", "subject", subject)
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if err == nil {
		err = p.nc.FlushTimeout(5 * time.Second)
	}
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
