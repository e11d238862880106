package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("disk gone") }

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo, "JSON")
		logger.Info("loaded schedule", slog.Int("trips", 8))

		assert.Contains(t, buf.String(), `"msg":"loaded schedule"`)
		assert.Contains(t, buf.String(), `"trips":8`)
	})

	t.Run("text by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo, "")
		logger.Info("loaded schedule", slog.Int("trips", 8))

		assert.Contains(t, buf.String(), `msg="loaded schedule"`)
		assert.Contains(t, buf.String(), "trips=8")
	})

	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelWarn, "text")
		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")

	LogError(logger, "write failed", errors.New("no space"), slog.String("file", "full_trips.txt"))

	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"error":"no space"`)
	assert.Contains(t, buf.String(), `"file":"full_trips.txt"`)

	assert.NotPanics(t, func() { LogError(nil, "x", errors.New("y")) })
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")

	LogOperation(logger, "stories built", slog.Int("stories", 5), slog.Duration("duration", 0))
	assert.Contains(t, buf.String(), `"stories":5`)
	assert.NotContains(t, buf.String(), "duration")

	buf.Reset()
	LogOperation(logger, "stories built", Since(time.Now().Add(-time.Second)))
	assert.Contains(t, buf.String(), `"duration":`)
}

func TestSafeClose(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")

	SafeClose(failingCloser{}, logger, "close feed")
	assert.Contains(t, buf.String(), `"operation":"close feed"`)
	assert.Contains(t, buf.String(), "disk gone")

	assert.NotPanics(t, func() { SafeClose(nil, logger, "noop") })
}

func TestContext(t *testing.T) {
	logger := Discard()
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
