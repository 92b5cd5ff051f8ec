package logging_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/castai/rds-iops-exporter/pkg/logging"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLogger(t *testing.T) {
	t.Run("writes fields and source", func(t *testing.T) {
		r := require.New(t)
		var out bytes.Buffer
		log := logging.New(&logging.Config{
			Output:    &out,
			Level:     logging.MustParseLevel("DEBUG"),
			AddSource: true,
		})

		log.WithField("component", "collector").Errorf("describe failed: %v", errors.New("ups"))

		line := out.String()
		r.Contains(line, "level=ERROR")
		r.Contains(line, `msg="describe failed: ups"`)
		r.Contains(line, "component=collector")
		r.Contains(line, "source=logging_test.go:")
	})

	t.Run("respects level", func(t *testing.T) {
		r := require.New(t)
		var out bytes.Buffer
		log := logging.New(&logging.Config{
			Output: &out,
			Level:  slog.LevelInfo,
		})

		log.Debug("hidden")
		log.Infof("visible %d", 1)

		r.NotContains(out.String(), "hidden")
		r.Contains(out.String(), "visible 1")
	})

	t.Run("instance scope", func(t *testing.T) {
		r := require.New(t)
		var out bytes.Buffer
		log := logging.New(&logging.Config{Output: &out, Level: slog.LevelInfo})

		log.ForInstance("db-1").Warnf("no samples")

		r.Contains(out.String(), "level=WARN")
		r.Contains(out.String(), "instance=db-1")
	})

	t.Run("rate limit", func(t *testing.T) {
		var out bytes.Buffer
		log := logging.New(&logging.Config{
			Output: &out,
			Level:  logging.MustParseLevel("DEBUG"),
			RateLimiter: logging.RateLimiterConfig{
				Limit: rate.Every(10 * time.Millisecond),
				Burst: 1,
			},
		})

		for i := 0; i < 10; i++ {
			log.WithField("component", "test").Info("test")
			time.Sleep(8 * time.Millisecond)
		}

		require.GreaterOrEqual(t, countLogLines(&out), 5)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := logging.ParseLevel("loud")
		require.Error(t, err)
	})
}

func countLogLines(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), "\n")
}
