package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/castai/rds-iops-exporter/cmd/exporter/collector"
	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/logging"
	"github.com/castai/rds-iops-exporter/pkg/metrics"
)

func TestHTTPHandler(t *testing.T) {
	log := logging.NewTestLog()
	instances := []types.Instance{{ID: "db-1", Region: "eu-west-1"}}

	t.Run("scrape runs a cycle before exposing metrics", func(t *testing.T) {
		r := require.New(t)
		registry, err := metrics.NewRegistry(nil)
		r.NoError(err)
		fleet := &fakeFleet{registry: registry}
		e := newHTTPHandler(log, fleet, instances, registry)

		for _, method := range []string{http.MethodGet, http.MethodPost} {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(method, "/metrics", nil))
			r.Equal(http.StatusOK, rec.Code)
			r.Contains(rec.Body.String(), `total_iops{instance="db-1"} 200`)
			r.Contains(rec.Body.String(), `rds_exporter_collections_total{status="ok"}`)
		}
		r.Equal(int32(2), fleet.runs.Load())
		r.Equal(instances, fleet.lastInstances)
	})

	t.Run("concurrent scrapes share one cycle", func(t *testing.T) {
		r := require.New(t)
		registry, err := metrics.NewRegistry(nil)
		r.NoError(err)
		fleet := &fakeFleet{registry: registry, release: make(chan struct{}), started: make(chan struct{}, 10)}
		e := newHTTPHandler(log, fleet, instances, registry)

		var wg sync.WaitGroup
		codes := make([]int, 3)
		scrape := func(i int) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := httptest.NewRecorder()
				e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
				codes[i] = rec.Code
			}()
		}

		// The first scrape holds the cycle open until release.
		scrape(0)
		<-fleet.started
		scrape(1)
		scrape(2)
		time.Sleep(100 * time.Millisecond)
		close(fleet.release)
		wg.Wait()

		r.Equal([]int{http.StatusOK, http.StatusOK, http.StatusOK}, codes)
		r.Equal(int32(1), fleet.runs.Load())
	})

	t.Run("healthz reports last cycle", func(t *testing.T) {
		r := require.New(t)
		registry, err := metrics.NewRegistry(nil)
		r.NoError(err)
		e := newHTTPHandler(log, &fakeFleet{registry: registry}, instances, registry)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		r.Equal(http.StatusOK, rec.Code)
		r.JSONEq(`{"msg":"Ok"}`, rec.Body.String())

		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body struct {
			Msg       string    `json:"msg"`
			LastCycle time.Time `json:"lastCycle"`
		}
		r.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		r.False(body.LastCycle.IsZero())
	})
}

func TestNew(t *testing.T) {
	valid := Config{
		LogLevel:       "info",
		HTTPListenPort: 9187,
		ConfigPath:     "config.yaml",
	}

	t.Run("valid", func(t *testing.T) {
		_, err := New(valid)
		require.NoError(t, err)
	})

	t.Run("missing config path", func(t *testing.T) {
		cfg := valid
		cfg.ConfigPath = ""
		_, err := New(cfg)
		require.Error(t, err)
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := valid
		cfg.LogLevel = "loud"
		_, err := New(cfg)
		require.Error(t, err)
	})

	t.Run("negative concurrency", func(t *testing.T) {
		cfg := valid
		cfg.Fleet.MaxConcurrency = -1
		_, err := New(cfg)
		require.Error(t, err)
	})
}

type fakeFleet struct {
	registry *metrics.Registry
	runs     atomic.Int32
	started  chan struct{}
	release  chan struct{}

	mu            sync.Mutex
	lastInstances []types.Instance
}

func (f *fakeFleet) Run(ctx context.Context, instances []types.Instance) []collector.Outcome {
	f.runs.Inc()
	f.mu.Lock()
	f.lastInstances = instances
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	outcomes := make([]collector.Outcome, 0, len(instances))
	for _, instance := range instances {
		set := metrics.GaugeUpdateSet{Instance: instance.ID}
		set.Set(metrics.TotalIOPS, 200)
		f.registry.Apply(set)
		f.registry.IncCollectionsTotal(nil)
		outcomes = append(outcomes, collector.Outcome{Instance: instance, Updates: set})
	}
	return outcomes
}
