package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/castai/rds-iops-exporter/cmd/exporter/collector"
	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/logging"
)

type fleetRunner interface {
	Run(ctx context.Context, instances []types.Instance) []collector.Outcome
}

type metricsHandler struct {
	log       *logging.Logger
	fleet     fleetRunner
	instances []types.Instance
	exposer   http.Handler

	cycles    singleflight.Group
	lastCycle *atomic.Time
}

func newHTTPHandler(log *logging.Logger, fleet fleetRunner, instances []types.Instance, gatherer prometheus.Gatherer) *echo.Echo {
	h := &metricsHandler{
		log:       log.WithField("component", "http"),
		fleet:     fleet,
		instances: instances,
		exposer: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		}),
		lastCycle: atomic.NewTime(time.Time{}),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = false

	e.Use(middleware.Recover())
	e.GET("/healthz", h.healthz)
	e.Any("/metrics", h.metrics)
	return e
}

// metrics runs a collection cycle and then exposes the registry. Concurrent
// scrapes share the cycle that is already in flight.
func (h *metricsHandler) metrics(c echo.Context) error {
	// The shared cycle must not be cancelled by the first caller going away.
	ctx := context.WithoutCancel(c.Request().Context())
	_, _, shared := h.cycles.Do("collect", func() (any, error) {
		h.fleet.Run(ctx, h.instances)
		h.lastCycle.Store(time.Now())
		return nil, nil
	})
	if shared {
		h.log.Debug("joined in-flight collection cycle")
	}

	h.exposer.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (h *metricsHandler) healthz(c echo.Context) error {
	type res struct {
		Msg       string     `json:"msg"`
		LastCycle *time.Time `json:"lastCycle,omitempty"`
	}
	out := res{Msg: "Ok"}
	if last := h.lastCycle.Load(); !last.IsZero() {
		out.LastCycle = &last
	}
	return c.JSON(http.StatusOK, out)
}
