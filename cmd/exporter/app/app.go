package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/castai/rds-iops-exporter/cmd/exporter/collector"
	"github.com/castai/rds-iops-exporter/config"
	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/aws"
	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/logging"
	"github.com/castai/rds-iops-exporter/pkg/metrics"
)

type Config struct {
	// Logging configuration.
	LogLevel        string        `validate:"required" json:"logLevel"`
	LogRateInterval time.Duration `json:"logRateInterval"`
	LogRateBurst    int           `json:"logRateBurst"`

	// Built binary version.
	Version string `json:"version"`

	// HTTPListenPort serves /metrics and /healthz.
	HTTPListenPort int `validate:"required,min=1,max=65535" json:"httpListenPort"`

	// ConfigPath points to the instances configuration file.
	ConfigPath string `validate:"required" json:"configPath"`

	ClientCacheSize uint32                `json:"clientCacheSize"`
	Fleet           collector.FleetConfig `json:"fleet"`
}

func New(cfg Config) (*App, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &App{cfg: cfg}, nil
}

type App struct {
	cfg Config
}

// pipeline is everything a collection cycle needs.
type pipeline struct {
	instances []types.Instance
	registry  *metrics.Registry
	fleet     *collector.FleetCollector
}

func (a *App) newLogger(ctx context.Context) *logging.Logger {
	logCfg := &logging.Config{
		Ctx:       ctx,
		AddSource: true,
		Level:     logging.MustParseLevel(a.cfg.LogLevel),
	}
	if a.cfg.LogRateInterval > 0 {
		logCfg.RateLimiter = logging.RateLimiterConfig{
			Limit:  rate.Every(a.cfg.LogRateInterval),
			Burst:  a.cfg.LogRateBurst,
			Inform: true,
		}
	}
	return logging.New(logCfg)
}

func (a *App) newPipeline(log *logging.Logger) (*pipeline, error) {
	fileCfg, err := config.Load(a.cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	registry, err := metrics.NewRegistry(fileCfg.EnabledMetrics)
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}

	provider, err := aws.NewProvider(log, aws.Config{ClientCacheSize: a.cfg.ClientCacheSize})
	if err != nil {
		return nil, fmt.Errorf("creating aws provider: %w", err)
	}

	instanceCollector := collector.NewInstanceCollector(log, provider)
	return &pipeline{
		instances: fileCfg.Descriptors(),
		registry:  registry,
		fleet:     collector.NewFleetCollector(log, a.cfg.Fleet, instanceCollector, registry),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	log := a.newLogger(ctx)
	log.Infof("running rds-iops-exporter, version=%s, config=%s", a.cfg.Version, a.cfg.ConfigPath)

	p, err := a.newPipeline(log)
	if err != nil {
		return err
	}
	log.Infof("loaded %d instances, enabled metrics=%v", len(p.instances), p.registry.Enabled())

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return a.runHTTPServer(ctx, log, newHTTPHandler(log, p.fleet, p.instances, p.registry))
	})

	<-ctx.Done()
	return waitWithTimeout(errg, 30*time.Second)
}

// CollectOnce runs a single collection cycle without serving HTTP.
func (a *App) CollectOnce(ctx context.Context) ([]collector.Outcome, []string, error) {
	log := a.newLogger(ctx)
	p, err := a.newPipeline(log)
	if err != nil {
		return nil, nil, err
	}
	return p.fleet.Run(ctx, p.instances), p.registry.Enabled(), nil
}

func waitWithTimeout(errg *errgroup.Group, timeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		errc <- errg.Wait()
	}()
	select {
	case <-time.After(timeout):
		return errors.New("timeout waiting for shutdown")
	case err := <-errc:
		return err
	}
}

func (a *App) runHTTPServer(ctx context.Context, log *logging.Logger, handler http.Handler) error {
	srv := http.Server{
		Addr:        fmt.Sprintf(":%d", a.cfg.HTTPListenPort),
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// A scrape waits for the collection cycle.
		WriteTimeout: max(time.Minute, a.cfg.Fleet.Timeout+10*time.Second),
	}
	go func() {
		<-ctx.Done()
		log.Info("shutting down http server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error(err.Error())
		}
	}()
	log.Infof("running http server, port=%d", a.cfg.HTTPListenPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
