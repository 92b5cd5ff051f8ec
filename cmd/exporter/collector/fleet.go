package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/logging"
	"github.com/castai/rds-iops-exporter/pkg/metrics"
)

type FleetConfig struct {
	// Timeout bounds a whole collection cycle. Zero disables the deadline.
	Timeout time.Duration `json:"timeout"`
	// MaxConcurrency bounds the number of instances collected at once.
	// Zero means one goroutine per instance.
	MaxConcurrency int `json:"maxConcurrency" validate:"gte=0"`
}

type instanceCollector interface {
	Collect(ctx context.Context, instance types.Instance) (metrics.GaugeUpdateSet, error)
}

// Outcome is the result of one instance in one cycle. Updates is empty when
// Err is set.
type Outcome struct {
	Instance types.Instance
	Updates  metrics.GaugeUpdateSet
	Err      error
	Duration time.Duration
}

func NewFleetCollector(log *logging.Logger, cfg FleetConfig, collector instanceCollector, registry *metrics.Registry) *FleetCollector {
	return &FleetCollector{
		log:       log.WithField("component", "fleet_collector"),
		cfg:       cfg,
		collector: collector,
		registry:  registry,
	}
}

type FleetCollector struct {
	log       *logging.Logger
	cfg       FleetConfig
	collector instanceCollector
	registry  *metrics.Registry
}

// Run collects all instances and applies every successful update set to the
// registry. Failed instances are logged and keep the values of their last
// successful cycle. Run returns once every instance is resolved.
func (f *FleetCollector) Run(ctx context.Context, instances []types.Instance) []Outcome {
	start := time.Now()
	defer f.registry.ObserveCollectionDuration(start)

	log := f.log.WithField("cycle_id", uuid.NewString())
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	outcomes := make([]Outcome, len(instances))
	var errg errgroup.Group
	if f.cfg.MaxConcurrency > 0 {
		errg.SetLimit(f.cfg.MaxConcurrency)
	}
	for i, instance := range instances {
		errg.Go(func() error {
			outcomes[i] = f.collectOne(ctx, log, instance)
			return nil
		})
	}
	_ = errg.Wait()

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	log.Debugf("collection cycle done, instances=%d, failed=%d, took=%v", len(instances), failed, time.Since(start))
	return outcomes
}

func (f *FleetCollector) collectOne(ctx context.Context, log *logging.Logger, instance types.Instance) Outcome {
	start := time.Now()
	updates, err := f.collector.Collect(ctx, instance)
	f.registry.IncCollectionsTotal(err)

	out := Outcome{Instance: instance, Duration: time.Since(start)}
	if err != nil {
		log.ForInstance(instance.ID).Errorf("instance collection failed: %v", err)
		out.Err = err
		return out
	}
	f.registry.Apply(updates)
	out.Updates = updates
	return out
}
