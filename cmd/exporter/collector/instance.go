package collector

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/logging"
	"github.com/castai/rds-iops-exporter/pkg/metrics"
	"github.com/castai/rds-iops-exporter/pkg/volumelimit"
)

const (
	rdsNamespace       = "AWS/RDS"
	rdsInstanceDimName = "DBInstanceIdentifier"
	averageStatistic   = "Average"

	writeIOPSMetric    = "WriteIOPS"
	readIOPSMetric     = "ReadIOPS"
	burstBalanceMetric = "BurstBalance"
)

func NewInstanceCollector(log *logging.Logger, provider types.Provider) *InstanceCollector {
	return &InstanceCollector{
		log:      log.WithField("component", "instance_collector"),
		provider: provider,
	}
}

// InstanceCollector computes the gauges of a single instance.
type InstanceCollector struct {
	log      *logging.Logger
	provider types.Provider
}

// Collect fetches details and the write, read and burst balance samples
// concurrently and joins them into one update set. A failure of any call
// fails the whole instance so that no partial set is ever published.
func (c *InstanceCollector) Collect(ctx context.Context, instance types.Instance) (metrics.GaugeUpdateSet, error) {
	var (
		details                *types.InstanceDetails
		write, read, burstCred *float64
	)

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		d, err := c.provider.InstanceDetails(ctx, instance)
		if err != nil {
			return fmt.Errorf("fetching instance details: %w", err)
		}
		details = d
		return nil
	})
	errg.Go(c.fetchSample(ctx, instance, writeIOPSMetric, &write))
	errg.Go(c.fetchSample(ctx, instance, readIOPSMetric, &read))
	errg.Go(c.fetchSample(ctx, instance, burstBalanceMetric, &burstCred))

	if err := errg.Wait(); err != nil {
		return metrics.GaugeUpdateSet{}, err
	}

	limit := c.calculateLimit(instance, details)
	return buildUpdateSet(instance.ID, limit, write, read, burstCred), nil
}

func (c *InstanceCollector) fetchSample(ctx context.Context, instance types.Instance, metricName string, dst **float64) func() error {
	return func() error {
		v, err := c.provider.MetricSample(ctx, instance, types.SampleQuery{
			Namespace:  rdsNamespace,
			MetricName: metricName,
			Statistic:  averageStatistic,
			Dimensions: []types.Dimension{{Name: rdsInstanceDimName, Value: instance.ID}},
		})
		if err != nil {
			return fmt.Errorf("fetching %s sample: %w", metricName, err)
		}
		*dst = v
		return nil
	}
}

// calculateLimit never fails the instance: unknown storage or missing
// inputs result in a zero limit.
func (c *InstanceCollector) calculateLimit(instance types.Instance, details *types.InstanceDetails) volumelimit.Limit {
	limit, err := volumelimit.Calculate(details.StorageClass, details.AllocatedStorageGB, details.ProvisionedIOPS)
	if err != nil {
		c.log.ForInstance(instance.ID).Warnf("using zero iops limit: %v", err)
		return volumelimit.Limit{}
	}
	return limit
}

func buildUpdateSet(instanceID string, limit volumelimit.Limit, write, read, burstCred *float64) metrics.GaugeUpdateSet {
	set := metrics.GaugeUpdateSet{Instance: instanceID}

	// With burst credit left the volume can sustain the burst rate. Classes
	// without a burst tier keep the baseline even when CloudWatch reports a
	// positive BurstBalance, so the published limit is never 0 there.
	if burstCred != nil && *burstCred > 0 && limit.BurstIOPS > 0 {
		set.Set(metrics.IOPSLimit, float64(limit.BurstIOPS))
	} else {
		set.Set(metrics.IOPSLimit, float64(limit.IOPS))
	}
	if limit.BurstIOPS > 0 {
		set.Set(metrics.BurstIOPSLimit, float64(limit.BurstIOPS))
	}

	writeIOPS := valueOrZero(write)
	readIOPS := valueOrZero(read)
	set.Set(metrics.WriteIOPS, writeIOPS)
	set.Set(metrics.ReadIOPS, readIOPS)
	set.Set(metrics.TotalIOPS, writeIOPS+readIOPS)

	if burstCred != nil {
		set.Set(metrics.BurstCreditBalance, *burstCred)
	}
	return set
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
