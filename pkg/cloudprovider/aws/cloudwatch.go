package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/samber/lo"

	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
)

const (
	sampleWindow = time.Minute
	samplePeriod = 300
	sampleID     = "sample"
)

// MetricSample fetches a single aggregated datapoint of the query for the
// last minute. No datapoint yields nil. API errors are logged and also yield
// nil, a missing metric must not fail the instance collection. Cancellation
// of ctx is still returned as an error.
func (p *Provider) MetricSample(ctx context.Context, instance types.Instance, query types.SampleQuery) (*float64, error) {
	log := p.log.ForInstance(instance.ID).WithField("metric", query.MetricName)

	clients, err := p.clientsFor(ctx, instance)
	if err != nil {
		log.Warnf("metric sample unavailable: %v", err)
		return nil, nil
	}

	out, err := clients.cloudwatch.GetMetricData(ctx, p.metricDataInput(query))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warnf("metric sample unavailable: %v", classifyError("getting metric data", instance.ID, err))
		return nil, nil
	}

	if len(out.MetricDataResults) == 0 {
		return nil, nil
	}
	values := out.MetricDataResults[0].Values
	if len(values) == 0 {
		return nil, nil
	}
	return lo.ToPtr(values[0]), nil
}

func (p *Provider) metricDataInput(query types.SampleQuery) *cloudwatch.GetMetricDataInput {
	end := p.nowFunc()
	dimensions := lo.Map(query.Dimensions, func(d types.Dimension, _ int) cwtypes.Dimension {
		return cwtypes.Dimension{Name: aws.String(d.Name), Value: aws.String(d.Value)}
	})

	return &cloudwatch.GetMetricDataInput{
		StartTime:     aws.Time(end.Add(-sampleWindow)),
		EndTime:       aws.Time(end),
		MaxDatapoints: aws.Int32(1),
		MetricDataQueries: []cwtypes.MetricDataQuery{
			{
				Id: aws.String(sampleID),
				MetricStat: &cwtypes.MetricStat{
					Metric: &cwtypes.Metric{
						Namespace:  aws.String(query.Namespace),
						MetricName: aws.String(query.MetricName),
						Dimensions: dimensions,
					},
					Period: aws.Int32(samplePeriod),
					Stat:   aws.String(query.Statistic),
				},
				ReturnData: aws.Bool(true),
			},
		},
	}
}
