package types

import (
	"context"
)

// DetailsFetcher resolves an instance to its storage attributes.
type DetailsFetcher interface {
	InstanceDetails(ctx context.Context, instance Instance) (*InstanceDetails, error)
}

// SampleFetcher returns the most recent aggregated value of a metric.
// A nil value with a nil error means no datapoint was available.
type SampleFetcher interface {
	MetricSample(ctx context.Context, instance Instance, query SampleQuery) (*float64, error)
}

// Provider is the cloud API surface the collectors depend on.
type Provider interface {
	DetailsFetcher
	SampleFetcher
}
