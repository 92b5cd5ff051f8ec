package types

import (
	"github.com/castai/rds-iops-exporter/pkg/volumelimit"
)

// Credentials is a static access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Instance identifies one monitored database instance together with the
// region and credentials used to reach it. It is a plain value and is copied
// into every concurrent task.
type Instance struct {
	ID          string
	Region      string
	Credentials Credentials
}

// InstanceDetails holds the storage attributes of an instance as reported by
// the provider during a single collection cycle.
type InstanceDetails struct {
	ID                 string
	StorageClass       volumelimit.StorageClass
	AllocatedStorageGB int64
	// ProvisionedIOPS is set only for storage that reports it (io1, gp3).
	ProvisionedIOPS *int64
}

type Dimension struct {
	Name  string
	Value string
}

// SampleQuery selects one aggregated datapoint of a telemetry metric.
type SampleQuery struct {
	Namespace  string
	MetricName string
	Statistic  string
	Dimensions []Dimension
}
