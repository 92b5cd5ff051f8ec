package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/logging"
)

type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

type cloudwatchAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

type instanceClients struct {
	rds        rdsAPI
	cloudwatch cloudwatchAPI
}

type clientsFactory func(ctx context.Context, instance types.Instance) (*instanceClients, error)

type Config struct {
	// ClientCacheSize bounds the number of per instance SDK clients kept
	// between collection cycles. Only clients are kept, never responses.
	ClientCacheSize uint32
}

type Provider struct {
	log *logging.Logger
	cfg Config

	clients    *freelru.SyncedLRU[string, *instanceClients]
	newClients clientsFactory
	nowFunc    func() time.Time
}

var _ types.Provider = (*Provider)(nil)

// NewProvider creates an AWS provider backed by RDS and CloudWatch clients.
func NewProvider(log *logging.Logger, cfg Config) (*Provider, error) {
	return newProvider(log, cfg, newSDKClients)
}

func newProvider(log *logging.Logger, cfg Config, factory clientsFactory) (*Provider, error) {
	if cfg.ClientCacheSize == 0 {
		cfg.ClientCacheSize = 128
	}
	cache, err := freelru.NewSynced[string, *instanceClients](cfg.ClientCacheSize, func(k string) uint32 {
		return uint32(xxhash.Sum64String(k)) // nolint:gosec
	})
	if err != nil {
		return nil, fmt.Errorf("creating clients cache: %w", err)
	}
	return &Provider{
		log:        log.WithField("cloudprovider", "aws"),
		cfg:        cfg,
		clients:    cache,
		newClients: factory,
		nowFunc:    time.Now,
	}, nil
}

func newSDKClients(ctx context.Context, instance types.Instance) (*instanceClients, error) {
	awsCfg, err := buildAWSConfig(ctx, instance)
	if err != nil {
		return nil, err
	}
	return &instanceClients{
		rds:        rds.NewFromConfig(awsCfg),
		cloudwatch: cloudwatch.NewFromConfig(awsCfg),
	}, nil
}

func (p *Provider) clientsFor(ctx context.Context, instance types.Instance) (*instanceClients, error) {
	key := clientsKey(instance)
	if c, ok := p.clients.Get(key); ok {
		return c, nil
	}
	c, err := p.newClients(ctx, instance)
	if err != nil {
		return nil, err
	}
	p.clients.Add(key, c)
	return c, nil
}

// clientsKey changes whenever any connection relevant field changes so that
// rotated keys get fresh clients.
func clientsKey(instance types.Instance) string {
	return strings.Join([]string{
		instance.ID,
		instance.Region,
		instance.Credentials.AccessKeyID,
		instance.Credentials.SecretAccessKey,
	}, "\x00")
}
