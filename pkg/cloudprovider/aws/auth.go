package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
)

// buildAWSConfig constructs AWS configuration for a single instance from its
// static key pair and region.
func buildAWSConfig(ctx context.Context, instance types.Instance) (aws.Config, error) {
	if instance.Region == "" {
		return aws.Config{}, fmt.Errorf("instance %s: region is empty", instance.ID)
	}
	creds := credentials.NewStaticCredentialsProvider(
		instance.Credentials.AccessKeyID,
		instance.Credentials.SecretAccessKey,
		"",
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(instance.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}

	return awsCfg, nil
}
