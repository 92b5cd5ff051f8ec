package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/volumelimit"
)

var authErrorCodes = map[string]struct{}{
	"AccessDenied":                {},
	"AccessDeniedException":       {},
	"AuthFailure":                 {},
	"ExpiredToken":                {},
	"ExpiredTokenException":       {},
	"InvalidClientTokenId":        {},
	"SignatureDoesNotMatch":       {},
	"UnrecognizedClientException": {},
}

// InstanceDetails describes the instance storage from https://docs.aws.amazon.com/AmazonRDS/latest/APIReference/API_DescribeDBInstances.html
func (p *Provider) InstanceDetails(ctx context.Context, instance types.Instance) (*types.InstanceDetails, error) {
	clients, err := p.clientsFor(ctx, instance)
	if err != nil {
		return nil, err
	}

	out, err := clients.rds.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(instance.ID),
	})
	if err != nil {
		return nil, classifyError("describing db instances", instance.ID, err)
	}

	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("%s: %w", instance.ID, types.ErrInstanceNotFound)
	}
	if len(out.DBInstances) > 1 {
		// An identifier is unique per account and region, take the first
		// record if the API ever returns more.
		p.log.Debugf("describe returned %d records for %s, using the first", len(out.DBInstances), instance.ID)
	}

	return detailsFromDBInstance(instance.ID, out.DBInstances[0]), nil
}

func detailsFromDBInstance(id string, db rdstypes.DBInstance) *types.InstanceDetails {
	details := &types.InstanceDetails{
		ID:                 lo.CoalesceOrEmpty(aws.ToString(db.DBInstanceIdentifier), id),
		StorageClass:       volumelimit.ParseStorageClass(aws.ToString(db.StorageType)),
		AllocatedStorageGB: int64(aws.ToInt32(db.AllocatedStorage)),
	}
	if db.Iops != nil && *db.Iops > 0 {
		details.ProvisionedIOPS = lo.ToPtr(int64(*db.Iops))
	}
	return details
}

func classifyError(op, id string, err error) error {
	var notFound *rdstypes.DBInstanceNotFoundFault
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", id, types.ErrInstanceNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := authErrorCodes[apiErr.ErrorCode()]; ok {
			err = fmt.Errorf("%w: %w", types.ErrAuth, err)
		}
	}
	return &types.RemoteError{Op: op, Err: err}
}
