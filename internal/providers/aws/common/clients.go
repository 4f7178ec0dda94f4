package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ---------------------------------------------------------------------------
// Per-service client interfaces
//
// Each interface covers only the operations used by this package. Narrow
// interfaces keep test doubles small: a struct with the one or two methods
// and canned responses is enough.
// ---------------------------------------------------------------------------

// STSClient is the subset of STS operations used by the validator.
type STSClient interface {
	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// EC2RegionClient is the subset of EC2 operations used for region discovery.
type EC2RegionClient interface {
	DescribeRegions(
		ctx context.Context,
		params *ec2.DescribeRegionsInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeRegionsOutput, error)
}

// STSFactory creates an STS client from an aws.Config.
// Swap this in tests to inject a fake.
type STSFactory func(cfg aws.Config) STSClient

// EC2RegionFactory creates an EC2 region client from an aws.Config.
type EC2RegionFactory func(cfg aws.Config) EC2RegionClient

// NewSTSClient is the production STSFactory. Retries are disabled so a
// throttled or failing validation costs a single request.
func NewSTSClient(cfg aws.Config) STSClient {
	return sts.NewFromConfig(cfg, func(o *sts.Options) {
		o.Retryer = aws.NopRetryer{}
	})
}

// NewEC2RegionClient is the production EC2RegionFactory.
func NewEC2RegionClient(cfg aws.Config) EC2RegionClient {
	return ec2.NewFromConfig(cfg)
}
