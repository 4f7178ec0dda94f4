package awssecurity

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudwatchsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	logssvc "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	efssvc "github.com/aws/aws-sdk-go-v2/service/efs"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	kmssvc "github.com/aws/aws-sdk-go-v2/service/kms"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
)

// iamAPIClient is the narrow IAM interface used for root account, password
// policy and console user checks. It embeds ListUsersAPIClient so the SDK
// paginator can be used directly.
type iamAPIClient interface {
	iamsvc.ListUsersAPIClient
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	GetLoginProfile(ctx context.Context, params *iamsvc.GetLoginProfileInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error)
	GetAccountSummary(ctx context.Context, params *iamsvc.GetAccountSummaryInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error)
	GetAccountPasswordPolicy(ctx context.Context, params *iamsvc.GetAccountPasswordPolicyInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountPasswordPolicyOutput, error)
	GenerateCredentialReport(ctx context.Context, params *iamsvc.GenerateCredentialReportInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GenerateCredentialReportOutput, error)
	GetCredentialReport(ctx context.Context, params *iamsvc.GetCredentialReportInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetCredentialReportOutput, error)
}

// s3APIClient is the narrow S3 interface covering bucket listing and the
// per-bucket encryption, policy, public access and logging lookups.
type s3APIClient interface {
	s3svc.ListBucketsAPIClient
	GetBucketEncryption(ctx context.Context, params *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error)
	GetBucketPolicy(ctx context.Context, params *s3svc.GetBucketPolicyInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3svc.GetPublicAccessBlockInput, optFns ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error)
	GetBucketLogging(ctx context.Context, params *s3svc.GetBucketLoggingInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketLoggingOutput, error)
}

// ec2APIClient is the narrow EC2 interface for instance, VPC, security group
// and flow log inspection.
type ec2APIClient interface {
	ec2svc.DescribeInstancesAPIClient
	DescribeInstanceAttribute(ctx context.Context, params *ec2svc.DescribeInstanceAttributeInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeInstanceAttributeOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2svc.DescribeVpcsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2svc.DescribeSecurityGroupsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeSecurityGroupsOutput, error)
	DescribeFlowLogs(ctx context.Context, params *ec2svc.DescribeFlowLogsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeFlowLogsOutput, error)
}

// rdsAPIClient is the narrow RDS interface. Only DescribeDBInstances is needed.
type rdsAPIClient interface {
	rdssvc.DescribeDBInstancesAPIClient
}

// efsAPIClient is the narrow EFS interface. Only DescribeFileSystems is needed.
type efsAPIClient interface {
	efssvc.DescribeFileSystemsAPIClient
}

// cloudTrailAPIClient is the narrow CloudTrail interface for trail
// configuration, logging status and event selectors.
type cloudTrailAPIClient interface {
	DescribeTrails(ctx context.Context, params *cloudtrailsvc.DescribeTrailsInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error)
	GetTrailStatus(ctx context.Context, params *cloudtrailsvc.GetTrailStatusInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.GetTrailStatusOutput, error)
	GetEventSelectors(ctx context.Context, params *cloudtrailsvc.GetEventSelectorsInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.GetEventSelectorsOutput, error)
}

// awsConfigAPIClient is the narrow AWS Config interface for checking that a
// recorder, its status and a delivery channel all exist.
type awsConfigAPIClient interface {
	DescribeConfigurationRecorders(ctx context.Context, params *configsvc.DescribeConfigurationRecordersInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecordersOutput, error)
	DescribeConfigurationRecorderStatus(ctx context.Context, params *configsvc.DescribeConfigurationRecorderStatusInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error)
	DescribeDeliveryChannels(ctx context.Context, params *configsvc.DescribeDeliveryChannelsInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeDeliveryChannelsOutput, error)
}

// kmsAPIClient is the narrow KMS interface for key rotation checks.
type kmsAPIClient interface {
	kmssvc.ListKeysAPIClient
	DescribeKey(ctx context.Context, params *kmssvc.DescribeKeyInput, optFns ...func(*kmssvc.Options)) (*kmssvc.DescribeKeyOutput, error)
	GetKeyRotationStatus(ctx context.Context, params *kmssvc.GetKeyRotationStatusInput, optFns ...func(*kmssvc.Options)) (*kmssvc.GetKeyRotationStatusOutput, error)
}

// logsAPIClient is the narrow CloudWatch Logs interface for metric filters.
type logsAPIClient interface {
	logssvc.DescribeMetricFiltersAPIClient
}

// cloudWatchAPIClient is the narrow CloudWatch interface for alarm lookup.
type cloudWatchAPIClient interface {
	DescribeAlarmsForMetric(ctx context.Context, params *cloudwatchsvc.DescribeAlarmsForMetricInput, optFns ...func(*cloudwatchsvc.Options)) (*cloudwatchsvc.DescribeAlarmsForMetricOutput, error)
}

// secClients bundles all AWS service clients used by the check providers.
type secClients struct {
	IAM        iamAPIClient
	S3         s3APIClient
	EC2        ec2APIClient
	RDS        rdsAPIClient
	EFS        efsAPIClient
	CloudTrail cloudTrailAPIClient
	Config     awsConfigAPIClient
	KMS        kmsAPIClient
	Logs       logsAPIClient
	CloudWatch cloudWatchAPIClient
}

// secClientFactory creates secClients from an AWS config.
// Injection point: tests replace this with a function returning fake clients.
type secClientFactory func(cfg aws.Config) *secClients

// newDefaultSecClients creates production AWS SDK clients from the given config.
func newDefaultSecClients(cfg aws.Config) *secClients {
	return &secClients{
		IAM:        iamsvc.NewFromConfig(cfg),
		S3:         s3svc.NewFromConfig(cfg),
		EC2:        ec2svc.NewFromConfig(cfg),
		RDS:        rdssvc.NewFromConfig(cfg),
		EFS:        efssvc.NewFromConfig(cfg),
		CloudTrail: cloudtrailsvc.NewFromConfig(cfg),
		Config:     configsvc.NewFromConfig(cfg),
		KMS:        kmssvc.NewFromConfig(cfg),
		Logs:       logssvc.NewFromConfig(cfg),
		CloudWatch: cloudwatchsvc.NewFromConfig(cfg),
	}
}
