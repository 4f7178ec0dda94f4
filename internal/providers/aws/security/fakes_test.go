package awssecurity

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	cloudwatchsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	logssvc "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	configtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	efssvc "github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	kmssvc "github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// ── shared helpers ───────────────────────────────────────────────────────────

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func testSession() *common.Session {
	return &common.Session{
		AccountID: "123456789012",
		Region:    "us-east-1",
		Config:    aws.Config{Region: "us-east-1"},
	}
}

// singleFactory returns the same client set for every region.
func singleFactory(c *secClients) secClientFactory {
	return func(aws.Config) *secClients { return c }
}

// regionFactory returns the client set for the config's region, falling back
// to fallback for unknown regions.
func regionFactory(byRegion map[string]*secClients, fallback *secClients) secClientFactory {
	return func(cfg aws.Config) *secClients {
		if c, ok := byRegion[cfg.Region]; ok {
			return c
		}
		return fallback
	}
}

type staticRegions []string

func (r staticRegions) ActiveRegions(context.Context, *common.Session) ([]string, error) {
	return r, nil
}

// testSuite builds a Suite over fakes with a fixed clock and a no-op sleep.
func testSuite(f secClientFactory, opts Options) *Suite {
	s := NewSuiteWithFactory(f, opts)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

// byCheck returns the findings with the given check ID.
func byCheck(findings []models.Finding, id string) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if f.CheckID == id {
			out = append(out, f)
		}
	}
	return out
}

// only asserts exactly one finding with id exists and returns it.
func only(t *testing.T, findings []models.Finding, id string) models.Finding {
	t.Helper()
	got := byCheck(findings, id)
	if len(got) != 1 {
		t.Fatalf("%s: expected exactly 1 finding, got %d: %+v", id, len(got), got)
	}
	return got[0]
}

func assertStatus(t *testing.T, f models.Finding, want models.Status) {
	t.Helper()
	if f.Status != want {
		t.Errorf("%s %s: status got %s, want %s (evidence: %s)", f.CheckID, f.Resource, f.Status, want, f.Evidence)
	}
}

// ── IAM fake ─────────────────────────────────────────────────────────────────

type fakeIAM struct {
	users    []iamtypes.User
	usersErr error

	// consoleUsers have a login profile; loginErr overrides per user.
	consoleUsers map[string]bool
	loginErr     map[string]error
	mfaDevices   map[string]int
	mfaErr       error

	summary    map[string]int32
	summaryErr error

	passwordPolicy *iamtypes.PasswordPolicy
	passwordErr    error

	reportStates  []iamtypes.ReportStateType
	generateCalls int
	generateErr   error
	report        []byte
	reportErr     error
}

func (f *fakeIAM) ListUsers(_ context.Context, _ *iamsvc.ListUsersInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListUsersOutput, error) {
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return &iamsvc.ListUsersOutput{Users: f.users}, nil
}

func (f *fakeIAM) ListMFADevices(_ context.Context, in *iamsvc.ListMFADevicesInput, _ ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error) {
	if f.mfaErr != nil {
		return nil, f.mfaErr
	}
	devices := make([]iamtypes.MFADevice, f.mfaDevices[aws.ToString(in.UserName)])
	return &iamsvc.ListMFADevicesOutput{MFADevices: devices}, nil
}

func (f *fakeIAM) GetLoginProfile(_ context.Context, in *iamsvc.GetLoginProfileInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error) {
	name := aws.ToString(in.UserName)
	if err, ok := f.loginErr[name]; ok {
		return nil, err
	}
	if !f.consoleUsers[name] {
		return nil, apiErr("NoSuchEntity")
	}
	return &iamsvc.GetLoginProfileOutput{LoginProfile: &iamtypes.LoginProfile{UserName: in.UserName}}, nil
}

func (f *fakeIAM) GetAccountSummary(_ context.Context, _ *iamsvc.GetAccountSummaryInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return &iamsvc.GetAccountSummaryOutput{SummaryMap: f.summary}, nil
}

func (f *fakeIAM) GetAccountPasswordPolicy(_ context.Context, _ *iamsvc.GetAccountPasswordPolicyInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetAccountPasswordPolicyOutput, error) {
	if f.passwordErr != nil {
		return nil, f.passwordErr
	}
	return &iamsvc.GetAccountPasswordPolicyOutput{PasswordPolicy: f.passwordPolicy}, nil
}

func (f *fakeIAM) GenerateCredentialReport(_ context.Context, _ *iamsvc.GenerateCredentialReportInput, _ ...func(*iamsvc.Options)) (*iamsvc.GenerateCredentialReportOutput, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	state := iamtypes.ReportStateTypeComplete
	if i := f.generateCalls - 1; i < len(f.reportStates) {
		state = f.reportStates[i]
	}
	return &iamsvc.GenerateCredentialReportOutput{State: state}, nil
}

func (f *fakeIAM) GetCredentialReport(_ context.Context, _ *iamsvc.GetCredentialReportInput, _ ...func(*iamsvc.Options)) (*iamsvc.GetCredentialReportOutput, error) {
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return &iamsvc.GetCredentialReportOutput{Content: f.report}, nil
}

// ── S3 fake ──────────────────────────────────────────────────────────────────

type fakeS3 struct {
	buckets []s3types.Bucket
	listErr error

	// Missing keys mean "configured and compliant" for encryption and
	// "no policy" for policies.
	encryptionErr map[string]error
	policies      map[string]string
	policyErr     map[string]error
	publicAccess  map[string]*s3types.PublicAccessBlockConfiguration
	publicErr     map[string]error
	logging       map[string]bool
	loggingErr    map[string]error

	loggingCalls []string
}

func (f *fakeS3) ListBuckets(_ context.Context, _ *s3svc.ListBucketsInput, _ ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &s3svc.ListBucketsOutput{Buckets: f.buckets}, nil
}

func (f *fakeS3) GetBucketEncryption(_ context.Context, in *s3svc.GetBucketEncryptionInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error) {
	if err := f.encryptionErr[aws.ToString(in.Bucket)]; err != nil {
		return nil, err
	}
	return &s3svc.GetBucketEncryptionOutput{}, nil
}

func (f *fakeS3) GetBucketPolicy(_ context.Context, in *s3svc.GetBucketPolicyInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyOutput, error) {
	name := aws.ToString(in.Bucket)
	if err := f.policyErr[name]; err != nil {
		return nil, err
	}
	doc, ok := f.policies[name]
	if !ok {
		return nil, apiErr("NoSuchBucketPolicy")
	}
	return &s3svc.GetBucketPolicyOutput{Policy: aws.String(doc)}, nil
}

func (f *fakeS3) GetPublicAccessBlock(_ context.Context, in *s3svc.GetPublicAccessBlockInput, _ ...func(*s3svc.Options)) (*s3svc.GetPublicAccessBlockOutput, error) {
	name := aws.ToString(in.Bucket)
	if err := f.publicErr[name]; err != nil {
		return nil, err
	}
	cfg, ok := f.publicAccess[name]
	if !ok {
		return nil, apiErr("NoSuchPublicAccessBlockConfiguration")
	}
	return &s3svc.GetPublicAccessBlockOutput{PublicAccessBlockConfiguration: cfg}, nil
}

func (f *fakeS3) GetBucketLogging(_ context.Context, in *s3svc.GetBucketLoggingInput, _ ...func(*s3svc.Options)) (*s3svc.GetBucketLoggingOutput, error) {
	name := aws.ToString(in.Bucket)
	f.loggingCalls = append(f.loggingCalls, name)
	if err := f.loggingErr[name]; err != nil {
		return nil, err
	}
	out := &s3svc.GetBucketLoggingOutput{}
	if f.logging[name] {
		out.LoggingEnabled = &s3types.LoggingEnabled{TargetBucket: aws.String("logs"), TargetPrefix: aws.String(name)}
	}
	return out, nil
}

func fullBlock() *s3types.PublicAccessBlockConfiguration {
	return &s3types.PublicAccessBlockConfiguration{
		BlockPublicAcls:       aws.Bool(true),
		IgnorePublicAcls:      aws.Bool(true),
		BlockPublicPolicy:     aws.Bool(true),
		RestrictPublicBuckets: aws.Bool(true),
	}
}

// ── EC2 fake ─────────────────────────────────────────────────────────────────

type fakeEC2 struct {
	instances    []ec2types.Instance
	instancesErr error

	userData map[string]string
	attrErr  map[string]error

	vpcs    []ec2types.Vpc
	vpcsErr error

	// defaultSG maps VPC ID to its default security group ID.
	defaultSG map[string]string
	sgErr     error

	flowLogs map[string][]ec2types.FlowLog
	flowErr  map[string]error

	lastFlowInput *ec2svc.DescribeFlowLogsInput
}

func filterValues(filters []ec2types.Filter, name string) ([]string, bool) {
	for _, f := range filters {
		if aws.ToString(f.Name) == name {
			return f.Values, true
		}
	}
	return nil, false
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2svc.DescribeInstancesInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeInstancesOutput, error) {
	if f.instancesErr != nil {
		return nil, f.instancesErr
	}
	groups, byGroup := filterValues(in.Filters, "instance.group-id")
	var matched []ec2types.Instance
	for _, inst := range f.instances {
		if byGroup && !slices.ContainsFunc(inst.SecurityGroups, func(g ec2types.GroupIdentifier) bool {
			return slices.Contains(groups, aws.ToString(g.GroupId))
		}) {
			continue
		}
		matched = append(matched, inst)
	}
	if len(matched) == 0 {
		return &ec2svc.DescribeInstancesOutput{}, nil
	}
	return &ec2svc.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: matched}}}, nil
}

func (f *fakeEC2) DescribeInstanceAttribute(_ context.Context, in *ec2svc.DescribeInstanceAttributeInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeInstanceAttributeOutput, error) {
	id := aws.ToString(in.InstanceId)
	if err := f.attrErr[id]; err != nil {
		return nil, err
	}
	out := &ec2svc.DescribeInstanceAttributeOutput{InstanceId: in.InstanceId}
	if data, ok := f.userData[id]; ok {
		out.UserData = &ec2types.AttributeValue{Value: aws.String(data)}
	}
	return out, nil
}

func (f *fakeEC2) DescribeVpcs(_ context.Context, _ *ec2svc.DescribeVpcsInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeVpcsOutput, error) {
	if f.vpcsErr != nil {
		return nil, f.vpcsErr
	}
	return &ec2svc.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, in *ec2svc.DescribeSecurityGroupsInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeSecurityGroupsOutput, error) {
	if f.sgErr != nil {
		return nil, f.sgErr
	}
	vpcIDs, _ := filterValues(in.Filters, "vpc-id")
	var groups []ec2types.SecurityGroup
	for _, vpcID := range vpcIDs {
		if sg, ok := f.defaultSG[vpcID]; ok {
			groups = append(groups, ec2types.SecurityGroup{GroupId: aws.String(sg), GroupName: aws.String("default"), VpcId: aws.String(vpcID)})
		}
	}
	return &ec2svc.DescribeSecurityGroupsOutput{SecurityGroups: groups}, nil
}

func (f *fakeEC2) DescribeFlowLogs(_ context.Context, in *ec2svc.DescribeFlowLogsInput, _ ...func(*ec2svc.Options)) (*ec2svc.DescribeFlowLogsOutput, error) {
	f.lastFlowInput = in
	ids, _ := filterValues(in.Filter, "resource-id")
	var logs []ec2types.FlowLog
	for _, id := range ids {
		if err := f.flowErr[id]; err != nil {
			return nil, err
		}
		logs = append(logs, f.flowLogs[id]...)
	}
	return &ec2svc.DescribeFlowLogsOutput{FlowLogs: logs}, nil
}

func instance(id string, groups ...string) ec2types.Instance {
	inst := ec2types.Instance{InstanceId: aws.String(id)}
	for _, g := range groups {
		inst.SecurityGroups = append(inst.SecurityGroups, ec2types.GroupIdentifier{GroupId: aws.String(g)})
	}
	return inst
}

func vpc(id string) ec2types.Vpc { return ec2types.Vpc{VpcId: aws.String(id)} }

// ── RDS / EFS fakes ──────────────────────────────────────────────────────────

type fakeRDS struct {
	instances []rdstypes.DBInstance
	err       error
	lastInput *rdssvc.DescribeDBInstancesInput
}

func (f *fakeRDS) DescribeDBInstances(_ context.Context, in *rdssvc.DescribeDBInstancesInput, _ ...func(*rdssvc.Options)) (*rdssvc.DescribeDBInstancesOutput, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &rdssvc.DescribeDBInstancesOutput{DBInstances: f.instances}, nil
}

type fakeEFS struct {
	filesystems []efstypes.FileSystemDescription
	err         error
}

func (f *fakeEFS) DescribeFileSystems(_ context.Context, _ *efssvc.DescribeFileSystemsInput, _ ...func(*efssvc.Options)) (*efssvc.DescribeFileSystemsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &efssvc.DescribeFileSystemsOutput{FileSystems: f.filesystems}, nil
}

// ── CloudTrail / Config / KMS fakes ──────────────────────────────────────────

type fakeCloudTrail struct {
	trails      []cttypes.Trail
	describeErr error

	logging   map[string]bool
	statusErr map[string]error

	selectors    map[string]*cloudtrailsvc.GetEventSelectorsOutput
	selectorsErr map[string]error

	selectorCalls int
}

func (f *fakeCloudTrail) DescribeTrails(_ context.Context, _ *cloudtrailsvc.DescribeTrailsInput, _ ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &cloudtrailsvc.DescribeTrailsOutput{TrailList: f.trails}, nil
}

func (f *fakeCloudTrail) GetTrailStatus(_ context.Context, in *cloudtrailsvc.GetTrailStatusInput, _ ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.GetTrailStatusOutput, error) {
	name := aws.ToString(in.Name)
	if err := f.statusErr[name]; err != nil {
		return nil, err
	}
	return &cloudtrailsvc.GetTrailStatusOutput{IsLogging: aws.Bool(f.logging[name])}, nil
}

func (f *fakeCloudTrail) GetEventSelectors(_ context.Context, in *cloudtrailsvc.GetEventSelectorsInput, _ ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.GetEventSelectorsOutput, error) {
	f.selectorCalls++
	name := aws.ToString(in.TrailName)
	if err := f.selectorsErr[name]; err != nil {
		return nil, err
	}
	if out, ok := f.selectors[name]; ok {
		return out, nil
	}
	return &cloudtrailsvc.GetEventSelectorsOutput{}, nil
}

// managementSelectors is the default selector set of a new trail.
func managementSelectors() *cloudtrailsvc.GetEventSelectorsOutput {
	return &cloudtrailsvc.GetEventSelectorsOutput{EventSelectors: []cttypes.EventSelector{{
		IncludeManagementEvents: aws.Bool(true),
		ReadWriteType:           cttypes.ReadWriteTypeAll,
	}}}
}

type fakeConfig struct {
	recorders   int
	recording   bool
	noStatus    bool
	channels    int
	recorderErr error
}

func (f *fakeConfig) DescribeConfigurationRecorders(_ context.Context, _ *configsvc.DescribeConfigurationRecordersInput, _ ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecordersOutput, error) {
	if f.recorderErr != nil {
		return nil, f.recorderErr
	}
	return &configsvc.DescribeConfigurationRecordersOutput{
		ConfigurationRecorders: make([]configtypes.ConfigurationRecorder, f.recorders),
	}, nil
}

func (f *fakeConfig) DescribeConfigurationRecorderStatus(_ context.Context, _ *configsvc.DescribeConfigurationRecorderStatusInput, _ ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error) {
	out := &configsvc.DescribeConfigurationRecorderStatusOutput{}
	if f.recorders > 0 && !f.noStatus {
		out.ConfigurationRecordersStatus = []configtypes.ConfigurationRecorderStatus{{Recording: f.recording}}
	}
	return out, nil
}

func (f *fakeConfig) DescribeDeliveryChannels(_ context.Context, _ *configsvc.DescribeDeliveryChannelsInput, _ ...func(*configsvc.Options)) (*configsvc.DescribeDeliveryChannelsOutput, error) {
	return &configsvc.DescribeDeliveryChannelsOutput{DeliveryChannels: make([]configtypes.DeliveryChannel, f.channels)}, nil
}

func compliantConfig() *fakeConfig { return &fakeConfig{recorders: 1, recording: true, channels: 1} }

type fakeKMS struct {
	keys     map[string]kmstypes.KeyMetadata
	order    []string
	rotation map[string]bool
	listErr  error

	rotationCalls []string
}

func (f *fakeKMS) ListKeys(_ context.Context, _ *kmssvc.ListKeysInput, _ ...func(*kmssvc.Options)) (*kmssvc.ListKeysOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &kmssvc.ListKeysOutput{}
	for _, id := range f.order {
		out.Keys = append(out.Keys, kmstypes.KeyListEntry{KeyId: aws.String(id)})
	}
	return out, nil
}

func (f *fakeKMS) DescribeKey(_ context.Context, in *kmssvc.DescribeKeyInput, _ ...func(*kmssvc.Options)) (*kmssvc.DescribeKeyOutput, error) {
	meta := f.keys[aws.ToString(in.KeyId)]
	return &kmssvc.DescribeKeyOutput{KeyMetadata: &meta}, nil
}

func (f *fakeKMS) GetKeyRotationStatus(_ context.Context, in *kmssvc.GetKeyRotationStatusInput, _ ...func(*kmssvc.Options)) (*kmssvc.GetKeyRotationStatusOutput, error) {
	id := aws.ToString(in.KeyId)
	f.rotationCalls = append(f.rotationCalls, id)
	return &kmssvc.GetKeyRotationStatusOutput{KeyRotationEnabled: f.rotation[id]}, nil
}

func (f *fakeKMS) add(id string, manager kmstypes.KeyManagerType, spec kmstypes.KeySpec, state kmstypes.KeyState) {
	if f.keys == nil {
		f.keys = make(map[string]kmstypes.KeyMetadata)
	}
	f.keys[id] = kmstypes.KeyMetadata{KeyId: aws.String(id), KeyManager: manager, KeySpec: spec, KeyState: state}
	f.order = append(f.order, id)
}

// ── CloudWatch fakes ─────────────────────────────────────────────────────────

type fakeLogs struct {
	filters []logstypes.MetricFilter
	err     error
}

func (f *fakeLogs) DescribeMetricFilters(_ context.Context, _ *logssvc.DescribeMetricFiltersInput, _ ...func(*logssvc.Options)) (*logssvc.DescribeMetricFiltersOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &logssvc.DescribeMetricFiltersOutput{MetricFilters: f.filters}, nil
}

type fakeCloudWatch struct {
	// alarms maps "namespace/metric" to alarm names.
	alarms map[string][]string
	err    error
}

func (f *fakeCloudWatch) DescribeAlarmsForMetric(_ context.Context, in *cloudwatchsvc.DescribeAlarmsForMetricInput, _ ...func(*cloudwatchsvc.Options)) (*cloudwatchsvc.DescribeAlarmsForMetricOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &cloudwatchsvc.DescribeAlarmsForMetricOutput{}
	for _, name := range f.alarms[aws.ToString(in.Namespace)+"/"+aws.ToString(in.MetricName)] {
		out.MetricAlarms = append(out.MetricAlarms, cwtypes.MetricAlarm{AlarmName: aws.String(name)})
	}
	return out, nil
}

func metricFilter(name, pattern, metric string) logstypes.MetricFilter {
	return logstypes.MetricFilter{
		FilterName:    aws.String(name),
		FilterPattern: aws.String(pattern),
		LogGroupName:  aws.String("cloudtrail-logs"),
		MetricTransformations: []logstypes.MetricTransformation{{
			MetricName:      aws.String(metric),
			MetricNamespace: aws.String("CISBenchmark"),
		}},
	}
}
