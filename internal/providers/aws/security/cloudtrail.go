package awssecurity

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

var (
	cis31 = check{models.ServiceLogging, "CIS-3.1"}
	cis32 = check{models.ServiceLogging, "CIS-3.2"}
	cis34 = check{models.ServiceLogging, "CIS-3.4"}
	cis35 = check{models.ServiceLogging, "CIS-3.5"}
	cis38 = check{models.ServiceLogging, "CIS-3.8"}
	cis39 = check{models.ServiceLogging, "CIS-3.9"}
)

const s3ObjectType = "AWS::S3::Object"

// trailChecks are the checks evaluated from a region's trail list.
var trailChecks = []check{cis31, cis32, cis34, cis35, cis38, cis39}

// regionTrail is a trail as seen from one region, with its event selectors
// fetched at most once.
type regionTrail struct {
	trail cttypes.Trail

	selectorsLoaded bool
	selectors       *cloudtrailsvc.GetEventSelectorsOutput
	selectorsErr    error
}

func (t *regionTrail) name() string { return aws.ToString(t.trail.Name) }

// ref identifies the trail in API calls. The ARN works for shadow copies of
// multi-region trails seen from a non-home region.
func (t *regionTrail) ref() *string {
	if t.trail.TrailARN != nil {
		return t.trail.TrailARN
	}
	return t.trail.Name
}

// key identifies the trail across regions. Single-region trails in different
// regions may share a name but never an ARN.
func (t *regionTrail) key() string { return aws.ToString(t.ref()) }

func (t *regionTrail) eventSelectors(ctx context.Context, client cloudTrailAPIClient) (*cloudtrailsvc.GetEventSelectorsOutput, error) {
	if !t.selectorsLoaded {
		t.selectors, t.selectorsErr = client.GetEventSelectors(ctx, &cloudtrailsvc.GetEventSelectorsInput{TrailName: t.ref()})
		t.selectorsLoaded = true
	}
	return t.selectors, t.selectorsErr
}

// trailAudit carries the state shared by the trail checks across regions.
type trailAudit struct {
	clients *regionalClients

	// seen de-duplicates trails by ARN for CIS-3.1 and CIS-3.2.
	seen map[string]bool

	buckets    []bucketRef
	bucketsErr error
}

func (a *trailAudit) bucketRegion(name string) string {
	for _, b := range a.buckets {
		if b.Name == name {
			return b.Region
		}
	}
	return ""
}

// auditTrails evaluates every trail check for one region.
func (a *trailAudit) auditTrails(ctx context.Context, region string) []models.Finding {
	client := a.clients.get(region).CloudTrail

	out, err := client.DescribeTrails(ctx, &cloudtrailsvc.DescribeTrailsInput{})
	if err != nil {
		resource := regional("CloudTrail", region)
		findings := make([]models.Finding, 0, len(trailChecks))
		for _, c := range trailChecks {
			findings = append(findings, c.errored(resource, err, "Ensure the IAM role has cloudtrail:DescribeTrails permission"))
		}
		return findings
	}

	trails := make([]*regionTrail, 0, len(out.TrailList))
	for _, t := range out.TrailList {
		trails = append(trails, &regionTrail{trail: t})
	}

	var findings []models.Finding
	if len(trails) == 0 {
		findings = append(findings, cis31.fail(region, "No CloudTrail trails configured in this region",
			"Create a multi-region trail:\n"+
				"aws cloudtrail create-trail --name <trail-name> --bucket-name <s3-bucket> --is-multi-region-trail"))
	}

	for _, t := range trails {
		if !a.seen[t.key()] {
			a.seen[t.key()] = true
			findings = append(findings, checkTrailEnabled(ctx, client, t, region), checkLogFileValidation(t, region))
		}
		findings = append(findings, a.checkTrailBucketLogging(ctx, t, region), checkTrailEncryption(t, region))
	}

	findings = append(findings, a.checkObjectLogging(ctx, client, trails, region)...)
	return findings
}

// checkTrailEnabled implements CIS-3.1: the trail is multi-region, logging,
// and records all management events.
func checkTrailEnabled(ctx context.Context, client cloudTrailAPIClient, t *regionTrail, region string) models.Finding {
	name := t.name()
	resource := regional(name, region)

	status, err := client.GetTrailStatus(ctx, &cloudtrailsvc.GetTrailStatusInput{Name: t.ref()})
	if err != nil {
		return cis31.errored(resource, err, "Ensure the IAM role has cloudtrail:GetTrailStatus permission")
	}
	selectors, err := t.eventSelectors(ctx, client)
	if err != nil {
		return cis31.errored(resource, err, "Ensure the IAM role has cloudtrail:GetEventSelectors permission")
	}

	multiRegion := aws.ToBool(t.trail.IsMultiRegionTrail)
	logging := aws.ToBool(status.IsLogging)
	management := logsManagementEvents(selectors)

	if multiRegion && logging && management {
		return cis31.pass(resource, "Multi-region CloudTrail enabled with management event logging")
	}

	var steps []string
	if !multiRegion {
		steps = append(steps, fmt.Sprintf("aws cloudtrail update-trail --name %s --is-multi-region-trail", name))
	}
	if !logging {
		steps = append(steps, fmt.Sprintf("aws cloudtrail start-logging --name %s", name))
	}
	if !management {
		steps = append(steps, fmt.Sprintf("Update trail %s to log all read and write management events", name))
	}
	return cis31.fail(resource,
		fmt.Sprintf("MultiRegion: %t, IsLogging: %t, ManagementEvents: %t", multiRegion, logging, management),
		strings.Join(steps, "\n"))
}

// logsManagementEvents reports whether a basic selector records all read and
// write management events, or an advanced selector selects the Management
// event category.
func logsManagementEvents(out *cloudtrailsvc.GetEventSelectorsOutput) bool {
	if out == nil {
		return false
	}
	for _, sel := range out.EventSelectors {
		if aws.ToBool(sel.IncludeManagementEvents) && (sel.ReadWriteType == cttypes.ReadWriteTypeAll || sel.ReadWriteType == "") {
			return true
		}
	}
	for _, sel := range out.AdvancedEventSelectors {
		fields := advancedFields(sel)
		if category, ok := fields["eventCategory"]; ok && slices.Contains(category.Equals, "Management") {
			if ro, ok := fields["readOnly"]; !ok || len(ro.Equals) == 0 {
				return true
			}
		}
	}
	return false
}

// checkLogFileValidation implements CIS-3.2.
func checkLogFileValidation(t *regionTrail, region string) models.Finding {
	name := t.name()
	resource := regional(name, region)
	if aws.ToBool(t.trail.LogFileValidationEnabled) {
		return cis32.pass(resource, "Log file validation is enabled")
	}
	return cis32.fail(resource, "Log file validation is NOT enabled",
		fmt.Sprintf("Enable log file validation:\naws cloudtrail update-trail --name %s --enable-log-file-validation", name))
}

// checkTrailBucketLogging implements CIS-3.4: server access logging is
// enabled on the bucket the trail delivers to.
func (a *trailAudit) checkTrailBucketLogging(ctx context.Context, t *regionTrail, region string) models.Finding {
	bucket := aws.ToString(t.trail.S3BucketName)
	if bucket == "" {
		return cis34.fail(regional(t.name(), region), "No S3 bucket associated with this trail",
			"Ensure CloudTrail is configured with an S3 bucket.\n"+
				"You can find the bucket using:\n"+
				fmt.Sprintf("aws cloudtrail describe-trails --region %s --query trailList[*].S3BucketName", region))
	}

	resource := regional(bucket, region)
	client := a.clients.get(a.bucketRegion(bucket)).S3
	out, err := client.GetBucketLogging(ctx, &s3svc.GetBucketLoggingInput{Bucket: aws.String(bucket)})
	if err != nil {
		return cis34.errored(resource, err, "Ensure the IAM role has s3:GetBucketLogging permission")
	}
	if out.LoggingEnabled != nil {
		return cis34.pass(resource, "Server access logging is enabled")
	}
	return cis34.fail(resource, "Server access logging is not enabled",
		"Enable server access logging on the CloudTrail bucket:\n"+
			fmt.Sprintf("aws s3api put-bucket-logging --bucket %s ", bucket)+
			`--bucket-logging-status '{"LoggingEnabled":{"TargetBucket":"<target-bucket>","TargetPrefix":"<log-prefix>"}}'`)
}

// checkTrailEncryption implements CIS-3.5: trail logs are encrypted with a
// KMS key.
func checkTrailEncryption(t *regionTrail, region string) models.Finding {
	name := t.name()
	resource := regional(name, region)
	if key := aws.ToString(t.trail.KmsKeyId); key != "" {
		return cis35.pass(resource, fmt.Sprintf("Trail is encrypted with KMS key: %s", key))
	}
	return cis35.fail(resource, "Trail is not encrypted with a KMS customer managed key",
		"1. Choose or create a KMS customer managed key.\n"+
			"2. Enable KMS encryption on the trail:\n"+
			fmt.Sprintf("aws cloudtrail update-trail --name %s --kms-id <kms-key-id>", name))
}

// checkObjectLogging implements CIS-3.8 (object-level write events) and
// CIS-3.9 (object-level read events) for every bucket, against the trails
// visible from region. A trail whose selectors cannot be read is skipped.
func (a *trailAudit) checkObjectLogging(ctx context.Context, client cloudTrailAPIClient, trails []*regionTrail, region string) []models.Finding {
	if a.bucketsErr != nil {
		resource := regional("S3 buckets", region)
		const remediation = "Ensure the IAM role has s3:ListAllMyBuckets permission"
		return []models.Finding{
			cis38.errored(resource, a.bucketsErr, remediation),
			cis39.errored(resource, a.bucketsErr, remediation),
		}
	}
	if len(a.buckets) == 0 {
		return nil
	}
	if len(trails) == 0 {
		resource := regional("All buckets", region)
		return []models.Finding{
			cis38.fail(resource, "No CloudTrail trail found in region",
				"Create a CloudTrail trail in the region and enable object-level logging for write events."),
			cis39.fail(resource, "No CloudTrail trail found in region",
				"Create a CloudTrail trail in the region and enable object-level logging for read events."),
		}
	}

	var selectors []*cloudtrailsvc.GetEventSelectorsOutput
	for _, t := range trails {
		out, err := t.eventSelectors(ctx, client)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("trail", t.name()).Str("region", region).
				Msg("skipping trail for object-level logging")
			continue
		}
		selectors = append(selectors, out)
	}

	findings := make([]models.Finding, 0, 2*len(a.buckets))
	for _, b := range a.buckets {
		var write, read bool
		for _, out := range selectors {
			w, r := s3DataEvents(out, b.Name)
			write, read = write || w, read || r
		}

		resource := regional(b.Name, region)
		if write {
			findings = append(findings, cis38.pass(resource, "Object-level write events are being logged in CloudTrail"))
		} else {
			findings = append(findings, cis38.fail(resource, "Object-level write events are not logged", objectLoggingRemediation(region, b.Name, "WriteOnly")))
		}
		if read {
			findings = append(findings, cis39.pass(resource, "Object-level read events are being logged in CloudTrail"))
		} else {
			findings = append(findings, cis39.fail(resource, "Object-level read events are not logged", objectLoggingRemediation(region, b.Name, "ReadOnly")))
		}
	}
	return findings
}

func objectLoggingRemediation(region, bucket, readWrite string) string {
	return fmt.Sprintf("Enable object-level logging in CloudTrail:\n"+
		"aws cloudtrail put-event-selectors --region %s --trail-name <trail-name> "+
		`--event-selectors '[{"ReadWriteType": "%s", "IncludeManagementEvents": true, `+
		`"DataResources": [{"Type": "AWS::S3::Object", "Values": ["arn:aws:s3:::%s/"]}]}]'`,
		region, readWrite, bucket)
}

// s3DataEvents reports whether the selectors log S3 object write and read
// data events for bucket.
func s3DataEvents(out *cloudtrailsvc.GetEventSelectorsOutput, bucket string) (write, read bool) {
	if out == nil {
		return false, false
	}

	for _, sel := range out.EventSelectors {
		covered := false
		for _, dr := range sel.DataResources {
			if aws.ToString(dr.Type) != s3ObjectType {
				continue
			}
			if slices.ContainsFunc(dr.Values, func(v string) bool { return arnCoversBucket(v, bucket) }) {
				covered = true
			}
		}
		if !covered {
			continue
		}
		switch sel.ReadWriteType {
		case cttypes.ReadWriteTypeWriteOnly:
			write = true
		case cttypes.ReadWriteTypeReadOnly:
			read = true
		default:
			write, read = true, true
		}
	}

	for _, sel := range out.AdvancedEventSelectors {
		fields := advancedFields(sel)
		if f, ok := fields["eventCategory"]; !ok || !slices.Contains(f.Equals, "Data") {
			continue
		}
		if f, ok := fields["resources.type"]; !ok || !slices.Contains(f.Equals, s3ObjectType) {
			continue
		}
		if f, ok := fields["resources.ARN"]; ok {
			match := slices.ContainsFunc(f.Equals, func(v string) bool { return arnCoversBucket(v, bucket) }) ||
				slices.ContainsFunc(f.StartsWith, func(v string) bool { return arnCoversBucket(v, bucket) })
			if !match {
				continue
			}
		}
		ro, ok := fields["readOnly"]
		switch {
		case !ok || len(ro.Equals) == 0:
			write, read = true, true
		case slices.Contains(ro.Equals, "true"):
			read = true
		case slices.Contains(ro.Equals, "false"):
			write = true
		}
	}
	return write, read
}

// arnCoversBucket reports whether a data resource ARN value selects objects
// in bucket. "arn:aws:s3" and "arn:aws:s3:::" select every bucket.
func arnCoversBucket(value, bucket string) bool {
	switch value {
	case "arn:aws:s3", "arn:aws:s3:::", "arn:aws:s3:::" + bucket, "arn:aws:s3:::" + bucket + "/":
		return true
	}
	return strings.HasPrefix(value, "arn:aws:s3:::"+bucket+"/")
}

func advancedFields(sel cttypes.AdvancedEventSelector) map[string]cttypes.AdvancedFieldSelector {
	fields := make(map[string]cttypes.AdvancedFieldSelector, len(sel.FieldSelectors))
	for _, f := range sel.FieldSelectors {
		fields[aws.ToString(f.Field)] = f
	}
	return fields
}
