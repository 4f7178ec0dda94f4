package awssecurity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

var (
	cis211 = check{models.ServiceS3, "CIS-2.1.1"}
	cis212 = check{models.ServiceS3, "CIS-2.1.2"}
	cis213 = check{models.ServiceS3, "CIS-2.1.3"}
)

// bucketRef is a bucket name with the region it lives in ("" when unknown).
type bucketRef struct {
	Name   string
	Region string
}

// listBuckets returns every bucket in the account. The ListBuckets paginator
// handles accounts with many buckets.
func listBuckets(ctx context.Context, client s3APIClient) ([]bucketRef, error) {
	paginator := s3svc.NewListBucketsPaginator(client, &s3svc.ListBucketsInput{})
	var buckets []bucketRef
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list S3 buckets: %w", err)
		}
		for _, b := range page.Buckets {
			buckets = append(buckets, bucketRef{Name: aws.ToString(b.Name), Region: aws.ToString(b.BucketRegion)})
		}
	}
	return buckets, nil
}

// runS3 is the s3 check provider. A failed bucket listing prevents every
// check from running and is returned as an error. An account without buckets
// yields no findings.
func (s *Suite) runS3(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	clients := s.newRegionalClients(session)

	buckets, err := listBuckets(ctx, clients.get("").S3)
	if err != nil {
		return nil, err
	}

	var findings []models.Finding
	for _, b := range buckets {
		client := clients.get(b.Region).S3
		findings = append(findings,
			checkBucketEncryption(ctx, client, b.Name),
			checkBucketSecureTransport(ctx, client, b.Name),
			checkBucketPublicAccessBlock(ctx, client, b.Name),
		)
	}
	return findings, nil
}

// checkBucketEncryption implements CIS-2.1.1: default encryption configured.
func checkBucketEncryption(ctx context.Context, client s3APIClient, name string) models.Finding {
	_, err := client.GetBucketEncryption(ctx, &s3svc.GetBucketEncryptionInput{Bucket: aws.String(name)})
	if err == nil {
		return cis211.pass(name, "Encryption enabled")
	}
	if common.ErrorCode(err) == "ServerSideEncryptionConfigurationNotFoundError" {
		return cis211.fail(name, "No bucket encryption configured",
			"Enable default encryption:\n"+
				fmt.Sprintf("aws s3api put-bucket-encryption --bucket %s ", name)+
				`--server-side-encryption-configuration '{"Rules":[{"ApplyServerSideEncryptionByDefault":{"SSEAlgorithm":"AES256"}}]}'`)
	}
	return cis211.errored(name, err, "Add s3:GetEncryptionConfiguration permission")
}

// checkBucketSecureTransport implements CIS-2.1.2: the bucket policy denies
// requests made without TLS.
func checkBucketSecureTransport(ctx context.Context, client s3APIClient, name string) models.Finding {
	out, err := client.GetBucketPolicy(ctx, &s3svc.GetBucketPolicyInput{Bucket: aws.String(name)})
	if err != nil {
		if common.ErrorCode(err) == "NoSuchBucketPolicy" {
			return cis212.fail(name, "No bucket policy configured",
				"Create a policy that denies access when aws:SecureTransport is false")
		}
		return cis212.errored(name, err, "Add s3:GetBucketPolicy permission")
	}

	denies, err := policyDeniesInsecureTransport(aws.ToString(out.Policy))
	if err != nil {
		return cis212.errored(name, err, "Verify the bucket policy is valid JSON")
	}
	if denies {
		return cis212.pass(name, "Bucket policy denies non-HTTPS access")
	}
	return cis212.fail(name, "No Deny statement for non-HTTPS access found",
		fmt.Sprintf(`Apply a bucket policy statement {"Effect": "Deny", "Principal": "*", "Action": "s3:*", "Resource": "arn:aws:s3:::%s/*", "Condition": {"Bool": {"aws:SecureTransport": "false"}}}`, name))
}

// checkBucketPublicAccessBlock implements CIS-2.1.3: all four public access
// block settings enabled.
func checkBucketPublicAccessBlock(ctx context.Context, client s3APIClient, name string) models.Finding {
	remediation := "Enable full public access blocking:\n" +
		fmt.Sprintf("aws s3api put-public-access-block --bucket %s ", name) +
		"--public-access-block-configuration BlockPublicAcls=true,IgnorePublicAcls=true,BlockPublicPolicy=true,RestrictPublicBuckets=true"

	out, err := client.GetPublicAccessBlock(ctx, &s3svc.GetPublicAccessBlockInput{Bucket: aws.String(name)})
	if err != nil {
		if common.ErrorCode(err) == "NoSuchPublicAccessBlockConfiguration" {
			return cis213.fail(name, "No public access block configuration", remediation)
		}
		return cis213.errored(name, err, "Add s3:GetBucketPublicAccessBlock permission")
	}

	cfg := out.PublicAccessBlockConfiguration
	if cfg != nil &&
		aws.ToBool(cfg.BlockPublicAcls) &&
		aws.ToBool(cfg.IgnorePublicAcls) &&
		aws.ToBool(cfg.BlockPublicPolicy) &&
		aws.ToBool(cfg.RestrictPublicBuckets) {
		return cis213.pass(name, "Public access fully blocked")
	}
	return cis213.fail(name, "Incomplete public access restrictions", remediation)
}

// policyDocument is the subset of an IAM policy document needed here.
// Statement may be a single object or an array.
type policyDocument struct {
	Statement json.RawMessage `json:"Statement"`
}

type policyStatement struct {
	Effect    string                                `json:"Effect"`
	Condition map[string]map[string]json.RawMessage `json:"Condition"`
}

// policyDeniesInsecureTransport reports whether doc has a Deny statement
// conditioned on aws:SecureTransport being false.
func policyDeniesInsecureTransport(doc string) (bool, error) {
	var pd policyDocument
	if err := json.Unmarshal([]byte(doc), &pd); err != nil {
		return false, fmt.Errorf("parse bucket policy: %w", err)
	}

	var statements []policyStatement
	if len(pd.Statement) > 0 && pd.Statement[0] == '{' {
		var one policyStatement
		if err := json.Unmarshal(pd.Statement, &one); err != nil {
			return false, fmt.Errorf("parse bucket policy statement: %w", err)
		}
		statements = []policyStatement{one}
	} else if len(pd.Statement) > 0 {
		if err := json.Unmarshal(pd.Statement, &statements); err != nil {
			return false, fmt.Errorf("parse bucket policy statements: %w", err)
		}
	}

	for _, st := range statements {
		if st.Effect != "Deny" {
			continue
		}
		for key, value := range st.Condition["Bool"] {
			if strings.EqualFold(key, "aws:SecureTransport") && conditionIsFalse(value) {
				return true, nil
			}
		}
	}
	return false, nil
}

// conditionIsFalse accepts "false", false and ["false"].
func conditionIsFalse(raw json.RawMessage) bool {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.EqualFold(s, "false")
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return !b
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		for _, v := range list {
			if strings.EqualFold(v, "false") {
				return true
			}
		}
	}
	return false
}
