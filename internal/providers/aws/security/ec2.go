package awssecurity

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

var (
	cis213ec2 = check{models.ServiceEC2, "CIS-2.13"}
	cis27     = check{models.ServiceEC2, "CIS-2.7"}
)

// sensitiveKeywords are matched case-insensitively against decoded user data.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "key", "token", "credential",
	"api_key", "apikey", "access_key", "accesskey", "aws_access_key_id",
	"aws_secret_access_key", "private_key", "ssh_key",
}

// maxListedInstances caps the instance IDs quoted in CIS-2.7 evidence.
const maxListedInstances = 5

// runEC2 is the ec2 check provider. It inspects the session's home region,
// the same region the existence probe looks at.
func (s *Suite) runEC2(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	client := s.factory(session.Config).EC2

	var findings []models.Finding
	findings = append(findings, checkUserDataSecrets(ctx, client)...)
	findings = append(findings, checkDefaultSecurityGroupUsage(ctx, client)...)
	return findings, nil
}

// listInstanceIDs returns the IDs of every instance matching filters.
func listInstanceIDs(ctx context.Context, client ec2APIClient, filters []ec2types.Filter) ([]string, error) {
	paginator := ec2svc.NewDescribeInstancesPaginator(client, &ec2svc.DescribeInstancesInput{Filters: filters})
	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				ids = append(ids, aws.ToString(inst.InstanceId))
			}
		}
	}
	return ids, nil
}

// checkUserDataSecrets implements CIS-2.13: instance user data must not carry
// secrets.
func checkUserDataSecrets(ctx context.Context, client ec2APIClient) []models.Finding {
	ids, err := listInstanceIDs(ctx, client, nil)
	if err != nil {
		return []models.Finding{cis213ec2.errored("EC2Service", err,
			"Verify IAM permissions include ec2:DescribeInstances and ec2:DescribeInstanceAttribute")}
	}
	if len(ids) == 0 {
		return []models.Finding{cis213ec2.pass("No EC2 Instances", "No EC2 instances found to check")}
	}

	findings := make([]models.Finding, 0, len(ids))
	for _, id := range ids {
		out, err := client.DescribeInstanceAttribute(ctx, &ec2svc.DescribeInstanceAttributeInput{
			InstanceId: aws.String(id),
			Attribute:  ec2types.InstanceAttributeNameUserData,
		})
		if err != nil {
			findings = append(findings, cis213ec2.errored(id, err, "Ensure IAM permissions include ec2:DescribeInstanceAttribute"))
			continue
		}

		var encoded string
		if out.UserData != nil {
			encoded = aws.ToString(out.UserData.Value)
		}
		if encoded == "" {
			findings = append(findings, cis213ec2.pass(id, "No user data found"))
			continue
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			findings = append(findings, cis213ec2.errored(id, fmt.Errorf("unable to decode user data: %w", err), "Verify the user data encoding format"))
			continue
		}

		if matches := matchSensitiveKeywords(string(decoded)); len(matches) > 0 {
			findings = append(findings, cis213ec2.fail(id,
				fmt.Sprintf("User data contains potential sensitive information: %s", strings.Join(matches, ", ")),
				"1. Launch a new EC2 instance without sensitive data in user data\n"+
					"2. Use AWS Secrets Manager or Parameter Store for secrets\n"+
					"3. If scripts need secrets, let them retrieve from secure sources at runtime"))
		} else {
			findings = append(findings, cis213ec2.pass(id, "No sensitive data detected in user data"))
		}
	}
	return findings
}

func matchSensitiveKeywords(data string) []string {
	lower := strings.ToLower(data)
	var matches []string
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			matches = append(matches, kw)
		}
	}
	return matches
}

// checkDefaultSecurityGroupUsage implements CIS-2.7: no instance may use a
// VPC's default security group. One FAIL is reported per offending VPC.
func checkDefaultSecurityGroupUsage(ctx context.Context, client ec2APIClient) []models.Finding {
	const remediation = "Verify IAM permissions include ec2:DescribeVpcs, ec2:DescribeSecurityGroups, and ec2:DescribeInstances"

	vpcs, err := client.DescribeVpcs(ctx, &ec2svc.DescribeVpcsInput{})
	if err != nil {
		return []models.Finding{cis27.errored("EC2Service", err, remediation)}
	}

	var findings []models.Finding
	for _, vpc := range vpcs.Vpcs {
		vpcID := aws.ToString(vpc.VpcId)

		sgs, err := client.DescribeSecurityGroups(ctx, &ec2svc.DescribeSecurityGroupsInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("vpc-id"), Values: []string{vpcID}},
				{Name: aws.String("group-name"), Values: []string{"default"}},
			},
		})
		if err != nil {
			findings = append(findings, cis27.errored(vpcID, err, remediation))
			continue
		}
		if len(sgs.SecurityGroups) == 0 {
			continue
		}
		sgID := aws.ToString(sgs.SecurityGroups[0].GroupId)

		ids, err := listInstanceIDs(ctx, client, []ec2types.Filter{
			{Name: aws.String("instance.group-id"), Values: []string{sgID}},
		})
		if err != nil {
			findings = append(findings, cis27.errored(vpcID, err, remediation))
			continue
		}
		if len(ids) == 0 {
			continue
		}

		listed := ids
		suffix := ""
		if len(listed) > maxListedInstances {
			listed, suffix = listed[:maxListedInstances], "..."
		}
		findings = append(findings, cis27.fail(
			fmt.Sprintf("%s:%s", vpcID, sgID),
			fmt.Sprintf("%d instances using default security group: %s%s", len(ids), strings.Join(listed, ", "), suffix),
			"1. Create a custom security group with required rules\n"+
				"2. Attach the custom security group to the instances\n"+
				"3. Remove the default security group from the instances"))
	}

	if len(findings) == 0 {
		findings = append(findings, cis27.pass("ALL_VPCS", "No instances are using default security groups"))
	}
	return findings
}
