package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

var cis37 = check{models.ServiceLogging, "CIS-3.7"}

// checkFlowLogs implements CIS-3.7 for one region: every VPC has a flow log
// that captures rejected traffic (TrafficType REJECT or ALL).
func checkFlowLogs(ctx context.Context, client ec2APIClient, region string) []models.Finding {
	vpcs, err := client.DescribeVpcs(ctx, &ec2svc.DescribeVpcsInput{})
	if err != nil {
		return []models.Finding{cis37.errored(regional("VPCs", region), err, "Ensure the IAM role has ec2:DescribeVpcs permission")}
	}

	findings := make([]models.Finding, 0, len(vpcs.Vpcs))
	for _, vpc := range vpcs.Vpcs {
		vpcID := aws.ToString(vpc.VpcId)
		resource := regional(vpcID, region)

		out, err := client.DescribeFlowLogs(ctx, &ec2svc.DescribeFlowLogsInput{
			Filter: []ec2types.Filter{{Name: aws.String("resource-id"), Values: []string{vpcID}}},
		})
		if err != nil {
			findings = append(findings, cis37.errored(resource, err, "Ensure the IAM role has ec2:DescribeFlowLogs permission"))
			continue
		}

		if capturesRejects(out.FlowLogs) {
			findings = append(findings, cis37.pass(resource, "Flow logging for REJECT traffic is enabled"))
			continue
		}
		findings = append(findings, cis37.fail(resource, "No VPC flow log with traffic type REJECT", fmt.Sprintf(
			"Enable VPC flow logging for REJECT traffic:\n"+
				"aws ec2 create-flow-logs --region %s --resource-type VPC --resource-ids %s --traffic-type REJECT "+
				"--log-group-name <log-group-name> --deliver-logs-permission-arn <iam-role-arn>",
			region, vpcID)))
	}
	return findings
}

func capturesRejects(logs []ec2types.FlowLog) bool {
	for _, l := range logs {
		if l.TrafficType == ec2types.TrafficTypeReject || l.TrafficType == ec2types.TrafficTypeAll {
			return true
		}
	}
	return false
}
