package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

var (
	cis221 = check{models.ServiceRDS, "CIS-2.2.1"}
	cis222 = check{models.ServiceRDS, "CIS-2.2.2"}
	cis223 = check{models.ServiceRDS, "CIS-2.2.3"}
)

// runRDS is the rds check provider. Every active region is inspected; a
// region whose instances cannot be listed yields one ERROR per check.
func (s *Suite) runRDS(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	regions, err := s.regionsFor(ctx, session)
	if err != nil {
		return nil, err
	}
	clients := s.newRegionalClients(session)

	var findings []models.Finding
	for _, region := range regions {
		instances, err := listDBInstances(ctx, clients.get(region).RDS)
		if err != nil {
			resource := regional("RDS", region)
			const remediation = "Ensure the IAM role has rds:DescribeDBInstances permission"
			findings = append(findings,
				cis221.errored(resource, err, remediation),
				cis222.errored(resource, err, remediation),
				cis223.errored(resource, err, remediation),
			)
			continue
		}
		for _, db := range instances {
			findings = append(findings, evaluateDBInstance(db, region)...)
		}
	}
	return findings, nil
}

func listDBInstances(ctx context.Context, client rdsAPIClient) ([]rdstypes.DBInstance, error) {
	paginator := rdssvc.NewDescribeDBInstancesPaginator(client, &rdssvc.DescribeDBInstancesInput{})
	var out []rdstypes.DBInstance
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe DB instances: %w", err)
		}
		out = append(out, page.DBInstances...)
	}
	return out, nil
}

// evaluateDBInstance applies CIS-2.2.1 (storage encryption), CIS-2.2.2 (auto
// minor version upgrade) and CIS-2.2.3 (not publicly accessible).
func evaluateDBInstance(db rdstypes.DBInstance, region string) []models.Finding {
	id := aws.ToString(db.DBInstanceIdentifier)
	resource := regional(id, region)
	findings := make([]models.Finding, 0, 3)

	if aws.ToBool(db.StorageEncrypted) {
		findings = append(findings, cis221.pass(resource, "Storage encryption is enabled"))
	} else {
		findings = append(findings, cis221.fail(resource, "Storage encryption is NOT enabled", fmt.Sprintf(
			"Create a snapshot of the unencrypted RDS instance and restore it with encryption:\n"+
				"1. aws rds create-db-snapshot --region %[2]s --db-snapshot-identifier %[1]s-snapshot --db-instance-identifier %[1]s\n"+
				"2. aws kms list-aliases --region %[2]s  # Find KMS key\n"+
				"3. aws rds copy-db-snapshot --region %[2]s --source-db-snapshot-identifier %[1]s-snapshot "+
				"--target-db-snapshot-identifier %[1]s-snapshot-encrypted --kms-key-id <kms-key-id>\n"+
				"4. aws rds restore-db-instance-from-db-snapshot --region %[2]s "+
				"--db-instance-identifier %[1]s-encrypted --db-snapshot-identifier %[1]s-snapshot-encrypted",
			id, region)))
	}

	if aws.ToBool(db.AutoMinorVersionUpgrade) {
		findings = append(findings, cis222.pass(resource, "Auto Minor Version Upgrade is enabled"))
	} else {
		findings = append(findings, cis222.fail(resource, "Auto Minor Version Upgrade is disabled", fmt.Sprintf(
			"aws rds modify-db-instance --region %s --db-instance-identifier %s --auto-minor-version-upgrade --apply-immediately",
			region, id)))
	}

	if aws.ToBool(db.PubliclyAccessible) {
		findings = append(findings, cis223.fail(resource, "RDS instance is publicly accessible", fmt.Sprintf(
			"Disable public access for the RDS instance:\n"+
				"aws rds modify-db-instance --region %s --db-instance-identifier %s --no-publicly-accessible --apply-immediately\n"+
				"If the instance is in a public subnet, move it to private subnets without a 0.0.0.0/0 route to an Internet Gateway.",
			region, id)))
	} else {
		findings = append(findings, cis223.pass(resource, "RDS instance is not publicly accessible"))
	}

	return findings
}
