package awssecurity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	efssvc "github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

var cis231 = check{models.ServiceEFS, "CIS-2.3.1"}

// runEFS is the efs check provider implementing CIS-2.3.1 (encryption at
// rest) across every active region.
func (s *Suite) runEFS(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	regions, err := s.regionsFor(ctx, session)
	if err != nil {
		return nil, err
	}
	clients := s.newRegionalClients(session)

	var findings []models.Finding
	for _, region := range regions {
		filesystems, err := listFileSystems(ctx, clients.get(region).EFS)
		if err != nil {
			findings = append(findings, cis231.errored(regional("EFS", region), err,
				"Ensure the IAM role has elasticfilesystem:DescribeFileSystems permission"))
			continue
		}

		for _, fs := range filesystems {
			id := aws.ToString(fs.FileSystemId)
			resource := regional(id, region)
			if aws.ToBool(fs.Encrypted) {
				findings = append(findings, cis231.pass(resource, "Encryption at rest is enabled"))
				continue
			}
			findings = append(findings, cis231.fail(resource, "Encryption at rest is NOT enabled", fmt.Sprintf(
				"Create a new EFS file system with encryption enabled and migrate data as needed:\n"+
					"1. aws efs create-file-system --region %s --performance-mode generalPurpose --encrypted\n"+
					"2. Use AWS DataSync or other tools to move data from %s to the new encrypted file system.",
				region, id)))
		}
	}
	return findings, nil
}

func listFileSystems(ctx context.Context, client efsAPIClient) ([]efstypes.FileSystemDescription, error) {
	paginator := efssvc.NewDescribeFileSystemsPaginator(client, &efssvc.DescribeFileSystemsInput{})
	var out []efstypes.FileSystemDescription
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe file systems: %w", err)
		}
		out = append(out, page.FileSystems...)
	}
	return out, nil
}
