package awssecurity

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	efssvc "github.com/aws/aws-sdk-go-v2/service/efs"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// Existence probes issue small list calls. S3 lists every bucket from the
// home region; regional services are asked in each active region until one
// reports a resource.

func (s *Suite) probeS3(ctx context.Context, session *common.Session) (bool, error) {
	out, err := s.factory(session.Config).S3.ListBuckets(ctx, &s3svc.ListBucketsInput{MaxBuckets: aws.Int32(1)})
	if err != nil {
		return false, err
	}
	return len(out.Buckets) > 0, nil
}

func (s *Suite) probeEC2(ctx context.Context, session *common.Session) (bool, error) {
	return s.existsInAnyRegion(ctx, session, func(c *secClients) (bool, error) {
		out, err := c.EC2.DescribeInstances(ctx, &ec2svc.DescribeInstancesInput{MaxResults: aws.Int32(5)})
		if err != nil {
			return false, err
		}
		return len(out.Reservations) > 0, nil
	})
}

func (s *Suite) probeRDS(ctx context.Context, session *common.Session) (bool, error) {
	return s.existsInAnyRegion(ctx, session, func(c *secClients) (bool, error) {
		// 20 is the smallest page size DescribeDBInstances accepts.
		out, err := c.RDS.DescribeDBInstances(ctx, &rdssvc.DescribeDBInstancesInput{MaxRecords: aws.Int32(20)})
		if err != nil {
			return false, err
		}
		return len(out.DBInstances) > 0, nil
	})
}

func (s *Suite) probeEFS(ctx context.Context, session *common.Session) (bool, error) {
	return s.existsInAnyRegion(ctx, session, func(c *secClients) (bool, error) {
		out, err := c.EFS.DescribeFileSystems(ctx, &efssvc.DescribeFileSystemsInput{MaxItems: aws.Int32(1)})
		if err != nil {
			return false, err
		}
		return len(out.FileSystems) > 0, nil
	})
}

// existsInAnyRegion runs list in each active region and reports true at the
// first hit. An error is returned only when every region failed; an access
// denial takes precedence so the discoverer can exclude the service quietly.
func (s *Suite) existsInAnyRegion(ctx context.Context, session *common.Session, list func(*secClients) (bool, error)) (bool, error) {
	regions, err := s.regionsFor(ctx, session)
	if err != nil {
		return false, err
	}
	clients := s.newRegionalClients(session)

	var firstErr, deniedErr error
	failed := 0
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		found, err := list(clients.get(region))
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			if deniedErr == nil && common.IsAccessDenied(err) {
				deniedErr = err
			}
			continue
		}
		if found {
			return true, nil
		}
	}
	if failed < len(regions) {
		return false, nil
	}
	if deniedErr != nil {
		return false, deniedErr
	}
	return false, firstErr
}
