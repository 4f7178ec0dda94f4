package awssecurity

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	kmssvc "github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

var cis36 = check{models.ServiceLogging, "CIS-3.6"}

// checkKeyRotation implements CIS-3.6 for one region: every enabled
// customer managed symmetric key has automatic rotation turned on.
// AWS managed keys, asymmetric keys and keys that are not enabled are
// skipped.
func checkKeyRotation(ctx context.Context, client kmsAPIClient, region string) []models.Finding {
	var findings []models.Finding

	paginator := kmssvc.NewListKeysPaginator(client, &kmssvc.ListKeysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return append(findings, cis36.errored(regional("KMS", region), err,
				"Ensure the IAM role has kms:ListKeys permission"))
		}

		for _, key := range page.Keys {
			keyID := aws.ToString(key.KeyId)
			resource := regional(keyID, region)

			desc, err := client.DescribeKey(ctx, &kmssvc.DescribeKeyInput{KeyId: key.KeyId})
			if err != nil {
				findings = append(findings, cis36.errored(resource, err, "Ensure the IAM role has kms:DescribeKey permission"))
				continue
			}
			if !rotationApplies(desc.KeyMetadata) {
				continue
			}

			rotation, err := client.GetKeyRotationStatus(ctx, &kmssvc.GetKeyRotationStatusInput{KeyId: key.KeyId})
			if err != nil {
				findings = append(findings, cis36.errored(resource, err, "Ensure the IAM role has kms:GetKeyRotationStatus permission"))
				continue
			}
			if rotation.KeyRotationEnabled {
				findings = append(findings, cis36.pass(resource, "Key rotation is enabled"))
				continue
			}
			findings = append(findings, cis36.fail(resource, "Key rotation is not enabled", fmt.Sprintf(
				"Enable key rotation for this customer managed symmetric key:\n"+
					"aws kms enable-key-rotation --region %s --key-id %s", region, keyID)))
		}
	}
	return findings
}

func rotationApplies(meta *kmstypes.KeyMetadata) bool {
	if meta == nil || meta.KeyManager != kmstypes.KeyManagerTypeCustomer {
		return false
	}
	if meta.KeyState != "" && meta.KeyState != kmstypes.KeyStateEnabled {
		return false
	}
	spec := string(meta.KeySpec)
	return !strings.HasPrefix(spec, "RSA") && !strings.HasPrefix(spec, "ECC") &&
		!strings.HasPrefix(spec, "HMAC") && !strings.HasPrefix(spec, "ML_DSA")
}
