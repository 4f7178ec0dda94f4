package awssecurity

import (
	"context"

	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

var cis33 = check{models.ServiceLogging, "CIS-3.3"}

// checkConfigRecorder implements CIS-3.3 for one region. AWS Config counts
// as enabled only when a configuration recorder, its status and a delivery
// channel all exist and at least one recorder is recording.
func checkConfigRecorder(ctx context.Context, client awsConfigAPIClient, region string) models.Finding {
	resource := regional("AWS Config", region)
	const deniedRemediation = "Ensure the IAM role has config:DescribeConfigurationRecorders, " +
		"config:DescribeConfigurationRecorderStatus and config:DescribeDeliveryChannels permissions"

	recorders, err := client.DescribeConfigurationRecorders(ctx, &configsvc.DescribeConfigurationRecordersInput{})
	if err != nil {
		return cis33.errored(resource, err, deniedRemediation)
	}
	statuses, err := client.DescribeConfigurationRecorderStatus(ctx, &configsvc.DescribeConfigurationRecorderStatusInput{})
	if err != nil {
		return cis33.errored(resource, err, deniedRemediation)
	}
	channels, err := client.DescribeDeliveryChannels(ctx, &configsvc.DescribeDeliveryChannelsInput{})
	if err != nil {
		return cis33.errored(resource, err, deniedRemediation)
	}

	if len(recorders.ConfigurationRecorders) == 0 || len(statuses.ConfigurationRecordersStatus) == 0 || len(channels.DeliveryChannels) == 0 {
		return cis33.fail(resource,
			"AWS Config is not fully configured (missing recorder, status, or delivery channel)",
			"1. Ensure you have created a suitable IAM role, S3 bucket, and SNS topic.\n"+
				"2. Create the recorder:\n"+
				"aws configservice put-configuration-recorder --configuration-recorder "+
				"name=<config-recorder-name>,roleARN=arn:aws:iam::<account-id>:role/<iam-role> "+
				"--recording-group allSupported=true,includeGlobalResourceTypes=true\n"+
				"3. Create the delivery channel:\n"+
				"aws configservice put-delivery-channel --delivery-channel file://<delivery-channel-file>.json\n"+
				"4. Start the recorder:\n"+
				"aws configservice start-configuration-recorder --configuration-recorder-name <config-recorder-name>")
	}

	for _, status := range statuses.ConfigurationRecordersStatus {
		if status.Recording {
			return cis33.pass(resource, "AWS Config is enabled and recording")
		}
	}
	return cis33.fail(resource, "Configuration recorder exists but is not recording",
		"Start the recorder:\n"+
			"aws configservice start-configuration-recorder --configuration-recorder-name <config-recorder-name>")
}
