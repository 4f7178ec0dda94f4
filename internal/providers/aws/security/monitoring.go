package awssecurity

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudwatchsvc "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	logssvc "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
)

// metricRule is a monitoring check satisfied by a metric filter whose
// pattern matches and an alarm on that filter's metric.
type metricRule struct {
	check
	description string
	// matches reports whether a whitespace-free filter pattern qualifies.
	matches     func(pattern string) bool
	filterName  string
	pattern     string
}

var metricRules = []metricRule{
	{
		check:       check{models.ServiceMonitoring, "CIS-4.1"},
		description: "unauthorized API calls",
		matches: func(p string) bool {
			return strings.Contains(p, "UnauthorizedOperation") || strings.Contains(p, "AccessDenied")
		},
		filterName: "UnauthorizedAPICalls",
		pattern:    `{ ($.errorCode = "*UnauthorizedOperation") || ($.errorCode = "AccessDenied*") }`,
	},
	{
		check:       check{models.ServiceMonitoring, "CIS-4.2"},
		description: "console sign-in without MFA",
		matches: func(p string) bool {
			return strings.Contains(p, "ConsoleLogin") && strings.Contains(p, "MFAUsed")
		},
		filterName: "NoMFAConsoleSignin",
		pattern:    `{ ($.eventName = "ConsoleLogin") && ($.additionalEventData.MFAUsed != "Yes") }`,
	},
	{
		check:       check{models.ServiceMonitoring, "CIS-4.3"},
		description: "root account usage",
		matches: func(p string) bool {
			return strings.Contains(p, "userIdentity.type") && strings.Contains(p, "Root")
		},
		filterName: "RootAccountUsage",
		pattern:    `{ $.userIdentity.type = "Root" && $.userIdentity.invokedBy NOT EXISTS && $.eventType != "AwsServiceEvent" }`,
	},
}

func (r metricRule) remediation() string {
	return fmt.Sprintf("Create a metric filter and an alarm on its metric:\n"+
		"aws logs put-metric-filter --log-group-name <cloudtrail-log-group> --filter-name %[1]s "+
		"--metric-transformations metricName=%[1]s,metricNamespace=CISBenchmark,metricValue=1 "+
		"--filter-pattern '%[2]s'\n"+
		"aws cloudwatch put-metric-alarm --alarm-name %[1]s --metric-name %[1]s --namespace CISBenchmark "+
		"--statistic Sum --period 300 --threshold 1 --comparison-operator GreaterThanOrEqualToThreshold "+
		"--evaluation-periods 1 --alarm-actions <sns-topic-arn>",
		r.filterName, r.pattern)
}

// runMonitoring is the monitoring check provider covering CIS-4.1 through
// CIS-4.3 in the session's home region.
func (s *Suite) runMonitoring(ctx context.Context, session *common.Session) ([]models.Finding, error) {
	c := s.factory(session.Config)

	filters, err := listMetricFilters(ctx, c.Logs)
	if err != nil {
		findings := make([]models.Finding, 0, len(metricRules))
		for _, r := range metricRules {
			findings = append(findings, r.errored("CloudWatch Logs", err, "Ensure the IAM role has logs:DescribeMetricFilters permission"))
		}
		return findings, nil
	}

	findings := make([]models.Finding, 0, len(metricRules))
	for _, r := range metricRules {
		findings = append(findings, checkMetricRule(ctx, c.CloudWatch, r, filters))
	}
	return findings, nil
}

func listMetricFilters(ctx context.Context, client logsAPIClient) ([]logstypes.MetricFilter, error) {
	paginator := logssvc.NewDescribeMetricFiltersPaginator(client, &logssvc.DescribeMetricFiltersInput{})
	var out []logstypes.MetricFilter
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe metric filters: %w", err)
		}
		out = append(out, page.MetricFilters...)
	}
	return out, nil
}

// checkMetricRule passes on the first matching filter whose metric has an
// alarm. It fails when no filter matches or no matching filter is alarmed.
func checkMetricRule(ctx context.Context, client cloudWatchAPIClient, r metricRule, filters []logstypes.MetricFilter) models.Finding {
	var matched []logstypes.MetricFilter
	for _, f := range filters {
		if r.matches(compactPattern(aws.ToString(f.FilterPattern))) {
			matched = append(matched, f)
		}
	}
	if len(matched) == 0 {
		return r.fail("CloudWatch Logs", fmt.Sprintf("No metric filter found for %s", r.description), r.remediation())
	}

	var lastErr error
	for _, f := range matched {
		for _, t := range f.MetricTransformations {
			out, err := client.DescribeAlarmsForMetric(ctx, &cloudwatchsvc.DescribeAlarmsForMetricInput{
				MetricName: t.MetricName,
				Namespace:  t.MetricNamespace,
			})
			if err != nil {
				lastErr = err
				continue
			}
			if len(out.MetricAlarms) > 0 {
				return r.pass(aws.ToString(f.LogGroupName), fmt.Sprintf("Metric filter %s on metric %s/%s has alarm %s",
					aws.ToString(f.FilterName), aws.ToString(t.MetricNamespace), aws.ToString(t.MetricName),
					aws.ToString(out.MetricAlarms[0].AlarmName)))
			}
		}
	}

	resource := aws.ToString(matched[0].LogGroupName)
	if lastErr != nil {
		return r.errored(resource, lastErr, "Ensure the IAM role has cloudwatch:DescribeAlarmsForMetric permission")
	}
	return r.fail(resource, fmt.Sprintf("Metric filter %s for %s has no associated alarm",
		aws.ToString(matched[0].FilterName), r.description), r.remediation())
}

// compactPattern removes whitespace so patterns match regardless of spacing.
func compactPattern(p string) string {
	return strings.Join(strings.Fields(p), "")
}
