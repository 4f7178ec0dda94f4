package models

import "time"

// Status is the outcome of a single compliance check.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
)

// ServiceID names a checkable AWS service in the service catalog
// (e.g. "iam", "s3"). It is used as a map key throughout the pipeline.
type ServiceID string

const (
	ServiceIAM        ServiceID = "iam"
	ServiceS3         ServiceID = "s3"
	ServiceEC2        ServiceID = "ec2"
	ServiceRDS        ServiceID = "rds"
	ServiceEFS        ServiceID = "efs"
	ServiceLogging    ServiceID = "logging"
	ServiceMonitoring ServiceID = "monitoring"
)

// OrchestrationErrorCheckID is the check ID of the synthetic finding emitted
// when a whole check provider fails.
const OrchestrationErrorCheckID = "ORCHESTRATION-ERROR"

// Finding is a single check result tied to a service and a resource.
// It is the atomic output unit of every check provider.
type Finding struct {
	CheckID     string    `json:"check_id"`
	Status      Status    `json:"status"`
	Service     ServiceID `json:"service"`
	Resource    string    `json:"resource"`
	Evidence    string    `json:"evidence"`
	Remediation string    `json:"remediation,omitempty"`
}

// ServiceSummary counts findings by status for one service.
type ServiceSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// AuditSummary aggregates counts across all services of a report.
type AuditSummary struct {
	Total      int                          `json:"total"`
	Passed     int                          `json:"passed"`
	Failed     int                          `json:"failed"`
	Errors     int                          `json:"errors"`
	PerService map[ServiceID]ServiceSummary `json:"per_service"`
}

// AuditReport is the persisted and rendered output of one audit run.
// Findings are grouped by service ID.
type AuditReport struct {
	ScanID      string                  `json:"scan_id"`
	GeneratedAt time.Time               `json:"generated_at"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	AccountID   string                  `json:"account_id"`
	Region      string                  `json:"region"`
	Message     string                  `json:"message"`
	Services    []ServiceID             `json:"services"`
	Summary     AuditSummary            `json:"summary"`
	Findings    map[ServiceID][]Finding `json:"findings"`
}
