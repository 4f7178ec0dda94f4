package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// ANSI color codes for status output (used when Colored=true).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[0;31m"
	ansiGreen  = "\033[0;32m"
	ansiYellow = "\033[0;33m"
)

// TableOptions controls which columns RenderTable renders and how status is coloured.
type TableOptions struct {
	// Colored wraps status labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeService adds a SERVICE column.
	IncludeService bool

	// FailedOnly hides PASS findings.
	FailedOnly bool
}

func statusColor(status models.Status) string {
	switch status {
	case models.StatusPass:
		return ansiGreen
	case models.StatusFail:
		return ansiRed
	case models.StatusError:
		return ansiYellow
	default:
		return ""
	}
}

// ColorStatus wraps a status string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorStatus(status models.Status, colored bool) string {
	s := string(status)
	code := statusColor(status)
	if !colored || code == "" {
		return s
	}
	return code + s + ansiReset
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// statusCell returns the status padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func statusCell(status models.Status, width int, colored bool) string {
	text := string(status)
	code := statusColor(status)
	if !colored || code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := max(width-len(text), 0)
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max runes for ID/label columns.
// A single-char ellipsis replaces the last rune when truncation occurs.
func truncateField(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// oneLine collapses evidence onto a single line for table cells.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RenderTable writes a formatted findings table to w.
// Columns are dynamically selected based on opts; the separator line width is
// derived from the header row so all rows align correctly.
//
// Column order:
//
//	CHECK ID  [SERVICE]  STATUS  RESOURCE  EVIDENCE
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	rows := findings
	if opts.FailedOnly {
		rows = make([]models.Finding, 0, len(findings))
		for _, f := range findings {
			if f.Status != models.StatusPass {
				rows = append(rows, f)
			}
		}
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	// Fixed column display widths.
	const (
		wCheck    = 20
		wService  = 10
		wStatus   = 6
		wResource = 36
		wEvidence = 60
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wCheck, "CHECK ID"))
	if opts.IncludeService {
		hb.WriteString(fmt.Sprintf("  %-*s", wService, "SERVICE"))
	}
	hb.WriteString(fmt.Sprintf("  %-*s", wStatus, "STATUS"))
	hb.WriteString(fmt.Sprintf("  %-*s", wResource, "RESOURCE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wEvidence, "EVIDENCE"))
	header := strings.TrimRight(hb.String(), " ")

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range rows {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wCheck, truncateField(f.CheckID, wCheck)))
		if opts.IncludeService {
			rb.WriteString(fmt.Sprintf("  %-*s", wService, truncateField(string(f.Service), wService)))
		}
		rb.WriteString("  " + statusCell(f.Status, wStatus, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wResource, truncateField(f.Resource, wResource)))
		rb.WriteString("  " + ShortenMessage(oneLine(f.Evidence), wEvidence))
		fmt.Fprintln(w, rb.String())
	}
}

// RenderReport writes the report header, one findings table per service in
// report order, and the status totals.
func RenderReport(w io.Writer, report *models.AuditReport, opts TableOptions) {
	fmt.Fprintf(w, "Account:  %s\n", report.AccountID)
	fmt.Fprintf(w, "Region:   %s\n", report.Region)
	fmt.Fprintf(w, "Scan ID:  %s\n", report.ScanID)
	fmt.Fprintf(w, "Services: %s\n", joinServices(report.Services))

	for _, svc := range report.Services {
		findings := report.Findings[svc]
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n== %s ==\n", strings.ToUpper(string(svc)))
		RenderTable(w, findings, opts)
	}

	fmt.Fprintln(w)
	RenderSummary(w, report.Summary)
}

// RenderSummary writes one line per service and a total line.
func RenderSummary(w io.Writer, s models.AuditSummary) {
	fmt.Fprintf(w, "%-12s  %6s  %6s  %6s  %6s\n", "SERVICE", "TOTAL", "PASS", "FAIL", "ERROR")
	for _, svc := range sortedSummaryKeys(s.PerService) {
		ps := s.PerService[svc]
		fmt.Fprintf(w, "%-12s  %6d  %6d  %6d  %6d\n", svc, ps.Total, ps.Passed, ps.Failed, ps.Errors)
	}
	fmt.Fprintf(w, "%-12s  %6d  %6d  %6d  %6d\n", "TOTAL", s.Total, s.Passed, s.Failed, s.Errors)
}

func joinServices(ids []models.ServiceID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

func sortedSummaryKeys(m map[models.ServiceID]models.ServiceSummary) []models.ServiceID {
	keys := make([]models.ServiceID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
