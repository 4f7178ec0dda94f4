// Package report renders audit reports as PDF documents.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

const (
	pageMargin = 15.0
	lineHeight = 5.0
	title      = "CIS AWS Foundations Benchmark Audit"
)

// column is one column of a PDF table.
type column struct {
	header string
	width  float64
	align  string
}

var summaryColumns = []column{
	{"Service", 60, "L"},
	{"Total", 30, "R"},
	{"Pass", 30, "R"},
	{"Fail", 30, "R"},
	{"Error", 30, "R"},
}

var detailColumns = []column{
	{"Check", 20, "L"},
	{"Status", 15, "L"},
	{"Resource", 50, "L"},
	{"Evidence", 80, "L"},
	{"Remediation", 102, "L"},
}

// document wraps an fpdf document with the translator for core fonts and
// the body font, which is restored after a table header is repeated.
type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string

	style string
	size  float64
}

func (d *document) bodyFont(style string, size float64) {
	d.style, d.size = style, size
	d.pdf.SetFont("Helvetica", style, size)
}

// WritePDF renders report to w: a cover page, the per-service summary table
// and a detail table of every FAIL and ERROR finding.
func WritePDF(w io.Writer, report *models.AuditReport) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.SetTitle(title, true)
	pdf.SetCreator("cisaudit", true)
	pdf.AliasNbPages("")

	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Scan %s - page %d/{nb}", report.ScanID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	d.cover(report)
	d.summary(report.Summary)
	d.details(report)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func (d *document) cover(r *models.AuditReport) {
	pdf := d.pdf
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.Ln(30)
	pdf.CellFormat(0, 12, d.tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	rows := [][2]string{
		{"Account", r.AccountID},
		{"Region", r.Region},
		{"Scan ID", r.ScanID},
		{"Generated", r.GeneratedAt.UTC().Format(time.RFC1123)},
		{"Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()},
		{"Services", servicesList(r.Services)},
	}
	for _, row := range rows {
		pdf.SetX(80)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(35, 8, d.tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, d.tr(row[1]), "", 1, "L", false, 0, "")
	}
	if r.Message != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 11)
		pdf.CellFormat(0, 8, d.tr(r.Message), "", 1, "C", false, 0, "")
	}
}

func (d *document) summary(s models.AuditSummary) {
	pdf := d.pdf
	pdf.AddPage()
	d.heading("Summary")

	d.tableHeader(summaryColumns)
	d.bodyFont("", 10)
	for _, svc := range sortedServices(s.PerService) {
		ps := s.PerService[svc]
		d.tableRow(summaryColumns, []string{
			string(svc), fmt.Sprint(ps.Total), fmt.Sprint(ps.Passed), fmt.Sprint(ps.Failed), fmt.Sprint(ps.Errors),
		})
	}
	d.bodyFont("B", 10)
	d.tableRow(summaryColumns, []string{
		"Total", fmt.Sprint(s.Total), fmt.Sprint(s.Passed), fmt.Sprint(s.Failed), fmt.Sprint(s.Errors),
	})
}

func (d *document) details(r *models.AuditReport) {
	var failed []models.Finding
	for _, svc := range r.Services {
		for _, f := range r.Findings[svc] {
			if f.Status != models.StatusPass {
				failed = append(failed, f)
			}
		}
	}

	pdf := d.pdf
	pdf.AddPage()
	d.heading("Failed and errored checks")
	if len(failed) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, "All checks passed.", "", 1, "L", false, 0, "")
		return
	}

	d.tableHeader(detailColumns)
	d.bodyFont("", 8)
	for _, f := range failed {
		d.tableRow(detailColumns, []string{f.CheckID, string(f.Status), f.Resource, f.Evidence, f.Remediation})
	}
}

func (d *document) heading(text string) {
	d.pdf.SetFont("Helvetica", "B", 16)
	d.pdf.CellFormat(0, 10, d.tr(text), "", 1, "L", false, 0, "")
	d.pdf.Ln(2)
}

func (d *document) tableHeader(cols []column) {
	pdf := d.pdf
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(220, 225, 235)
	for _, c := range cols {
		pdf.CellFormat(c.width, 7, d.tr(c.header), "1", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)
}

// tableRow draws one row whose height fits the tallest wrapped cell. A row
// that would cross the bottom margin starts a new page with the header
// repeated.
func (d *document) tableRow(cols []column, values []string) {
	pdf := d.pdf

	lines := make([][][]byte, len(cols))
	maxLines := 1
	for i, c := range cols {
		lines[i] = pdf.SplitLines([]byte(d.tr(values[i])), c.width-2)
		maxLines = max(maxLines, len(lines[i]))
	}
	height := float64(maxLines) * lineHeight

	_, pageHeight := pdf.GetPageSize()
	if pdf.GetY()+height > pageHeight-pageMargin-5 {
		pdf.AddPage()
		d.tableHeader(cols)
		pdf.SetFont("Helvetica", d.style, d.size)
	}

	x, y := pdf.GetXY()
	for i, c := range cols {
		pdf.Rect(x, y, c.width, height, "D")
		for j, line := range lines[i] {
			pdf.SetXY(x+1, y+float64(j)*lineHeight)
			pdf.CellFormat(c.width-2, lineHeight, string(line), "", 0, c.align, false, 0, "")
		}
		x += c.width
	}
	pdf.SetXY(pageMargin, y+height)
}

func servicesList(ids []models.ServiceID) string {
	if len(ids) == 0 {
		return "-"
	}
	out := string(ids[0])
	for _, id := range ids[1:] {
		out += ", " + string(id)
	}
	return out
}

func sortedServices(m map[models.ServiceID]models.ServiceSummary) []models.ServiceID {
	keys := make([]models.ServiceID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
