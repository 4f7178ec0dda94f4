package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
)

// WriteJSON writes report as indented JSON followed by a newline.
func WriteJSON(w io.Writer, report *models.AuditReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// ReadJSON decodes a report previously written by WriteJSON.
func ReadJSON(r io.Reader) (*models.AuditReport, error) {
	var report models.AuditReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
