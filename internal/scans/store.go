// Package scans persists audit reports and runs audits on demand.
package scans

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/models"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/output"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/report"
)

var (
	// ErrNotFound is returned by Open when no stored file has the name.
	ErrNotFound = errors.New("scan file not found")

	// ErrInvalidName is returned by Open for names that are not a plain
	// file name in the store directory.
	ErrInvalidName = errors.New("invalid scan file name")
)

const (
	filePrefix = "scan_"
	timeLayout = "20060102150405"
)

// Saved names the files written for one report.
type Saved struct {
	JSON string `json:"json"`
	PDF  string `json:"pdf"`
}

// FileStore keeps reports as files in a single directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

// Save writes report as scan_<UTC timestamp>.json and .pdf. The timestamp
// comes from the report's GeneratedAt. Both renderings complete before any
// file is written.
func (s *FileStore) Save(r *models.AuditReport) (Saved, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Saved{}, fmt.Errorf("create scan directory %q: %w", s.dir, err)
	}

	base := filePrefix + r.GeneratedAt.UTC().Format(timeLayout)
	saved := Saved{JSON: base + ".json", PDF: base + ".pdf"}

	var js, pdf bytes.Buffer
	if err := output.WriteJSON(&js, r); err != nil {
		return Saved{}, err
	}
	if err := report.WritePDF(&pdf, r); err != nil {
		return Saved{}, err
	}

	// List keys on the JSON file, so it must not outlive a failed PDF write.
	if err := s.write(saved.JSON, js.Bytes()); err != nil {
		return Saved{}, err
	}
	if err := s.write(saved.PDF, pdf.Bytes()); err != nil {
		_ = os.Remove(filepath.Join(s.dir, saved.JSON))
		return Saved{}, err
	}
	return saved, nil
}

func (s *FileStore) write(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// List returns the stored JSON report names in ascending order. A missing
// directory holds no reports.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scan directory %q: %w", s.dir, err)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open opens the stored file name for reading. name must be a bare file
// name with the given extension.
func (s *FileStore) Open(name, ext string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || filepath.Ext(name) != ext {
		return nil, ErrInvalidName
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	return f, nil
}
