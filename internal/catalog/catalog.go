// Package catalog discovers pyramid stores and their annotation sidecars.
package catalog

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/immunoview/server/internal/data/omezarr"
)

// MetadataReader exposes the store metadata the catalog needs.
type MetadataReader interface {
	Metadata() *omezarr.Metadata
	Close() error
}

// OpenFunc opens a pyramid store at the given path.
type OpenFunc func(path string) (MetadataReader, error)

// Dataset describes one discovered slide.
type Dataset struct {
	Name     string            `json:"name"`
	Details  json.RawMessage   `json:"details"`
	Metadata *omezarr.Metadata `json:"metadata"`
}

// Scanner lists datasets under a slide directory.
type Scanner struct {
	open OpenFunc
}

// NewScanner creates a scanner that opens stores with the given function.
func NewScanner(open OpenFunc) *Scanner {
	return &Scanner{open: open}
}

// ListDatasets scans baseDir for ".zarr" entries at depth one. Stores that
// fail to open are logged and skipped so one broken slide does not hide the
// rest. A missing annotation sidecar yields empty details.
func (s *Scanner) ListDatasets(baseDir string) ([]Dataset, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, err
	}

	datasets := make([]Dataset, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zarr") {
			continue
		}
		entryPath := filepath.Join(baseDir, entry.Name())

		reader, err := s.open(entryPath)
		if err != nil {
			log.Printf("Skipping unreadable store %s: %v", entryPath, err)
			continue
		}
		md := reader.Metadata()
		reader.Close()

		details := json.RawMessage("{}")
		if data, err := os.ReadFile(filepath.Join(entryPath, "sample.json")); err == nil && json.Valid(data) {
			details = json.RawMessage(data)
		}

		datasets = append(datasets, Dataset{
			Name:     strings.TrimSuffix(entry.Name(), ".zarr"),
			Details:  details,
			Metadata: md,
		})
	}
	return datasets, nil
}
