package service

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/immunoview/server/internal/sysops"
)

// ErrSampleNotFound reports a delete request for a sample that does not
// exist on disk.
var ErrSampleNotFound = errors.New("sample not found")

// SampleService manages the public sample area.
type SampleService struct {
	slideDir string
	ops      sysops.Ops
}

// NewSampleService creates a sample service over the given slide directory.
func NewSampleService(slideDir string, ops sysops.Ops) *SampleService {
	return &SampleService{slideDir: slideDir, ops: ops}
}

// ListSamples returns the names of annotated samples in the public area and
// the total disk usage of that area in gigabytes, rounded to two decimals.
// A missing public directory is an empty area, not an error.
func (s *SampleService) ListSamples() ([]string, float64, error) {
	publicDir := filepath.Join(s.slideDir, "public")

	entries, err := os.ReadDir(publicDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, 0, nil
		}
		return nil, 0, err
	}

	samples := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(publicDir, entry.Name(), "sample.json")); err != nil {
			continue
		}
		samples = append(samples, entry.Name())
	}

	bytes, err := s.ops.Usage(publicDir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to measure sample area: %w", err)
	}
	gb := math.Round(float64(bytes)/(1<<30)*100) / 100

	return samples, gb, nil
}

// DeleteSample removes one sample tree. The name is resolved under the
// slide root and may carry a location prefix such as "public/slideA"; any
// path that cleans to the root itself or escapes it is rejected.
func (s *SampleService) DeleteSample(name string) error {
	if name == "" {
		return fmt.Errorf("%w: %q", ErrSampleNotFound, name)
	}

	root := filepath.Clean(s.slideDir)
	path := filepath.Clean(filepath.Join(root, filepath.FromSlash(name)))
	if path == root || !strings.HasPrefix(path, root+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %q", ErrSampleNotFound, name)
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %q", ErrSampleNotFound, name)
	}

	if err := s.ops.RemoveTree(path); err != nil {
		return fmt.Errorf("failed to delete sample %q: %w", name, err)
	}
	return nil
}
