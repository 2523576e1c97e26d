// Package sysops wraps the system tools used for storage accounting and
// sample removal behind a small capability interface.
package sysops

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Ops exposes the filesystem operations the sample lifecycle needs. Tests
// substitute fakes so no real du or rm runs.
type Ops interface {
	// Usage reports the disk usage of the tree rooted at path, in bytes.
	Usage(path string) (int64, error)
	// RemoveTree deletes the tree rooted at path.
	RemoveTree(path string) error
}

// ExecOps implements Ops by shelling out to du and rm.
type ExecOps struct {
	DUPath string
	RMPath string
}

// NewExecOps creates an Ops backed by the given tool paths.
func NewExecOps(duPath, rmPath string) *ExecOps {
	return &ExecOps{DUPath: duPath, RMPath: rmPath}
}

// Usage runs "du -s" and converts the reported 512-byte blocks to bytes.
func (o *ExecOps) Usage(path string) (int64, error) {
	out, err := exec.Command(o.DUPath, "-s", path).Output()
	if err != nil {
		return 0, fmt.Errorf("du failed for %s: %w", path, err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("unexpected du output for %s: %q", path, out)
	}
	blocks, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected du output for %s: %q", path, out)
	}
	return blocks * 512, nil
}

// RemoveTree runs "rm -rf". A non-zero exit status is an error; the caller
// must not treat the sample as deleted when rm fails.
func (o *ExecOps) RemoveTree(path string) error {
	out, err := exec.Command(o.RMPath, "-rf", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rm failed for %s: %w (%s)", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}
