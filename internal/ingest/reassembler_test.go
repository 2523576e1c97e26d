package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestReassembler(t *testing.T) (*Reassembler, string, string) {
	t.Helper()
	scratch := t.TempDir()
	importDir := t.TempDir()
	return NewReassembler(scratch, importDir), scratch, importDir
}

func put(t *testing.T, r *Reassembler, name string, n, total int, data string) bool {
	t.Helper()
	done, err := r.PutChunk(name, n, total, strings.NewReader(data))
	if err != nil {
		t.Fatalf("PutChunk(%s, %d/%d) failed: %v", name, n, total, err)
	}
	return done
}

func assembledPath(importDir, name string) string {
	return filepath.Join(importDir, "public", name)
}

func TestPutChunk_InOrder(t *testing.T) {
	r, scratch, importDir := newTestReassembler(t)

	if done := put(t, r, "slide.svs", 0, 3, "aaa"); done {
		t.Error("expected done=false after first chunk")
	}
	if done := put(t, r, "slide.svs", 1, 3, "bbb"); done {
		t.Error("expected done=false after second chunk")
	}
	if done := put(t, r, "slide.svs", 2, 3, "ccc"); !done {
		t.Fatal("expected done=true after final chunk")
	}

	data, err := os.ReadFile(assembledPath(importDir, "slide.svs"))
	if err != nil {
		t.Fatalf("failed to read assembled file: %v", err)
	}
	if string(data) != "aaabbbccc" {
		t.Errorf("unexpected assembled content: %q", data)
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected scratch dir to be empty, found %d entries", len(entries))
	}
}

func TestPutChunk_OutOfOrder(t *testing.T) {
	r, _, importDir := newTestReassembler(t)

	put(t, r, "slide.tif", 2, 3, "CC")
	put(t, r, "slide.tif", 0, 3, "AA")
	if done := put(t, r, "slide.tif", 1, 3, "BB"); !done {
		t.Fatal("expected completion once all distinct chunks arrived")
	}

	data, err := os.ReadFile(assembledPath(importDir, "slide.tif"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "AABBCC" {
		t.Errorf("unexpected assembled content: %q", data)
	}
}

func TestPutChunk_RetryOverwrites(t *testing.T) {
	r, _, importDir := newTestReassembler(t)

	put(t, r, "slide.tiff", 0, 2, "old0")
	put(t, r, "slide.tiff", 0, 2, "new0")
	if done := put(t, r, "slide.tiff", 1, 2, "tail"); !done {
		t.Fatal("expected completion; a retried chunk must not count twice")
	}

	data, err := os.ReadFile(assembledPath(importDir, "slide.tiff"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new0tail" {
		t.Errorf("expected latest chunk bytes to win, got %q", data)
	}
}

func TestPutChunk_SingleChunk(t *testing.T) {
	r, _, importDir := newTestReassembler(t)

	if done := put(t, r, "whole.svs", 0, 1, "payload"); !done {
		t.Fatal("expected single-chunk upload to complete immediately")
	}
	data, err := os.ReadFile(assembledPath(importDir, "whole.svs"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestPutChunk_Rejections(t *testing.T) {
	r, _, _ := newTestReassembler(t)

	tests := []struct {
		name    string
		file    string
		n       int
		total   int
		wantErr error
	}{
		{"bad extension", "notes.txt", 0, 1, ErrUnsupportedFileType},
		{"no extension", "slide", 0, 1, ErrUnsupportedFileType},
		{"path traversal", "../evil.svs", 0, 1, ErrInvalidChunk},
		{"empty name", "", 0, 1, ErrInvalidChunk},
		{"zero total", "slide.svs", 0, 0, ErrInvalidChunk},
		{"negative chunk", "slide.svs", -1, 2, ErrInvalidChunk},
		{"chunk past total", "slide.svs", 2, 2, ErrInvalidChunk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.PutChunk(tt.file, tt.n, tt.total, bytes.NewReader(nil))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPutChunk_FailedAssemblyLeavesNoArtifact(t *testing.T) {
	r, scratch, importDir := newTestReassembler(t)

	put(t, r, "slide.svs", 0, 3, "aaa")
	put(t, r, "slide.svs", 1, 3, "bbb")

	// Losing a scratch chunk makes the final concatenation pass fail.
	if err := os.Remove(filepath.Join(scratch, "slide.svs_0")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.PutChunk("slide.svs", 2, 3, strings.NewReader("ccc")); err == nil {
		t.Fatal("expected assembly error for missing chunk")
	}

	// The import area must hold no partial or truncated artifact.
	entries, err := os.ReadDir(filepath.Join(importDir, "public"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty import area after failed assembly, found %v", entries)
	}

	// Surviving chunks stay on disk and re-sending just the missing one
	// completes the upload.
	for _, n := range []int{1, 2} {
		if _, err := os.Stat(filepath.Join(scratch, fmt.Sprintf("slide.svs_%d", n))); err != nil {
			t.Errorf("expected chunk %d to survive failed assembly: %v", n, err)
		}
	}
	if done := put(t, r, "slide.svs", 0, 3, "aaa"); !done {
		t.Fatal("expected retry of the missing chunk to complete the upload")
	}
	data, err := os.ReadFile(assembledPath(importDir, "slide.svs"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "aaabbbccc" {
		t.Errorf("unexpected assembled content: %q", data)
	}
}

func TestPutChunk_TotalMismatch(t *testing.T) {
	r, _, _ := newTestReassembler(t)

	put(t, r, "slide.svs", 0, 3, "a")
	if _, err := r.PutChunk("slide.svs", 1, 4, strings.NewReader("b")); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("expected ErrInvalidChunk on total mismatch, got %v", err)
	}
}
