// Package ingest reassembles chunked slide uploads.
//
// The client splits a slide file into numbered chunks and posts them in any
// order, possibly retrying individual chunks. Each chunk lands in a scratch
// directory as "{name}_{n}"; once every distinct chunk index has arrived the
// chunks are concatenated in index order into the import area and the
// scratch files are removed.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sentinel errors returned by PutChunk.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrInvalidChunk        = errors.New("invalid chunk")
)

// Reassembler tracks in-flight uploads and assembles completed ones.
type Reassembler struct {
	scratchDir string
	importDir  string

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu       sync.Mutex
	total    int
	received map[int]struct{}
}

// NewReassembler creates a reassembler writing scratch chunks under
// scratchDir and finished files under importDir/public.
func NewReassembler(scratchDir, importDir string) *Reassembler {
	return &Reassembler{
		scratchDir: scratchDir,
		importDir:  importDir,
		sessions:   make(map[string]*session),
	}
}

// allowedExtensions are the slide formats the import pipeline accepts.
var allowedExtensions = map[string]bool{
	".svs":  true,
	".tiff": true,
	".tif":  true,
}

// PutChunk stores one chunk of an upload. It returns done=true when the
// chunk completed the file and the assembled result was written out.
// Re-uploading a chunk index is allowed; the latest bytes win.
func (r *Reassembler) PutChunk(name string, chunkNumber, totalChunks int, src io.Reader) (done bool, err error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return false, fmt.Errorf("%w: bad file name %q", ErrInvalidChunk, name)
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(name))
	}
	if totalChunks < 1 {
		return false, fmt.Errorf("%w: total chunks %d", ErrInvalidChunk, totalChunks)
	}
	if chunkNumber < 0 || chunkNumber >= totalChunks {
		return false, fmt.Errorf("%w: chunk %d of %d", ErrInvalidChunk, chunkNumber, totalChunks)
	}

	sess := r.getSession(name, totalChunks)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.total != totalChunks {
		return false, fmt.Errorf("%w: total chunks changed from %d to %d", ErrInvalidChunk, sess.total, totalChunks)
	}

	if err := r.writeChunk(name, chunkNumber, src); err != nil {
		return false, err
	}
	sess.received[chunkNumber] = struct{}{}

	if len(sess.received) < sess.total {
		return false, nil
	}

	if err := r.assemble(name, sess.total); err != nil {
		return false, err
	}

	r.mu.Lock()
	delete(r.sessions, name)
	r.mu.Unlock()
	return true, nil
}

func (r *Reassembler) getSession(name string, totalChunks int) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	if !ok {
		sess = &session{total: totalChunks, received: make(map[int]struct{})}
		r.sessions[name] = sess
	}
	return sess
}

func (r *Reassembler) writeChunk(name string, chunkNumber int, src io.Reader) error {
	path := r.chunkPath(name, chunkNumber)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("failed to write chunk file: %w", err)
	}
	return f.Close()
}

// assemble concatenates all chunks in index order into a temporary file and
// renames it into the import area, so the destination only ever holds a
// complete artifact. Scratch chunks are removed only after the rename; on
// error they and the session survive untouched for retry.
func (r *Reassembler) assemble(name string, totalChunks int) (err error) {
	destDir := filepath.Join(r.importDir, "public")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create import dir: %w", err)
	}

	tmp, err := os.CreateTemp(destDir, name+".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create assembly file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	for n := 0; n < totalChunks; n++ {
		src, err := os.Open(r.chunkPath(name, n))
		if err != nil {
			return fmt.Errorf("failed to open chunk %d: %w", n, err)
		}
		_, err = io.Copy(tmp, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("failed to append chunk %d: %w", n, err)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to finish assembly file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(destDir, name)); err != nil {
		return fmt.Errorf("failed to move assembled file: %w", err)
	}

	for n := 0; n < totalChunks; n++ {
		os.Remove(r.chunkPath(name, n))
	}
	return nil
}

func (r *Reassembler) chunkPath(name string, chunkNumber int) string {
	return filepath.Join(r.scratchDir, fmt.Sprintf("%s_%d", name, chunkNumber))
}
