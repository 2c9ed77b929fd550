package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type fileContext struct{}

type fileReader struct {
	*os.File
	size int64
}

func (r *fileReader) Size() int64 { return r.size }

func (fileContext) Open(_ context.Context, u URI) (Reader, error) {
	f, err := os.Open(u.Path())
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", u.Path(), err)
	}
	return &fileReader{File: f, size: st.Size()}, nil
}

// atomicFile writes to a temporary sibling renamed over the destination on
// Close, so that readers never see a partial file.
type atomicFile struct {
	*os.File
	dst string
}

func (a *atomicFile) Close() error {
	if err := a.File.Close(); err != nil {
		os.Remove(a.File.Name())
		return err
	}
	if err := os.Rename(a.File.Name(), a.dst); err != nil {
		os.Remove(a.File.Name())
		return fmt.Errorf("rename %s: %w", a.dst, err)
	}
	return nil
}

// Abort drops the temporary file, leaving the destination untouched.
func (a *atomicFile) Abort() error {
	a.File.Close()
	return os.Remove(a.File.Name())
}

func (fileContext) Create(_ context.Context, u URI) (io.WriteCloser, error) {
	dst := u.Path()
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()))
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: f, dst: dst}, nil
}

func (fileContext) Close() error { return nil }
