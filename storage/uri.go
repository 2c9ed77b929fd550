// Package storage reads and writes objects on the local filesystem and on
// object stores, addressed by URIs of the form kind://tray/object.
package storage

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/ntiff/internal/errs"
)

type Kind string

const (
	File  Kind = "file"
	Ceph  Kind = "ceph"
	S3    Kind = "s3"
	Swift Kind = "swift"
	GS    Kind = "gs"
)

// URI locates an object. For files, Tray is the directory part.
type URI struct {
	Kind   Kind
	Tray   string
	Object string
}

// Parse splits s. A string without scheme is a file path.
func Parse(s string) (URI, error) {
	i := strings.Index(s, "://")
	if i < 0 {
		dir, name := filepath.Split(s)
		return URI{Kind: File, Tray: dir, Object: name}, nil
	}
	kind := Kind(strings.ToLower(s[:i]))
	rest := s[i+3:]
	switch kind {
	case File:
		dir, name := filepath.Split(rest)
		return URI{Kind: File, Tray: dir, Object: name}, nil
	case Ceph, S3, Swift, GS:
	default:
		return URI{}, errs.Configf("unsupported storage type %q in %s", kind, s)
	}
	j := strings.Index(rest, "/")
	if j <= 0 || j == len(rest)-1 {
		return URI{}, errs.Configf("%s: expected %s://tray/object", s, kind)
	}
	return URI{Kind: kind, Tray: rest[:j], Object: rest[j+1:]}, nil
}

// Path returns the local path of a file URI.
func (u URI) Path() string {
	return filepath.Join(u.Tray, u.Object)
}

func (u URI) String() string {
	if u.Kind == File {
		return u.Path()
	}
	return string(u.Kind) + "://" + u.Tray + "/" + u.Object
}

// Reader gives random access to an object.
type Reader interface {
	io.ReaderAt
	io.Closer
	Size() int64
}
