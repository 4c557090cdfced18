// Package source opens upload payloads: local files, in-memory readers and
// S3 objects.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Object is an opened upload payload. The caller owns Body.
type Object struct {
	// Name is the file name sent with the multipart part.
	Name string
	// Size is the payload size in bytes, or -1 when unknown.
	Size int64
	Body io.ReadCloser
}

// Source yields an upload payload on demand.
type Source interface {
	// Name returns the file name without opening the payload.
	Name() string
	// Open opens the payload. Each call returns a fresh body.
	Open(ctx context.Context) (*Object, error)
}

// File is a payload on the local filesystem.
type File struct {
	Path string
}

// Name returns the base name of the file.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// Open opens the file for reading.
func (f File) Open(_ context.Context) (*Object, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	info, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("stat %s: %w", f.Path, err)
	}
	if info.IsDir() {
		_ = fh.Close()
		return nil, fmt.Errorf("open %s: is a directory", f.Path)
	}
	return &Object{Name: f.Name(), Size: info.Size(), Body: fh}, nil
}

// Reader is an in-memory or caller-owned payload. It can be opened once.
type Reader struct {
	name   string
	size   int64
	r      io.Reader
	opened bool
}

// FromReader wraps r as a single-use source. size may be -1.
func FromReader(name string, r io.Reader, size int64) *Reader {
	return &Reader{name: name, size: size, r: r}
}

// Name returns the name given to FromReader.
func (s *Reader) Name() string {
	return s.name
}

// Open returns the wrapped reader. A second Open fails.
func (s *Reader) Open(_ context.Context) (*Object, error) {
	if s.opened {
		return nil, errors.New("source: reader already consumed")
	}
	s.opened = true
	rc, ok := s.r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(s.r)
	}
	return &Object{Name: s.name, Size: s.size, Body: rc}, nil
}

// Resolver maps a reference to a Source: "s3://bucket/key" to an S3 object,
// anything else to a local file.
type Resolver struct {
	// S3 serves s3:// references. Nil rejects them.
	S3 GetObjectAPI
}

// Resolve returns the Source for ref.
func (r Resolver) Resolve(ref string) (Source, error) {
	if IsS3(ref) {
		bucket, key, err := ParseS3URI(ref)
		if err != nil {
			return nil, err
		}
		if r.S3 == nil {
			return nil, fmt.Errorf("source: %s requires an S3 client", ref)
		}
		return &S3{Client: r.S3, Bucket: bucket, Key: key}, nil
	}
	if ref == "" {
		return nil, errors.New("source: empty reference")
	}
	return File{Path: ref}, nil
}
