// Package sse turns a chunked response body into the ordered payloads of its
// "data: " lines.
package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Framing constants.
const (
	// DataPrefix marks a significant line. Everything else is discarded.
	DataPrefix = "data: "
	// MaxLineSize bounds a single buffered line (1 MiB).
	MaxLineSize = 1024 * 1024
	// readSize is the per-Read buffer handed to the source.
	readSize = 4096
)

// FrameErrorKind classifies frame reading errors.
type FrameErrorKind int

const (
	// FrameErrorTransport indicates the source failed mid-stream.
	FrameErrorTransport FrameErrorKind = iota
	// FrameErrorTooLarge indicates a line exceeding MaxLineSize.
	FrameErrorTooLarge
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorTransport:
		return "transport"
	case FrameErrorTooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", int(k))
	}
}

// FrameError represents a frame reading error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsTooLarge returns true if err is an oversized line error.
func IsTooLarge(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorTooLarge
	}
	return false
}

// FrameReader yields the payloads of "data: " lines from a byte source.
//
// Bytes are decoded as UTF-8 incrementally, so a multi-byte character split
// across two reads is reassembled instead of replaced. Complete lines are
// queued; the trailing partial line stays buffered until its newline arrives.
// A FrameReader is single-use and not safe for concurrent use.
type FrameReader struct {
	src     io.Reader
	buf     []byte
	pending []byte
	queue   []string
	err     error

	lines     int
	discarded int
}

// NewFrameReader creates a frame reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		src: transform.NewReader(r, unicode.UTF8.NewDecoder()),
		buf: make([]byte, readSize),
	}
}

// Next returns the next payload with the "data: " prefix stripped.
//
// Errors:
//   - io.EOF: source ended; any unterminated tail was discarded
//   - *FrameError with Kind=FrameErrorTransport: the source failed
//   - *FrameError with Kind=FrameErrorTooLarge: a line exceeded MaxLineSize
//
// Payloads already queued are returned before any error. Once an error is
// returned, every later call returns the same error.
func (r *FrameReader) Next() (string, error) {
	for {
		if len(r.queue) > 0 {
			payload := r.queue[0]
			r.queue = r.queue[1:]
			return payload, nil
		}
		if r.err != nil {
			return "", r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.buf[:n]...)
			r.split()
			if len(r.pending) > MaxLineSize {
				r.err = &FrameError{
					Kind: FrameErrorTooLarge,
					Msg:  fmt.Sprintf("line exceeds maximum %d bytes", MaxLineSize),
				}
				r.pending = nil
				continue
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			r.discarded = len(r.pending)
			r.pending = nil
			r.err = io.EOF
		default:
			r.err = &FrameError{
				Kind: FrameErrorTransport,
				Msg:  "failed to read stream",
				Err:  err,
			}
		}
	}
}

// split moves every complete line out of pending.
func (r *FrameReader) split() {
	rest := r.pending
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(rest[:i], []byte{'\r'})
		rest = rest[i+1:]
		r.lines++
		if payload, ok := bytes.CutPrefix(line, []byte(DataPrefix)); ok {
			r.queue = append(r.queue, string(payload))
		}
	}
	r.pending = append(r.pending[:0], rest...)
}

// Lines returns the number of complete lines seen, significant or not.
func (r *FrameReader) Lines() int {
	return r.lines
}

// Discarded returns the size of the unterminated tail dropped at end of
// source. Zero until the source has ended.
func (r *FrameReader) Discarded() int {
	return r.discarded
}
