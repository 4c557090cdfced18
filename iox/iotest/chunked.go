// Package iotest provides readers that reproduce streaming HTTP bodies in
// tests.
package iotest

import "io"

// ChunkedReader yields a fixed sequence of chunks, one per Read call,
// regardless of the caller's buffer size (excess bytes carry over to the
// next call). It reproduces the arbitrary chunk boundaries a streaming HTTP
// body delivers.
type ChunkedReader struct {
	chunks [][]byte
	err    error
}

// NewChunkedReader returns a reader over the given chunks.
// After the last chunk, Read returns io.EOF.
func NewChunkedReader(chunks ...[]byte) *ChunkedReader {
	return &ChunkedReader{chunks: chunks, err: io.EOF}
}

// NewChunkedStringReader is NewChunkedReader for string chunks.
func NewChunkedStringReader(chunks ...string) *ChunkedReader {
	b := make([][]byte, len(chunks))
	for i, c := range chunks {
		b[i] = []byte(c)
	}
	return NewChunkedReader(b...)
}

// FailWith makes Read return err instead of io.EOF once the chunks run out.
func (r *ChunkedReader) FailWith(err error) *ChunkedReader {
	r.err = err
	return r
}

// Read implements io.Reader.
func (r *ChunkedReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

// Close implements io.Closer. Remaining chunks are dropped.
func (r *ChunkedReader) Close() error {
	r.chunks = nil
	r.err = io.ErrClosedPipe
	return nil
}
