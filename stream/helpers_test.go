package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/chatwire/adapter"
	"github.com/pithecene-io/chatwire/iox/iotest"
)

// frames renders payloads as data lines.
func frames(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

// openChunks returns an Opener serving the given chunks, one per Read.
func openChunks(chunks ...string) Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return iotest.NewChunkedStringReader(chunks...), nil
	}
}

// openFailing returns an Opener that fails before any body exists.
func openFailing(err error) Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return nil, err
	}
}

// openPipe returns an Opener serving the read side of a pipe. The caller
// writes frames to the returned writer.
func openPipe() (Opener, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return func(context.Context) (io.ReadCloser, error) {
		return pr, nil
	}, pw
}

// fakeAdapter records published events.
type fakeAdapter struct {
	mu     sync.Mutex
	events []*adapter.InvalidationEvent
	err    error
}

func (f *fakeAdapter) Publish(_ context.Context, event *adapter.InvalidationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) published() []*adapter.InvalidationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*adapter.InvalidationEvent(nil), f.events...)
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

var errBoom = errors.New("boom")

// within fails the test if fn does not return before d.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("did not return within %v", d)
	}
}
