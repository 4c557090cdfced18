package stream

import (
	"context"
	"errors"
	"sync/atomic"
)

// CancelHandle is the cancellation token of exactly one request.
//
// Cancel may be called from any goroutine, any number of times. A consumer
// claims the handle when it starts; a second claim fails with ErrHandleReused.
type CancelHandle struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	used   atomic.Bool
}

// NewCancelHandle derives a handle from parent. Cancelling parent cancels
// the request too.
func NewCancelHandle(parent context.Context) *CancelHandle {
	ctx, cancel := context.WithCancelCause(parent)
	return &CancelHandle{ctx: ctx, cancel: cancel}
}

// Cancel aborts the request. Before any bytes arrive the request is never
// sent or is dropped; mid-stream the body is closed and buffered frames are
// not processed.
func (h *CancelHandle) Cancel() {
	h.cancel(ErrAborted)
}

// Context returns the request context. Its cause is ErrAborted after Cancel.
func (h *CancelHandle) Context() context.Context {
	return h.ctx
}

// Aborted reports whether Cancel was called before the request finished.
func (h *CancelHandle) Aborted() bool {
	return errors.Is(context.Cause(h.ctx), ErrAborted)
}

// claim marks the handle used.
func (h *CancelHandle) claim() error {
	if !h.used.CompareAndSwap(false, true) {
		return ErrHandleReused
	}
	return nil
}

// release frees the context once the request is finalized. A later Cancel
// is a no-op.
func (h *CancelHandle) release() {
	h.cancel(context.Canceled)
}
