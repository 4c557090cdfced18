package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pithecene-io/chatwire/iox"
	"github.com/pithecene-io/chatwire/sse"
)

// Opener issues the request and returns the response body.
// It must honor ctx: cancelling ctx aborts the request.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// frameFunc handles one payload and reports whether the stream is done.
type frameFunc func(payload string) (done bool)

// pumpResult is how a pump ended. Exactly one of stopped, ended or err is set.
type pumpResult struct {
	// stopped: the frame handler reported done.
	stopped bool
	// ended: the source reached EOF.
	ended bool
	err   *StreamError

	// discarded is the unterminated tail dropped at EOF.
	discarded int
}

// watchdog cancels a stream whose body yields no bytes for longer than d.
type watchdog struct {
	d     time.Duration
	timer *time.Timer
}

func startWatchdog(d time.Duration, cancel context.CancelCauseFunc) *watchdog {
	if d <= 0 {
		return nil
	}
	return &watchdog{d: d, timer: time.AfterFunc(d, func() { cancel(ErrIdleTimeout) })}
}

func (w *watchdog) touch() {
	if w != nil {
		w.timer.Reset(w.d)
	}
}

// activity resets w whenever r yields bytes, so comment keepalives count.
type activity struct {
	r  io.Reader
	wd *watchdog
}

func (a activity) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.wd.touch()
	}
	return n, err
}

func (w *watchdog) stop() {
	if w != nil {
		w.timer.Stop()
	}
}

// pump opens a stream under ctx and feeds its payloads to fn in order.
//
// onOpen runs once the body is available. Cancellation closes the body so a
// blocked read returns promptly, and is checked between frames so that
// payloads already buffered are not handed to fn.
func pump(ctx context.Context, idle time.Duration, open Opener, onOpen func(), fn frameFunc) pumpResult {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if runCtx.Err() != nil {
		return pumpResult{err: classify(runCtx, runCtx.Err())}
	}

	wd := startWatchdog(idle, cancel)
	defer wd.stop()

	body, err := open(runCtx)
	if err != nil {
		return pumpResult{err: classify(runCtx, err)}
	}
	defer iox.DiscardClose(body)
	stop := context.AfterFunc(runCtx, iox.CloseFunc(body))
	defer stop()

	if runCtx.Err() != nil {
		return pumpResult{err: classify(runCtx, runCtx.Err())}
	}
	onOpen()

	frames := sse.NewFrameReader(activity{r: body, wd: wd})
	for {
		if runCtx.Err() != nil {
			return pumpResult{err: classify(runCtx, runCtx.Err())}
		}

		payload, err := frames.Next()
		if err != nil {
			if runCtx.Err() != nil {
				return pumpResult{err: classify(runCtx, err)}
			}
			if errors.Is(err, io.EOF) {
				return pumpResult{ended: true, discarded: frames.Discarded()}
			}
			if sse.IsTooLarge(err) {
				return pumpResult{err: &StreamError{Kind: ErrorProtocol, Err: err}}
			}
			return pumpResult{err: classify(runCtx, err)}
		}

		if fn(payload) {
			return pumpResult{stopped: true}
		}
	}
}
