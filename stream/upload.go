package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/chatwire/adapter"
	"github.com/pithecene-io/chatwire/log"
	"github.com/pithecene-io/chatwire/metrics"
	"github.com/pithecene-io/chatwire/types"
)

// DefaultUploadFailure is the friendly text for an unrecognized empty error.
const DefaultUploadFailure = "Upload failed. Please try again."

// errUploadTerminal is returned by the tracker for events after complete or error.
var errUploadTerminal = errors.New("upload already terminal")

// NewUploadID returns a fresh upload correlation id.
func NewUploadID() string {
	return uuid.NewString()
}

// UploadEventKind discriminates UploadEvent.
type UploadEventKind int

// Upload event kinds.
const (
	UploadStarted UploadEventKind = iota
	UploadProgressed
	UploadCompleted
	UploadFailed
)

func (k UploadEventKind) String() string {
	switch k {
	case UploadStarted:
		return "started"
	case UploadProgressed:
		return "progressed"
	case UploadCompleted:
		return "completed"
	case UploadFailed:
		return "failed"
	default:
		return fmt.Sprintf("UploadEventKind(%d)", int(k))
	}
}

// Terminal reports whether the kind ends the upload.
func (k UploadEventKind) Terminal() bool {
	return k == UploadCompleted || k == UploadFailed
}

// UploadEvent is one typed upload notification. Which fields are set
// depends on Kind:
//
//	UploadStarted:    FileName, FileSize
//	UploadProgressed: Progress, Message
//	UploadCompleted:  Result
//	UploadFailed:     Error, Friendly
type UploadEvent struct {
	Kind     UploadEventKind
	UploadID string

	FileName string
	FileSize int64

	// Progress is 0-100.
	Progress int
	Message  string

	Result *types.UploadResult

	// Error is the raw backend text; Friendly is its user-facing form.
	Error    string
	Friendly string
}

// ErrorClassifier maps a raw backend upload error to user-facing text.
type ErrorClassifier func(raw string) string

var friendlyUploadErrors = []struct {
	needles []string
	text    string
}{
	{[]string{"already exists", "duplicate"}, "This file has already been uploaded."},
	{[]string{"unsupported", "not supported", "invalid file type"}, "This file type is not supported."},
	{[]string{"too large", "exceeds", "size limit"}, "This file is too large to upload."},
}

// ClassifyUploadError is the default ErrorClassifier. Unrecognized text is
// returned unchanged.
func ClassifyUploadError(raw string) string {
	lower := strings.ToLower(raw)
	for _, f := range friendlyUploadErrors {
		for _, n := range f.needles {
			if strings.Contains(lower, n) {
				return f.text
			}
		}
	}
	if strings.TrimSpace(raw) == "" {
		return DefaultUploadFailure
	}
	return raw
}

// UploadOptions configures an UploadConsumer. Every field is optional.
type UploadOptions struct {
	Logger    *log.Logger
	Collector *metrics.Collector
	// Notifier receives a files invalidation after a completed upload.
	Notifier      adapter.Adapter
	NotifyTimeout time.Duration
	// IdleTimeout cancels a silent stream. Zero disables it.
	IdleTimeout time.Duration
	// ErrorClassifier replaces ClassifyUploadError.
	ErrorClassifier ErrorClassifier
}

// UploadConsumer consumes upload progress streams. It holds no per-upload
// state: each Run tracks its own upload, so one consumer may serve
// concurrent uploads.
type UploadConsumer struct {
	opts UploadOptions
}

// NewUploadConsumer creates an upload consumer.
func NewUploadConsumer(opts UploadOptions) *UploadConsumer {
	if opts.ErrorClassifier == nil {
		opts.ErrorClassifier = ClassifyUploadError
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	return &UploadConsumer{opts: opts}
}

// uploadTracker owns the state of one upload.
type uploadTracker struct {
	id    string
	state types.UploadState
	sink  func(UploadEvent)
}

func (t *uploadTracker) apply(ev UploadEvent) error {
	if t.state.Status.IsTerminal() {
		return errUploadTerminal
	}
	ev.UploadID = t.id
	switch ev.Kind {
	case UploadStarted:
		t.state.Status = types.UploadStatusUploading
	case UploadProgressed:
		t.state.Status = types.UploadStatusUploading
		t.state.Progress = ev.Progress
		t.state.Message = ev.Message
	case UploadCompleted:
		t.state.Status = types.UploadStatusCompleted
		t.state.Progress = 100
	case UploadFailed:
		t.state.Status = types.UploadStatusError
		t.state.Message = ev.Friendly
	}
	if t.sink != nil {
		t.sink(ev)
	}
	return nil
}

// Run opens the upload stream and consumes it until a terminal event.
//
// A server-reported error is an outcome, not a Go error: Run returns the
// final state with status error and a nil error after delivering
// UploadFailed. Run returns a *StreamError when no terminal event arrived:
// the transport failed, the handle was cancelled, or the stream ended early
// (ErrorProtocol wrapping ErrNoTerminalEvent). sink runs on the calling
// goroutine in frame order and may be nil.
func (c *UploadConsumer) Run(handle *CancelHandle, uploadID string, open Opener, sink func(UploadEvent)) (types.UploadState, error) {
	if err := handle.claim(); err != nil {
		return types.UploadState{Status: types.UploadStatusPending}, err
	}
	defer handle.release()

	logger := c.opts.Logger.ForStream(types.StreamMeta{Kind: types.StreamKindUpload, UploadID: uploadID})
	tracker := &uploadTracker{
		id:    uploadID,
		state: types.UploadState{Status: types.UploadStatusPending},
		sink:  sink,
	}

	start := time.Now()
	c.opts.Collector.IncUploadStarted()
	logger.Debug("upload stream opening", nil)

	var result *types.UploadResult
	res := pump(handle.Context(), c.opts.IdleTimeout, open,
		func() { tracker.state.Status = types.UploadStatusUploading },
		func(payload string) bool {
			c.opts.Collector.IncFrameReceived()
			ev, ok := c.decode(logger, payload)
			if !ok {
				return false
			}
			if err := tracker.apply(ev); err != nil {
				logger.Warn("dropping event after terminal", map[string]any{"kind": ev.Kind.String()})
				return true
			}
			if ev.Kind == UploadCompleted {
				result = ev.Result
			}
			return ev.Kind.Terminal()
		},
	)

	fields := map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"progress":    tracker.state.Progress,
	}

	if res.stopped {
		switch tracker.state.Status {
		case types.UploadStatusCompleted:
			c.opts.Collector.IncUploadCompleted()
			logger.Info("upload completed", fields)
			c.notify(handle, logger, uploadID, result)
		default:
			c.opts.Collector.IncUploadFailed()
			fields["error"] = tracker.state.Message
			logger.Warn("upload failed", fields)
		}
		return tracker.state, nil
	}

	var serr *StreamError
	if res.ended {
		serr = &StreamError{Kind: ErrorProtocol, Err: ErrNoTerminalEvent}
	} else {
		serr = res.err
	}
	tracker.state.Status = types.UploadStatusError

	fields["error"] = serr.Error()
	fields["kind"] = serr.Kind.String()
	switch serr.Kind {
	case ErrorAborted:
		c.opts.Collector.IncUploadAborted()
		logger.Info("upload aborted", fields)
	case ErrorTransport:
		c.opts.Collector.IncTransportError()
		c.opts.Collector.IncUploadFailed()
		logger.Error("upload stream failed", fields)
	default:
		c.opts.Collector.IncUploadFailed()
		logger.Error("upload stream failed", fields)
	}
	return tracker.state, serr
}

// decode turns one payload into an event. Malformed payloads and unknown
// types report false.
func (c *UploadConsumer) decode(logger *log.Logger, payload string) (UploadEvent, bool) {
	var p types.UploadPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		c.opts.Collector.IncMalformedFrame()
		logger.Debug("skipping malformed frame", map[string]any{
			"error":   err.Error(),
			"payload": truncate(payload, maxLoggedPayload),
		})
		return UploadEvent{}, false
	}

	switch p.Type {
	case types.EventTypeStart:
		return UploadEvent{Kind: UploadStarted, FileName: p.FileName, FileSize: p.FileSize}, true
	case types.EventTypeProgress:
		return UploadEvent{Kind: UploadProgressed, Progress: clampProgress(p.Progress), Message: p.Message}, true
	case types.EventTypeComplete:
		return UploadEvent{Kind: UploadCompleted, Result: p.Data}, true
	case types.EventTypeError:
		return UploadEvent{Kind: UploadFailed, Error: p.Error, Friendly: c.opts.ErrorClassifier(p.Error)}, true
	default:
		logger.Debug("skipping unknown upload event", map[string]any{"type": string(p.Type)})
		return UploadEvent{}, false
	}
}

func clampProgress(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, p))))
}

func (c *UploadConsumer) notify(handle *CancelHandle, logger *log.Logger, uploadID string, result *types.UploadResult) {
	if c.opts.Notifier == nil {
		return
	}
	var fileID string
	if result != nil {
		fileID = result.FileID
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(handle.Context()), c.opts.NotifyTimeout)
	defer cancel()

	if err := c.opts.Notifier.Publish(ctx, adapter.FilesUpdated(uploadID, fileID, time.Now())); err != nil {
		c.opts.Collector.IncNotifyFailure()
		logger.Warn("files invalidation failed", map[string]any{"error": err.Error()})
		return
	}
	c.opts.Collector.IncNotifySuccess()
}

// Upload is an upload running in the background.
type Upload struct {
	ID     string
	events chan UploadEvent
	done   chan struct{}
	state  types.UploadState
	err    error
}

// Start runs the upload on a new goroutine and delivers its events on a
// channel that closes when the upload finalizes. Cancel it through handle.
func (c *UploadConsumer) Start(handle *CancelHandle, uploadID string, open Opener) *Upload {
	u := &Upload{
		ID:     uploadID,
		events: make(chan UploadEvent, 16),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(u.done)
		defer close(u.events)
		u.state, u.err = c.Run(handle, uploadID, open, func(ev UploadEvent) {
			u.events <- ev
		})
	}()
	return u
}

// Events returns the event channel.
func (u *Upload) Events() <-chan UploadEvent {
	return u.events
}

// Wait blocks until the upload finalizes. Events not yet received are
// discarded.
func (u *Upload) Wait() (types.UploadState, error) {
	for range u.events {
	}
	<-u.done
	return u.state, u.err
}
