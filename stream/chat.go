package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pithecene-io/chatwire/adapter"
	"github.com/pithecene-io/chatwire/log"
	"github.com/pithecene-io/chatwire/metrics"
	"github.com/pithecene-io/chatwire/types"
)

// DefaultFallbackMessage is the assistant message of a turn that failed.
const DefaultFallbackMessage = "Sorry, something went wrong. Please try again."

// DefaultNotifyTimeout bounds one invalidation publish.
const DefaultNotifyTimeout = 10 * time.Second

// maxLoggedPayload truncates payloads in debug logs.
const maxLoggedPayload = 256

// ErrConsumerUsed is returned by a second Run on the same consumer.
var ErrConsumerUsed = errors.New("consumer already ran")

// ChatState is the lifecycle state of one chat turn.
type ChatState int32

// Chat states. Transitions only move forward.
const (
	StateIdle ChatState = iota
	StateSending
	StateStreaming
	StateFinalized
)

func (s ChatState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("ChatState(%d)", int32(s))
	}
}

// FinalizeReason is why a turn finalized.
type FinalizeReason string

// Finalize reasons.
const (
	// ReasonDone: the [DONE] sentinel arrived.
	ReasonDone FinalizeReason = "done"
	// ReasonEOF: the stream ended without [DONE]. Still a normal completion.
	ReasonEOF FinalizeReason = "eof"
	// ReasonAborted: the turn was cancelled.
	ReasonAborted FinalizeReason = "aborted"
	// ReasonError: the request or stream failed; the message is the fallback.
	ReasonError FinalizeReason = "error"
)

// Normal reports whether the reason is a normal completion.
func (r FinalizeReason) Normal() bool {
	return r == ReasonDone || r == ReasonEOF
}

// ChatOutcome is the single finalization of a chat turn.
type ChatOutcome struct {
	// Message is the finalized assistant message: the accumulated text, or
	// the fallback message for ReasonError.
	Message types.Message
	Reason  FinalizeReason
	// SawDone distinguishes [DONE] from a bare end of stream.
	SawDone bool
	// ConversationID is echoed by some backends; empty otherwise.
	ConversationID string
	// Err is the classified failure for ReasonError, nil otherwise.
	Err error

	Frames    int
	Malformed int
	Duration  time.Duration
}

// ChatObserver receives the progress of a turn on the consumer goroutine,
// in frame order.
type ChatObserver interface {
	// OnDelta receives the full accumulated text after each content frame.
	OnDelta(accumulated string)
	// OnToolStatus receives the current tool status; nil clears it.
	OnToolStatus(status *types.ToolStatus)
	// OnFinalize receives the outcome exactly once.
	OnFinalize(outcome *ChatOutcome)
}

// ObserverFuncs adapts optional callbacks to ChatObserver.
type ObserverFuncs struct {
	Delta      func(accumulated string)
	ToolStatus func(status *types.ToolStatus)
	Finalize   func(outcome *ChatOutcome)
}

// OnDelta implements ChatObserver.
func (o ObserverFuncs) OnDelta(accumulated string) {
	if o.Delta != nil {
		o.Delta(accumulated)
	}
}

// OnToolStatus implements ChatObserver.
func (o ObserverFuncs) OnToolStatus(status *types.ToolStatus) {
	if o.ToolStatus != nil {
		o.ToolStatus(status)
	}
}

// OnFinalize implements ChatObserver.
func (o ObserverFuncs) OnFinalize(outcome *ChatOutcome) {
	if o.Finalize != nil {
		o.Finalize(outcome)
	}
}

var _ ChatObserver = ObserverFuncs{}

// ChatOptions configures a ChatConsumer. Every field is optional.
type ChatOptions struct {
	Logger    *log.Logger
	Collector *metrics.Collector
	// Notifier receives a conversation invalidation after a normal
	// finalization. Nil disables notifications.
	Notifier      adapter.Adapter
	NotifyTimeout time.Duration
	// Dialect decodes payloads. Nil means NativeDialect.
	Dialect Dialect
	// ToolStatus enables tool_status handling. When false such frames are
	// counted and ignored.
	ToolStatus bool
	Observer   ChatObserver
	// IdleTimeout cancels a silent stream. Zero disables it.
	IdleTimeout time.Duration
	// FallbackMessage replaces DefaultFallbackMessage.
	FallbackMessage string
	Meta            types.StreamMeta
}

// ChatConsumer drives one chat turn from request to finalization.
// It is single-use and not safe for concurrent Run calls; State may be read
// from any goroutine.
type ChatConsumer struct {
	opts   ChatOptions
	logger *log.Logger
	state  atomic.Int32

	text    strings.Builder
	tool    *types.ToolStatus
	outcome ChatOutcome
}

// NewChatConsumer creates a consumer for one turn.
func NewChatConsumer(opts ChatOptions) *ChatConsumer {
	if opts.Dialect == nil {
		opts.Dialect = NativeDialect{}
	}
	if opts.Observer == nil {
		opts.Observer = ObserverFuncs{}
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = DefaultFallbackMessage
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	opts.Meta.Kind = types.StreamKindChat
	return &ChatConsumer{
		opts:   opts,
		logger: opts.Logger.ForStream(opts.Meta),
	}
}

// State returns the current lifecycle state.
func (c *ChatConsumer) State() ChatState {
	return ChatState(c.state.Load())
}

func (c *ChatConsumer) setState(s ChatState) {
	c.state.Store(int32(s))
}

// Run issues the request through open and consumes the stream until it
// finalizes. Request-level failures never surface as an error: they are
// reported on the outcome. The returned error is only ErrHandleReused or
// ErrConsumerUsed, for caller misuse.
//
// Per payload:
//   - [DONE] stops reading and finalizes normally
//   - undecodable payloads are logged, counted and skipped
//   - tool_status replaces the current tool status and never touches the text
//   - non-empty content is appended and the accumulated text is published
func (c *ChatConsumer) Run(handle *CancelHandle, open Opener) (*ChatOutcome, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateSending)) {
		return nil, ErrConsumerUsed
	}
	if err := handle.claim(); err != nil {
		c.setState(StateIdle)
		return nil, err
	}
	defer handle.release()

	start := time.Now()
	c.opts.Collector.IncTurnStarted()
	c.logger.Debug("chat turn sending", map[string]any{
		"dialect": c.opts.Dialect.Name(),
	})

	res := pump(handle.Context(), c.opts.IdleTimeout, open,
		func() { c.setState(StateStreaming) },
		c.handleFrame,
	)

	switch {
	case res.stopped:
		c.outcome.SawDone = true
		c.finalize(handle, ReasonDone, nil)
	case res.ended:
		if res.discarded > 0 {
			c.logger.Debug("discarded unterminated tail", map[string]any{"bytes": res.discarded})
		}
		c.finalize(handle, ReasonEOF, nil)
	case res.err.Kind == ErrorAborted:
		c.finalize(handle, ReasonAborted, nil)
	default:
		c.finalize(handle, ReasonError, res.err)
	}

	c.outcome.Duration = time.Since(start)
	out := c.outcome
	return &out, nil
}

func (c *ChatConsumer) handleFrame(payload string) bool {
	c.outcome.Frames++
	c.opts.Collector.IncFrameReceived()

	if payload == types.DoneSentinel {
		return true
	}

	delta, err := c.opts.Dialect.Decode(payload)
	if err != nil {
		c.outcome.Malformed++
		c.opts.Collector.IncMalformedFrame()
		c.logger.Debug("skipping malformed frame", map[string]any{
			"error":   err.Error(),
			"payload": truncate(payload, maxLoggedPayload),
		})
		return false
	}

	if delta.ConversationID != "" {
		c.outcome.ConversationID = delta.ConversationID
	}

	if delta.ToolStatus != nil {
		c.opts.Collector.IncToolStatusFrame()
		if !c.opts.ToolStatus {
			return false
		}
		status := *delta.ToolStatus
		if status.Tool == "" && c.tool != nil {
			status.Tool = c.tool.Tool
		}
		c.tool = &status
		c.opts.Observer.OnToolStatus(c.tool)
		return false
	}

	if delta.Content != "" {
		c.text.WriteString(delta.Content)
		c.opts.Observer.OnDelta(c.text.String())
	}
	return false
}

// finalize publishes the one outcome of the turn. The accumulated text is
// cleared only after the observer received it.
func (c *ChatConsumer) finalize(handle *CancelHandle, reason FinalizeReason, err *StreamError) {
	c.outcome.Reason = reason
	c.outcome.Message = types.Message{Role: types.RoleAssistant, Content: c.text.String()}
	if err != nil {
		c.outcome.Err = err
		c.outcome.Message.Content = c.opts.FallbackMessage
	}

	if c.tool != nil {
		c.tool = nil
		c.opts.Observer.OnToolStatus(nil)
	}

	fields := map[string]any{
		"reason":    string(reason),
		"frames":    c.outcome.Frames,
		"malformed": c.outcome.Malformed,
		"chars":     c.text.Len(),
	}
	switch reason {
	case ReasonDone, ReasonEOF:
		c.opts.Collector.IncTurnCompleted()
		c.logger.Info("chat turn completed", fields)
	case ReasonAborted:
		c.opts.Collector.IncTurnAborted()
		c.logger.Info("chat turn aborted", fields)
	case ReasonError:
		c.opts.Collector.IncTurnFailed()
		if err.Kind == ErrorTransport {
			c.opts.Collector.IncTransportError()
		}
		fields["error"] = err.Error()
		fields["kind"] = err.Kind.String()
		c.logger.Error("chat turn failed", fields)
	}

	c.setState(StateFinalized)
	out := c.outcome
	c.opts.Observer.OnFinalize(&out)
	c.text.Reset()

	if reason.Normal() {
		c.notify(handle)
	}
}

func (c *ChatConsumer) notify(handle *CancelHandle) {
	if c.opts.Notifier == nil {
		return
	}
	conversationID := c.opts.Meta.ConversationID
	if conversationID == "" {
		conversationID = c.outcome.ConversationID
	}
	if conversationID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(handle.Context()), c.opts.NotifyTimeout)
	defer cancel()

	event := adapter.ConversationUpdated(conversationID, c.opts.Meta.UserID, time.Now())
	if err := c.opts.Notifier.Publish(ctx, event); err != nil {
		c.opts.Collector.IncNotifyFailure()
		c.logger.Warn("conversation invalidation failed", map[string]any{"error": err.Error()})
		return
	}
	c.opts.Collector.IncNotifySuccess()
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
