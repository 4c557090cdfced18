package session

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pithecene-io/chatwire/stream"
	"github.com/pithecene-io/chatwire/transport"
	"github.com/pithecene-io/chatwire/types"
)

var (
	// ErrTurnInFlight is returned by Send while another turn is streaming.
	ErrTurnInFlight = errors.New("session: a turn is already in flight")
	// ErrEmptyMessage is returned by Send for blank content.
	ErrEmptyMessage = errors.New("session: message is empty")
)

// Session is the view state of one conversation: its transcript, model
// selection, file scope and in-flight turn. Safe for concurrent use; at most
// one turn runs at a time.
type Session struct {
	client         *Client
	conversationID string
	userID         string

	mu       sync.Mutex
	messages []types.Message
	model    string
	files    []string
	inflight *stream.CancelHandle
}

// NewSession starts a session for a conversation. An empty conversationID
// gets a fresh one.
func (c *Client) NewSession(conversationID, userID string) *Session {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	return &Session{
		client:         c,
		conversationID: conversationID,
		userID:         userID,
		model:          c.cfg.Chat.Model,
	}
}

// ConversationID returns the conversation this session talks to.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Model returns the model used for the next turn.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel changes the model for later turns.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// SelectFiles scopes later turns to the given file ids. No ids clears the scope.
func (s *Session) SelectFiles(fileIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = slices.Clone(fileIDs)
}

// InFlight reports whether a turn is streaming.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// Abort cancels the in-flight turn. Reports whether there was one.
func (s *Session) Abort() bool {
	s.mu.Lock()
	h := s.inflight
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h.Cancel()
	return true
}

// Send appends a user message and runs one chat turn. The finalized
// assistant message is appended to the transcript, except for an aborted
// turn that produced no text. Request failures are reported on the outcome,
// not as an error. observer may be nil and runs on the calling goroutine.
func (s *Session) Send(ctx context.Context, content string, observer stream.ChatObserver) (*stream.ChatOutcome, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.inflight != nil {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	handle := stream.NewCancelHandle(ctx)
	s.inflight = handle
	s.messages = append(s.messages, types.Message{Role: types.RoleUser, Content: content})
	latest, _ := types.LastContent(s.messages)
	body := &transport.ChatRequest{
		Message:         latest,
		UserID:          s.userID,
		Model:           s.model,
		SelectedFileIDs: slices.Clone(s.files),
	}
	s.mu.Unlock()

	cfg := s.client.cfg.Chat
	consumer := stream.NewChatConsumer(stream.ChatOptions{
		Logger:          s.client.logger,
		Collector:       s.client.collector,
		Notifier:        s.client.notifier,
		Dialect:         s.client.dialect,
		ToolStatus:      cfg.ToolStatusEnabled(),
		Observer:        observer,
		IdleTimeout:     cfg.IdleTimeout.Duration,
		FallbackMessage: cfg.FallbackMessage,
		Meta: types.StreamMeta{
			ConversationID: s.conversationID,
			UserID:         s.userID,
		},
	})

	outcome, err := consumer.Run(handle, func(ctx context.Context) (io.ReadCloser, error) {
		return s.client.backend.StreamChat(ctx, s.conversationID, body)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = nil
	if err != nil {
		return nil, err
	}
	if outcome.Reason != stream.ReasonAborted || !outcome.Message.IsBlank() {
		s.messages = append(s.messages, outcome.Message)
	}
	return outcome, nil
}
