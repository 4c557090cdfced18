package stream

import (
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/pithecene-io/chatwire/types"
)

// ChatDelta is one decoded chat payload.
// At most one of Content and ToolStatus is meaningful.
type ChatDelta struct {
	Content    string
	ToolStatus *types.ToolStatus
	// ConversationID is set when the backend echoes it.
	ConversationID string
}

// Dialect decodes chat payloads. [DONE] never reaches a Dialect.
type Dialect interface {
	// Name identifies the dialect in logs and metrics.
	Name() string
	// Decode parses one payload. An error marks the frame malformed.
	Decode(payload string) (ChatDelta, error)
}

// NativeDialect decodes {"content": ...} and tool_status frames. A
// tool_status frame without a tool keeps the current tool's name.
type NativeDialect struct{}

// Name implements Dialect.
func (NativeDialect) Name() string { return "native" }

// Decode implements Dialect.
func (NativeDialect) Decode(payload string) (ChatDelta, error) {
	var p types.ChatPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return ChatDelta{}, err
	}
	if ts := p.ToolStatus(); ts != nil {
		return ChatDelta{ToolStatus: ts, ConversationID: p.ConversationID}, nil
	}
	return ChatDelta{Content: p.Content, ConversationID: p.ConversationID}, nil
}

// OpenAIDialect decodes OpenAI-compatible chat.completion.chunk frames.
// Tool call deltas that name a function surface as a started tool status;
// a tool_calls finish reason surfaces as completed.
type OpenAIDialect struct{}

// Name implements Dialect.
func (OpenAIDialect) Name() string { return "openai" }

// Decode implements Dialect.
func (OpenAIDialect) Decode(payload string) (ChatDelta, error) {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return ChatDelta{}, err
	}
	if len(chunk.Choices) == 0 {
		return ChatDelta{}, nil
	}

	choice := chunk.Choices[0]
	for _, call := range choice.Delta.ToolCalls {
		if call.Function.Name != "" {
			return ChatDelta{ToolStatus: &types.ToolStatus{
				Tool:   call.Function.Name,
				Status: types.ToolStateStarted,
			}}, nil
		}
	}
	if choice.FinishReason == openai.FinishReasonToolCalls {
		return ChatDelta{ToolStatus: &types.ToolStatus{Status: types.ToolStateCompleted}}, nil
	}
	return ChatDelta{Content: choice.Delta.Content}, nil
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "", "native":
		return NativeDialect{}, nil
	case "openai":
		return OpenAIDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown chat dialect %q", name)
	}
}

var (
	_ Dialect = NativeDialect{}
	_ Dialect = OpenAIDialect{}
)
