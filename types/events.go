// Package types defines the wire payloads and shared domain types for chatwire.
//
//nolint:revive // types is a common Go package naming convention
package types

// DoneSentinel is the literal payload that terminates a chat stream.
// It is not JSON.
const DoneSentinel = "[DONE]"

// EventType is the type discriminator carried by stream payloads.
type EventType string

// Event type constants.
const (
	// EventTypeContent is implicit on chat frames: a frame without a type
	// that carries a content delta.
	EventTypeContent    EventType = "content"
	EventTypeToolStatus EventType = "tool_status"
	EventTypeStart      EventType = "start"
	EventTypeProgress   EventType = "progress"
	EventTypeComplete   EventType = "complete"
	EventTypeError      EventType = "error"
)

// IsTerminal returns true if this event type ends an upload stream.
func (e EventType) IsTerminal() bool {
	return e == EventTypeComplete || e == EventTypeError
}

// ToolState is the lifecycle state of a server-side tool invocation.
type ToolState string

// Tool state constants.
const (
	ToolStateStarted   ToolState = "started"
	ToolStateCompleted ToolState = "completed"
)

// ToolDetails is the optional detail object on a tool_status frame.
type ToolDetails struct {
	// ResultCount is the number of results the tool produced, when known.
	ResultCount *int `json:"resultCount,omitempty"`
	// Error is set when the tool failed.
	Error string `json:"error,omitempty"`
}

// ToolStatus is an out-of-band indicator for a running or finished tool.
// It is never part of the message text.
type ToolStatus struct {
	Tool    string       `json:"tool"`
	Status  ToolState    `json:"status"`
	Details *ToolDetails `json:"details,omitempty"`
}

// Failed reports whether the tool finished with an error.
func (s *ToolStatus) Failed() bool {
	return s != nil && s.Details != nil && s.Details.Error != ""
}

// ChatPayload is the JSON shape of a chat stream frame.
//
//	{ "content": string }
//	{ "type": "tool_status", "tool": string, "status": "started"|"completed", "details"?: {...} }
type ChatPayload struct {
	// Type is empty for content frames.
	Type    EventType `json:"type,omitempty"`
	Content string    `json:"content,omitempty"`
	// ConversationID is sent by some backends alongside content deltas.
	ConversationID string `json:"conversationId,omitempty"`

	// Only for EventTypeToolStatus.
	Tool    string       `json:"tool,omitempty"`
	Status  ToolState    `json:"status,omitempty"`
	Details *ToolDetails `json:"details,omitempty"`
}

// ToolStatus extracts the tool status carried by a tool_status frame.
// Returns nil for any other frame.
func (p *ChatPayload) ToolStatus() *ToolStatus {
	if p.Type != EventTypeToolStatus {
		return nil
	}
	return &ToolStatus{
		Tool:    p.Tool,
		Status:  p.Status,
		Details: p.Details,
	}
}

// UploadPayload is the JSON shape of an upload stream frame.
//
//	{ "type": "start",    "fileName": string, "fileSize": number }
//	{ "type": "progress", "progress": number, "message"?: string }
//	{ "type": "complete", "data": {...} }
//	{ "type": "error",    "error": string }
type UploadPayload struct {
	Type EventType `json:"type"`

	// Only for EventTypeStart.
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`

	// Only for EventTypeProgress. Kept as float since backends send
	// fractional percentages.
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`

	// Only for EventTypeComplete.
	Data *UploadResult `json:"data,omitempty"`

	// Only for EventTypeError.
	Error string `json:"error,omitempty"`
}
