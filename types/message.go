package types

import "strings"

// Role is the author of a transcript message.
type Role string

// Role constants.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one role/content pair in a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// IsBlank reports whether the message has no visible content.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}

// LastContent returns the content of the last message in history,
// or false when history is empty.
func LastContent(history []Message) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	return history[len(history)-1].Content, true
}
