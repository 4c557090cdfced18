// Package adapter defines the cache invalidation boundary.
//
// Adapters tell downstream caches that conversation or file data changed.
// Consumers publish after a stream finalizes; a publish failure never changes
// a stream's outcome.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/chatwire/types"
)

// Event type constants.
const (
	EventConversationUpdated = "conversation_updated"
	EventFilesUpdated        = "files_updated"
)

// Key roots of the cached queries an event invalidates.
const (
	KeyConversation      = "conversation"
	KeyUserConversations = "userConversations"
	KeyFiles             = "files"
)

// InvalidationEvent is the payload published when cached data went stale.
// Keys lists query key paths, e.g. ["conversation", "<id>"].
type InvalidationEvent struct {
	ContractVersion string     `json:"contract_version" msgpack:"contract_version"`
	EventType       string     `json:"event_type" msgpack:"event_type"`
	ConversationID  string     `json:"conversation_id,omitempty" msgpack:"conversation_id,omitempty"`
	UserID          string     `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	UploadID        string     `json:"upload_id,omitempty" msgpack:"upload_id,omitempty"`
	FileID          string     `json:"file_id,omitempty" msgpack:"file_id,omitempty"`
	Keys            [][]string `json:"keys" msgpack:"keys"`
	Timestamp       string     `json:"timestamp" msgpack:"timestamp"` // RFC 3339
}

// ConversationUpdated builds the event published after a chat turn
// finalizes normally.
func ConversationUpdated(conversationID, userID string, at time.Time) *InvalidationEvent {
	keys := [][]string{{KeyConversation, conversationID}}
	if userID != "" {
		keys = append(keys, []string{KeyUserConversations, userID})
	}
	return &InvalidationEvent{
		ContractVersion: types.Version,
		EventType:       EventConversationUpdated,
		ConversationID:  conversationID,
		UserID:          userID,
		Keys:            keys,
		Timestamp:       at.UTC().Format(time.RFC3339),
	}
}

// FilesUpdated builds the event published after an upload completes.
func FilesUpdated(uploadID, fileID string, at time.Time) *InvalidationEvent {
	return &InvalidationEvent{
		ContractVersion: types.Version,
		EventType:       EventFilesUpdated,
		UploadID:        uploadID,
		FileID:          fileID,
		Keys:            [][]string{{KeyFiles}},
		Timestamp:       at.UTC().Format(time.RFC3339),
	}
}

// Adapter publishes invalidation events to a downstream system.
// Implementations must be safe for concurrent use: uploads publish from
// independent goroutines.
type Adapter interface {
	// Publish sends an invalidation event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *InvalidationEvent) error

	// Close releases adapter resources.
	Close() error
}
