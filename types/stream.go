package types

// StreamKind identifies which consumer owns a stream.
type StreamKind string

// Stream kind constants.
const (
	StreamKindChat   StreamKind = "chat"
	StreamKindUpload StreamKind = "upload"
)

// StreamMeta identifies one stream request for logging and metrics.
type StreamMeta struct {
	Kind StreamKind
	// ConversationID is set for chat streams.
	ConversationID string
	// UserID is set for chat streams when known.
	UserID string
	// UploadID is the correlation id for upload streams.
	UploadID string
}
