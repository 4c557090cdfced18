package types

// UploadStatus is the lifecycle status of one file upload.
type UploadStatus string

// Upload status constants.
const (
	UploadStatusPending   UploadStatus = "pending"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusError     UploadStatus = "error"
)

// IsTerminal returns true for statuses that stop further mutation.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusError
}

// UploadState is the per-upload record mutated by its own stream only.
type UploadState struct {
	// Progress is 0-100.
	Progress int          `json:"progress"`
	Message  string       `json:"message,omitempty"`
	Status   UploadStatus `json:"status"`
}

// UploadResult is the payload of a complete frame.
type UploadResult struct {
	FileID        string `json:"file_id"`
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	FileType      string `json:"file_type"`
	ChunksCreated int    `json:"chunks_created"`
	// Optional fields some backend versions include.
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
	UploadDate string `json:"upload_date,omitempty"`
}
