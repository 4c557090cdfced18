package types //nolint:revive // types is a valid package name

import (
	"encoding/json"
	"testing"
)

func TestEventType_IsTerminal(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      bool
	}{
		{EventTypeComplete, true},
		{EventTypeError, true},
		{EventTypeStart, false},
		{EventTypeProgress, false},
		{EventTypeContent, false},
		{EventTypeToolStatus, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			got := tt.eventType.IsTerminal()
			if got != tt.want {
				t.Errorf("EventType(%q).IsTerminal() = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestUploadStatus_IsTerminal(t *testing.T) {
	if UploadStatusPending.IsTerminal() || UploadStatusUploading.IsTerminal() {
		t.Error("pending/uploading must not be terminal")
	}
	if !UploadStatusCompleted.IsTerminal() || !UploadStatusError.IsTerminal() {
		t.Error("completed/error must be terminal")
	}
}

func TestChatPayload_ToolStatus(t *testing.T) {
	raw := `{"type":"tool_status","tool":"web_search","status":"completed","details":{"resultCount":4}}`

	var p ChatPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ts := p.ToolStatus()
	if ts == nil {
		t.Fatal("expected tool status")
	}
	if ts.Tool != "web_search" {
		t.Errorf("Tool = %q, want web_search", ts.Tool)
	}
	if ts.Status != ToolStateCompleted {
		t.Errorf("Status = %q, want completed", ts.Status)
	}
	if ts.Details == nil || ts.Details.ResultCount == nil || *ts.Details.ResultCount != 4 {
		t.Errorf("Details = %+v, want resultCount 4", ts.Details)
	}
	if ts.Failed() {
		t.Error("expected Failed() = false")
	}
}

func TestChatPayload_ContentFrameHasNoToolStatus(t *testing.T) {
	var p ChatPayload
	if err := json.Unmarshal([]byte(`{"content":"hi"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ToolStatus() != nil {
		t.Error("content frame must not yield a tool status")
	}
	if p.Content != "hi" {
		t.Errorf("Content = %q, want hi", p.Content)
	}
}

func TestToolStatus_Failed(t *testing.T) {
	var nilStatus *ToolStatus
	if nilStatus.Failed() {
		t.Error("nil status must not report failure")
	}
	ts := &ToolStatus{Tool: "web_search", Status: ToolStateCompleted, Details: &ToolDetails{Error: "quota"}}
	if !ts.Failed() {
		t.Error("expected Failed() = true")
	}
}

func TestUploadPayload_Complete(t *testing.T) {
	raw := `{"type":"complete","data":{"file_id":"f-1","file_name":"a.pdf","file_size":2048,"file_type":"pdf","chunks_created":7}}`

	var p UploadPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Type != EventTypeComplete {
		t.Fatalf("Type = %q, want complete", p.Type)
	}
	if p.Data == nil {
		t.Fatal("expected data")
	}
	if p.Data.FileID != "f-1" || p.Data.ChunksCreated != 7 || p.Data.FileSize != 2048 {
		t.Errorf("Data = %+v", p.Data)
	}
}

func TestLastContent(t *testing.T) {
	if _, ok := LastContent(nil); ok {
		t.Error("expected false for empty history")
	}
	got, ok := LastContent([]Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
	})
	if !ok || got != "second" {
		t.Errorf("LastContent = %q, %v; want second, true", got, ok)
	}
}
