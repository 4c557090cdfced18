// Package transport issues the streaming requests of a chat backend and
// hands back the raw response bodies.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/imroc/req/v3"

	"github.com/pithecene-io/chatwire/iox"
	"github.com/pithecene-io/chatwire/types"
)

// Endpoint paths, relative to the backend base URL.
const (
	ChatPath   = "/api/v1/stream/"
	UploadPath = "/api/v1/files/upload-stream/"
)

// UploadField is the multipart field carrying the file.
const UploadField = "file"

// maxErrorBody bounds the body excerpt kept on a StatusError.
const maxErrorBody = 512

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChatRequest is the JSON body of a chat turn.
type ChatRequest struct {
	Message         string   `json:"message" validate:"required"`
	UserID          string   `json:"user_id"`
	Model           string   `json:"model" validate:"required"`
	SelectedFileIDs []string `json:"selected_file_ids,omitempty"`
}

// Config configures a Backend.
type Config struct {
	// BaseURL is the backend origin, e.g. https://chat.example.com (required).
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// UserAgent overrides the default user agent.
	UserAgent string
}

// Backend issues chat and upload stream requests.
// Safe for concurrent use.
type Backend struct {
	baseURL string
	client  *req.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	// Body is a bounded excerpt of the response body.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error: code=%d", e.Code)
	}
	return fmt.Sprintf("http error: code=%d, body=%s", e.Code, e.Body)
}

// New creates a Backend. Returns an error if BaseURL is empty or not absolute.
func New(cfg Config) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("transport requires a base URL")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("transport: invalid base URL %q", cfg.BaseURL)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "chatwire/" + types.Version
	}

	// Streams are bounded by the consumer's idle timeout and cancel handle,
	// never by a whole-request deadline.
	client := req.C().
		SetTimeout(0).
		SetUserAgent(userAgent).
		SetCommonHeader("Accept", "text/event-stream").
		SetCommonHeader("Cache-Control", "no-cache")
	if cfg.Token != "" {
		client.SetCommonBearerAuthToken(cfg.Token)
	}

	return &Backend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}, nil
}

// StreamChat posts one chat turn and returns the open response body.
// The caller owns the body and must close it.
func (b *Backend) StreamChat(ctx context.Context, conversationID string, body *ChatRequest) (io.ReadCloser, error) {
	if conversationID == "" {
		return nil, errors.New("transport: conversation id is required")
	}
	if err := validate.Struct(body); err != nil {
		return nil, fmt.Errorf("transport: invalid chat request: %w", err)
	}

	r := b.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(body).
		DisableAutoReadResponse()
	return b.open(r, ChatPath+url.PathEscape(conversationID))
}

// StreamUpload posts a multipart upload with a single "file" part and
// returns the open progress stream. The caller owns the body and must close it.
func (b *Backend) StreamUpload(ctx context.Context, uploadID, fileName string, file io.Reader) (io.ReadCloser, error) {
	if uploadID == "" {
		return nil, errors.New("transport: upload id is required")
	}
	if fileName == "" {
		return nil, errors.New("transport: file name is required")
	}

	r := b.client.R().
		SetContext(ctx).
		SetFileReader(UploadField, fileName, file).
		DisableAutoReadResponse()
	return b.open(r, UploadPath+url.PathEscape(uploadID))
}

func (b *Backend) open(r *req.Request, path string) (io.ReadCloser, error) {
	resp, err := r.Post(b.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("transport: request failed: %w", err)
	}
	if resp.Response == nil || resp.Body == nil {
		return nil, errors.New("transport: response has no body")
	}
	if code := resp.GetStatusCode(); code < 200 || code >= 300 {
		defer iox.DiscardClose(resp.Body)
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: code, Body: strings.TrimSpace(string(excerpt))}
	}
	return resp.Body, nil
}

// Close releases idle connections.
func (b *Backend) Close() error {
	b.client.GetClient().CloseIdleConnections()
	return nil
}
