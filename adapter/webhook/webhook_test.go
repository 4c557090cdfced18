package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/chatwire/adapter"
	"github.com/pithecene-io/chatwire/iox"
)

var at = time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

// delivery is one request seen by the endpoint.
type delivery struct {
	header http.Header
	event  adapter.InvalidationEvent
}

// endpoint answers with codes in order and repeats the last one.
type endpoint struct {
	mu    sync.Mutex
	codes []int
	seen  []delivery
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var d delivery
	d.header = r.Header.Clone()
	_ = json.NewDecoder(r.Body).Decode(&d.event)

	e.mu.Lock()
	e.seen = append(e.seen, d)
	code := e.codes[min(len(e.seen), len(e.codes))-1]
	e.mu.Unlock()

	w.WriteHeader(code)
}

func (e *endpoint) deliveries() []delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]delivery(nil), e.seen...)
}

func serve(t *testing.T, cfg Config, codes ...int) (*Adapter, *endpoint) {
	t.Helper()
	ep := &endpoint{codes: codes}
	srv := httptest.NewServer(ep)
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { iox.DiscardClose(a) })
	return a, ep
}

func TestPublish_ConversationUpdated(t *testing.T) {
	a, ep := serve(t, Config{Headers: map[string]string{"Authorization": "Bearer t0k"}}, http.StatusNoContent)

	if err := a.Publish(t.Context(), adapter.ConversationUpdated("c-9", "u-3", at)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := ep.deliveries()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	h, ev := got[0].header, got[0].event
	if ct := h.Get("Content-Type"); ct != "application/json" && ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if h.Get("Authorization") != "Bearer t0k" {
		t.Errorf("custom header lost: %v", h)
	}
	if h.Get(HeaderEvent) != adapter.EventConversationUpdated || h.Get(HeaderContract) != ev.ContractVersion {
		t.Errorf("event headers = %q / %q", h.Get(HeaderEvent), h.Get(HeaderContract))
	}
	if ev.ConversationID != "c-9" || ev.Timestamp != "2026-02-07T12:00:00Z" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Keys) != 2 || ev.Keys[1][0] != adapter.KeyUserConversations || ev.Keys[1][1] != "u-3" {
		t.Errorf("keys = %v", ev.Keys)
	}
}

func TestPublish_FilesUpdated(t *testing.T) {
	a, ep := serve(t, Config{}, http.StatusAccepted)

	if err := a.Publish(t.Context(), adapter.FilesUpdated("up-1", "file-7", at)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ev := ep.deliveries()[0].event
	if ev.EventType != adapter.EventFilesUpdated || ev.UploadID != "up-1" || ev.FileID != "file-7" {
		t.Errorf("event = %+v", ev)
	}
}

func TestPublish_StatusHandling(t *testing.T) {
	tests := []struct {
		name     string
		retries  int
		codes    []int
		wantErr  bool
		wantCode int
		attempts int
	}{
		{"created", 3, []int{201}, false, 0, 1},
		{"recovers after 5xx", 3, []int{500, 502, 200}, false, 0, 3},
		{"5xx exhausts retries", 2, []int{503}, true, 503, 3},
		{"no retries", 0, []int{500}, true, 500, 1},
		{"bad request is final", 3, []int{400}, true, 400, 1},
		{"unauthorized is final", 3, []int{401}, true, 401, 1},
		{"not found after 5xx", 3, []int{502, 404}, true, 404, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ep := serve(t, Config{Retries: tt.retries}, tt.codes...)

			err := a.Publish(t.Context(), adapter.ConversationUpdated("c", "", at))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != tt.wantCode {
					t.Errorf("err = %v, want status %d", err, tt.wantCode)
				}
			}
			if n := len(ep.deliveries()); n != tt.attempts {
				t.Errorf("attempts = %d, want %d", n, tt.attempts)
			}
		})
	}
}

func TestPublish_DeadlineStopsRetrying(t *testing.T) {
	a, ep := serve(t, Config{Retries: 5, Backoff: time.Second}, http.StatusInternalServerError)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := a.Publish(ctx, adapter.ConversationUpdated("c", "", at))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("publish waited %v past its deadline", elapsed)
	}
	if n := len(ep.deliveries()); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestPublish_SlowEndpointCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer iox.DiscardClose(a)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	if err := a.Publish(ctx, adapter.ConversationUpdated("c", "", at)); err == nil {
		t.Fatal("expected error from canceled delivery")
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("missing url accepted")
	}
	if _, err := New(Config{URL: "http://example.com", Retries: -1}); err == nil {
		t.Error("negative retries accepted")
	}

	a, err := New(Config{URL: "http://example.com"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.backoff != DefaultBackoff || a.retries != 0 {
		t.Errorf("backoff = %v, retries = %d", a.backoff, a.retries)
	}
}

func TestStatusError_Retriable(t *testing.T) {
	for code, want := range map[int]bool{302: true, 400: false, 429: false, 499: false, 500: true, 504: true} {
		if got := (&StatusError{Code: code}).Retriable(); got != want {
			t.Errorf("Retriable(%d) = %v, want %v", code, got, want)
		}
	}
}
