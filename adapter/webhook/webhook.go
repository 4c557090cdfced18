// Package webhook posts invalidation events to an HTTP endpoint.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imroc/req/v3"

	"github.com/pithecene-io/chatwire/adapter"
)

// Defaults applied by New.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Headers set on every delivery.
const (
	HeaderEvent    = "X-Chatwire-Event"
	HeaderContract = "X-Chatwire-Contract"
)

// Config configures the webhook adapter.
type Config struct {
	URL     string
	Headers map[string]string
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after a retriable failure.
	Retries int
	// Backoff is the first retry delay. Each later delay doubles.
	Backoff time.Duration
}

// Adapter delivers events as JSON POST requests.
type Adapter struct {
	url     string
	retries int
	backoff time.Duration
	client  *req.Client
}

// New validates cfg and builds an adapter.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook: url is required")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("webhook: retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	return &Adapter{
		url:     cfg.URL,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		client: req.C().
			SetTimeout(cfg.Timeout).
			SetCommonContentType("application/json").
			SetCommonHeaders(cfg.Headers),
	}, nil
}

// StatusError reports a non-2xx delivery response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: endpoint answered %d", e.Code)
}

// Retriable is false for 4xx answers.
func (e *StatusError) Retriable() bool {
	return e.Code < 400 || e.Code >= 500
}

// Publish delivers event. 5xx answers and network failures are retried;
// a 4xx answer or a done ctx stops immediately.
func (a *Adapter) Publish(ctx context.Context, event *adapter.InvalidationEvent) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			if werr := a.wait(ctx, attempt); werr != nil {
				return werr
			}
		}
		if err = a.deliver(ctx, event); err == nil {
			return nil
		}
		if se := (*StatusError)(nil); errors.As(err, &se) && !se.Retriable() {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("webhook: %s: %w", event.EventType, err)
		}
	}
	return fmt.Errorf("webhook: %s undelivered after %d attempts: %w", event.EventType, a.retries+1, err)
}

// wait sleeps before retry number attempt.
func (a *Adapter) wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(a.backoff << (attempt - 1))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("webhook: backoff interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

func (a *Adapter) deliver(ctx context.Context, event *adapter.InvalidationEvent) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader(HeaderEvent, event.EventType).
		SetHeader(HeaderContract, event.ContractVersion).
		SetBodyJsonMarshal(event).
		Post(a.url)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.GetClient().CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
