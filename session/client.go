// Package session wires configuration, transport and stream consumers into
// a client with explicit per-conversation state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/chatwire/adapter"
	redisadapter "github.com/pithecene-io/chatwire/adapter/redis"
	"github.com/pithecene-io/chatwire/adapter/webhook"
	"github.com/pithecene-io/chatwire/config"
	"github.com/pithecene-io/chatwire/log"
	"github.com/pithecene-io/chatwire/metrics"
	"github.com/pithecene-io/chatwire/source"
	"github.com/pithecene-io/chatwire/stream"
	"github.com/pithecene-io/chatwire/transport"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger replaces the logger built from config.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAdapter replaces the adapter built from config. A nil adapter
// disables notifications.
func WithAdapter(a adapter.Adapter) Option {
	return func(c *Client) {
		c.notifier = a
		c.notifierSet = true
	}
}

// WithS3Client serves s3:// references with api instead of a client built
// from the storage config.
func WithS3Client(api source.GetObjectAPI) Option {
	return func(c *Client) { c.s3 = api }
}

// Client talks to one chat backend. Safe for concurrent use; each Session
// serializes its own turns.
type Client struct {
	cfg       *config.Config
	logger    *log.Logger
	collector *metrics.Collector
	backend   *transport.Backend
	dialect   stream.Dialect
	uploads   *stream.UploadConsumer

	notifier    adapter.Adapter
	notifierSet bool

	s3Mu sync.Mutex
	s3   source.GetObjectAPI
}

// NewClient validates cfg and builds a client from it.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("session: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		c.logger = log.NewLogger(log.WithLevel(level))
	}

	dialect, err := stream.DialectByName(cfg.Chat.Dialect)
	if err != nil {
		return nil, err
	}
	c.dialect = dialect

	backend, err := transport.New(transport.Config{
		BaseURL:   cfg.Backend.URL,
		Token:     cfg.Backend.Token,
		UserAgent: cfg.Backend.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	c.backend = backend

	adapterName := config.AdapterNone
	if c.notifierSet {
		if c.notifier != nil {
			adapterName = "custom"
		}
	} else {
		c.notifier, err = buildAdapter(cfg.Adapter)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("failed to create adapter: %w", err)
		}
		adapterName = cfg.Adapter.Type
	}

	c.collector = metrics.NewCollector(dialect.Name(), adapterName)
	c.uploads = stream.NewUploadConsumer(stream.UploadOptions{
		Logger:      c.logger,
		Collector:   c.collector,
		Notifier:    c.notifier,
		IdleTimeout: cfg.Upload.IdleTimeout.Duration,
	})

	c.logger.Debug("client ready", map[string]any{
		"backend": cfg.Backend.URL,
		"dialect": dialect.Name(),
		"adapter": adapterName,
	})
	return c, nil
}

// buildAdapter creates the invalidation adapter named by cfg.Type.
// Returns nil for "none".
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := webhook.DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case config.AdapterNone, "":
		return nil, nil

	case config.AdapterWebhook:
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})

	case config.AdapterRedis:
		return redisadapter.New(redisadapter.Config{
			URL:       cfg.URL,
			Channel:   cfg.Channel,
			Encoding:  redisadapter.Encoding(cfg.Encoding),
			KeyPrefix: cfg.KeyPrefix,
			Timeout:   cfg.Timeout.Duration,
			Retries:   retries,
		})

	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be none, webhook or redis)", cfg.Type)
	}
}

// Collector returns the client's metrics. Register it with a
// prometheus.Registerer to export them.
func (c *Client) Collector() *metrics.Collector {
	return c.collector
}

// Logger returns the client's logger.
func (c *Client) Logger() *log.Logger {
	return c.logger
}

// Resolve maps an upload reference to a source. s3:// references build an
// S3 client from the storage config on first use.
func (c *Client) Resolve(ctx context.Context, ref string) (source.Source, error) {
	r := source.Resolver{}
	if source.IsS3(ref) {
		api, err := c.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		r.S3 = api
	}
	return r.Resolve(ref)
}

func (c *Client) s3Client(ctx context.Context) (source.GetObjectAPI, error) {
	c.s3Mu.Lock()
	defer c.s3Mu.Unlock()
	if c.s3 != nil {
		return c.s3, nil
	}
	client, err := source.NewS3Client(ctx, source.S3Config{
		Region:       c.cfg.Storage.Region,
		Endpoint:     c.cfg.Storage.Endpoint,
		UsePathStyle: c.cfg.Storage.S3PathStyle,
	})
	if err != nil {
		return nil, err
	}
	c.s3 = client
	return client, nil
}

// Close releases the adapter and idle connections.
func (c *Client) Close() error {
	var errs []error
	if c.notifier != nil {
		errs = append(errs, c.notifier.Close())
	}
	errs = append(errs, c.backend.Close())
	_ = c.logger.Sync()
	return errors.Join(errs...)
}
