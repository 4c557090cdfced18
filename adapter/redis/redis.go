// Package redis publishes invalidation events on a Redis channel and
// optionally evicts the cache entries they name.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/chatwire/adapter"
)

// Defaults applied by New.
const (
	DefaultChannel = "chatwire:invalidations"
	DefaultTimeout = 5 * time.Second
	DefaultBackoff = 500 * time.Millisecond
)

// Encoding selects the payload wire format.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db].
	URL      string
	Channel  string
	Encoding Encoding
	// KeyPrefix enables eviction: an event with keys [["conversation","c1"]]
	// deletes KeyPrefix+"conversation:c1" before publishing.
	KeyPrefix string
	// Timeout bounds one Publish call including retries.
	Timeout time.Duration
	// Retries is the number of extra attempts the client makes per command.
	Retries int
	// Backoff is the smallest retry delay.
	Backoff time.Duration
}

// Adapter publishes through a go-redis client.
type Adapter struct {
	channel  string
	encoding Encoding
	prefix   string
	timeout  time.Duration
	client   *goredis.Client
}

// New validates cfg and connects lazily.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis: url is required")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("redis: retries must be >= 0, got %d", cfg.Retries)
	}
	switch cfg.Encoding {
	case "":
		cfg.Encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		return nil, fmt.Errorf("redis: unknown encoding %q", cfg.Encoding)
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	backoff := orDefault(cfg.Backoff, DefaultBackoff)
	// go-redis treats 0 as "use the default" and -1 as "never retry".
	opts.MaxRetries = cfg.Retries
	if cfg.Retries == 0 {
		opts.MaxRetries = -1
	}
	opts.MinRetryBackoff = backoff
	opts.MaxRetryBackoff = backoff << min(cfg.Retries, 6)

	return &Adapter{
		channel:  orDefault(cfg.Channel, DefaultChannel),
		encoding: cfg.Encoding,
		prefix:   cfg.KeyPrefix,
		timeout:  orDefault(cfg.Timeout, DefaultTimeout),
		client:   goredis.NewClient(opts),
	}, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Encode serializes event in enc.
func Encode(enc Encoding, event *adapter.InvalidationEvent) ([]byte, error) {
	if enc == EncodingMsgpack {
		return msgpack.Marshal(event)
	}
	return json.Marshal(event)
}

// CacheKey joins a key path under prefix, e.g. "cache:conversation:c-1".
func CacheKey(prefix string, path []string) string {
	return prefix + strings.Join(path, ":")
}

// Publish evicts the event's cache entries when a prefix is configured, then
// publishes the encoded event. Both happen in one MULTI/EXEC.
func (a *Adapter) Publish(ctx context.Context, event *adapter.InvalidationEvent) error {
	payload, err := Encode(a.encoding, event)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", event.EventType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	evict := a.evictions(event)
	if len(evict) == 0 {
		err = a.client.Publish(ctx, a.channel, payload).Err()
	} else {
		_, err = a.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, evict...)
			pipe.Publish(ctx, a.channel, payload)
			return nil
		})
	}
	if err != nil {
		return fmt.Errorf("redis: publish %s to %s: %w", event.EventType, a.channel, err)
	}
	return nil
}

func (a *Adapter) evictions(event *adapter.InvalidationEvent) []string {
	if a.prefix == "" {
		return nil
	}
	keys := make([]string, len(event.Keys))
	for i, path := range event.Keys {
		keys[i] = CacheKey(a.prefix, path)
	}
	return keys
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
