package config

import (
	"fmt"
	"time"
)

// Adapter type constants.
const (
	AdapterNone    = "none"
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Dialect constants.
const (
	DialectNative = "native"
	DialectOpenAI = "openai"
)

// Default values applied by ApplyDefaults.
const (
	DefaultChatIdleTimeout   = 2 * time.Minute
	DefaultUploadIdleTimeout = 5 * time.Minute
	DefaultUploadConcurrency = 3
	DefaultLogLevel          = "info"
)

// Config represents a chatwire.yaml configuration file.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Chat    ChatConfig    `yaml:"chat"`
	Upload  UploadConfig  `yaml:"upload"`
	Adapter AdapterConfig `yaml:"adapter"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig locates the chat backend.
type BackendConfig struct {
	URL       string `yaml:"url" validate:"required,url"`
	Token     string `yaml:"token,omitempty"`
	UserAgent string `yaml:"user_agent,omitempty"`
}

// ChatConfig holds chat turn defaults.
type ChatConfig struct {
	Model string `yaml:"model" validate:"required"`
	// Dialect is the payload shape of chat frames: native or openai.
	Dialect string `yaml:"dialect" validate:"oneof=native openai"`
	// ToolStatus enables tool_status handling. Nil means enabled.
	ToolStatus      *bool    `yaml:"tool_status,omitempty"`
	IdleTimeout     Duration `yaml:"idle_timeout,omitempty"`
	FallbackMessage string   `yaml:"fallback_message,omitempty"`
}

// ToolStatusEnabled reports whether tool_status frames are handled.
func (c ChatConfig) ToolStatusEnabled() bool {
	return c.ToolStatus == nil || *c.ToolStatus
}

// UploadConfig holds upload defaults.
type UploadConfig struct {
	IdleTimeout Duration `yaml:"idle_timeout,omitempty"`
	// Concurrency bounds UploadAll. Zero means DefaultUploadConcurrency.
	Concurrency int `yaml:"concurrency,omitempty" validate:"gte=0"`
}

// AdapterConfig selects the invalidation adapter.
type AdapterConfig struct {
	Type      string            `yaml:"type" validate:"oneof=none webhook redis"`
	URL       string            `yaml:"url" validate:"required_if=Type webhook,required_if=Type redis,omitempty,url"`
	Channel   string            `yaml:"channel,omitempty"`
	Encoding  string            `yaml:"encoding,omitempty" validate:"omitempty,oneof=json msgpack"`
	KeyPrefix string            `yaml:"key_prefix,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Retries   *int              `yaml:"retries,omitempty" validate:"omitempty,gte=0"`
}

// StorageConfig configures the S3 upload source.
type StorageConfig struct {
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty" validate:"omitempty,url"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// seed returns the config that decoding starts from. Idle timeouts are
// seeded rather than defaulted so that an explicit "0s" disables them.
func seed() Config {
	return Config{
		Chat:   ChatConfig{IdleTimeout: Duration{DefaultChatIdleTimeout}},
		Upload: UploadConfig{IdleTimeout: Duration{DefaultUploadIdleTimeout}},
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Chat.Dialect == "" {
		c.Chat.Dialect = DialectNative
	}
	if c.Upload.Concurrency == 0 {
		c.Upload.Concurrency = DefaultUploadConcurrency
	}
	if c.Adapter.Type == "" {
		c.Adapter.Type = AdapterNone
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Default returns a config with every default applied, for programmatic use.
func Default(backendURL, model string) *Config {
	cfg := seed()
	cfg.Backend.URL = backendURL
	cfg.Chat.Model = model
	cfg.ApplyDefaults()
	return &cfg
}
