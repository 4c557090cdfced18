package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chatwire.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

const minimalYAML = `backend:
  url: https://chat.example.com
chat:
  model: llama-3
`

func TestLoad_FullConfig(t *testing.T) {
	yaml := `backend:
  url: https://chat.example.com
  token: secret
  user_agent: chatwire-test

chat:
  model: llama-3
  dialect: openai
  tool_status: false
  idle_timeout: 45s
  fallback_message: Try again later.

upload:
  idle_timeout: 10m
  concurrency: 5

adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: cache:events
  encoding: msgpack
  key_prefix: "cache:"
  timeout: 2s
  retries: 1

storage:
  region: eu-west-1
  endpoint: http://localhost:9000
  s3_path_style: true

log:
  level: debug
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "backend.url", cfg.Backend.URL, "https://chat.example.com")
	assertEqual(t, "backend.token", cfg.Backend.Token, "secret")
	assertEqual(t, "backend.user_agent", cfg.Backend.UserAgent, "chatwire-test")

	assertEqual(t, "chat.model", cfg.Chat.Model, "llama-3")
	assertEqual(t, "chat.dialect", cfg.Chat.Dialect, DialectOpenAI)
	if cfg.Chat.ToolStatusEnabled() {
		t.Error("expected chat.tool_status=false")
	}
	if cfg.Chat.IdleTimeout.Duration != 45*time.Second {
		t.Errorf("chat.idle_timeout = %v, want 45s", cfg.Chat.IdleTimeout.Duration)
	}
	assertEqual(t, "chat.fallback_message", cfg.Chat.FallbackMessage, "Try again later.")

	if cfg.Upload.IdleTimeout.Duration != 10*time.Minute {
		t.Errorf("upload.idle_timeout = %v, want 10m", cfg.Upload.IdleTimeout.Duration)
	}
	if cfg.Upload.Concurrency != 5 {
		t.Errorf("upload.concurrency = %d, want 5", cfg.Upload.Concurrency)
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, AdapterRedis)
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "cache:events")
	assertEqual(t, "adapter.encoding", cfg.Adapter.Encoding, "msgpack")
	assertEqual(t, "adapter.key_prefix", cfg.Adapter.KeyPrefix, "cache:")
	if cfg.Adapter.Timeout.Duration != 2*time.Second {
		t.Errorf("adapter.timeout = %v, want 2s", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 1 {
		t.Error("expected adapter.retries=1")
	}

	assertEqual(t, "storage.region", cfg.Storage.Region, "eu-west-1")
	if !cfg.Storage.S3PathStyle {
		t.Error("expected storage.s3_path_style=true")
	}
	assertEqual(t, "log.level", cfg.Log.Level, "debug")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTemp(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "chat.dialect", cfg.Chat.Dialect, DialectNative)
	if !cfg.Chat.ToolStatusEnabled() {
		t.Error("tool status should default to enabled")
	}
	if cfg.Chat.IdleTimeout.Duration != DefaultChatIdleTimeout {
		t.Errorf("chat.idle_timeout = %v, want %v", cfg.Chat.IdleTimeout.Duration, DefaultChatIdleTimeout)
	}
	if cfg.Upload.IdleTimeout.Duration != DefaultUploadIdleTimeout {
		t.Errorf("upload.idle_timeout = %v, want %v", cfg.Upload.IdleTimeout.Duration, DefaultUploadIdleTimeout)
	}
	if cfg.Upload.Concurrency != DefaultUploadConcurrency {
		t.Errorf("upload.concurrency = %d, want %d", cfg.Upload.Concurrency, DefaultUploadConcurrency)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, AdapterNone)
	assertEqual(t, "log.level", cfg.Log.Level, DefaultLogLevel)
}

func TestLoad_ZeroIdleTimeoutDisables(t *testing.T) {
	cfg, err := Load(writeTemp(t, minimalYAML+"  idle_timeout: 0s\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chat.IdleTimeout.Duration != 0 {
		t.Errorf("chat.idle_timeout = %v, want 0", cfg.Chat.IdleTimeout.Duration)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/chatwire.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EmptyConfigFailsValidation(t *testing.T) {
	_, err := Load(writeTemp(t, ""))
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
	if !strings.Contains(err.Error(), "Config.Backend.URL") {
		t.Errorf("error should name backend.url, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Config.Chat.Model") {
		t.Errorf("error should name chat.model, got: %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BACKEND_URL", "https://expanded.example.com")

	yaml := "backend:\n  url: ${TEST_BACKEND_URL}\nchat:\n  model: ${TEST_MODEL_UNSET:-fallback-model}\n"
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "backend.url", cfg.Backend.URL, "https://expanded.example.com")
	assertEqual(t, "chat.model", cfg.Chat.Model, "fallback-model")
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	const key = "CHATWIRE_TEST_DOTENV_TOKEN"
	_ = os.Unsetenv(key)
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := writeTemp(t, "backend:\n  url: https://chat.example.com\n  token: ${"+key+"}\nchat:\n  model: llama-3\n")
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte(key+"=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "backend.token", cfg.Backend.Token, "from-dotenv")
}

func TestLoad_ProcessEnvWinsOverDotEnv(t *testing.T) {
	const key = "CHATWIRE_TEST_DOTENV_MODEL"
	t.Setenv(key, "from-process")

	path := writeTemp(t, "backend:\n  url: https://chat.example.com\nchat:\n  model: ${"+key+"}\n")
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte(key+"=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "chat.model", cfg.Chat.Model, "from-process")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(writeTemp(t, minimalYAML+"bogus: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	_, err := Load(writeTemp(t, "backend:\n  url: https://chat.example.com\n  bogus: 1\nchat:\n  model: m\n"))
	if err == nil {
		t.Fatal("expected error for unknown nested key")
	}
}

func TestLoad_AdapterURLRequired(t *testing.T) {
	for _, typ := range []string{AdapterWebhook, AdapterRedis} {
		t.Run(typ, func(t *testing.T) {
			_, err := Load(writeTemp(t, minimalYAML+"adapter:\n  type: "+typ+"\n"))
			if err == nil {
				t.Fatalf("expected error for %s adapter without url", typ)
			}
			if !strings.Contains(err.Error(), "Config.Adapter.URL") {
				t.Errorf("error should name adapter.url, got: %v", err)
			}
		})
	}
}

func TestLoad_RejectsUnknownEnums(t *testing.T) {
	tests := map[string]string{
		"dialect":  minimalYAML + "  dialect: grpc\n",
		"adapter":  minimalYAML + "adapter:\n  type: kafka\n",
		"encoding": minimalYAML + "adapter:\n  type: redis\n  url: redis://localhost:6379\n  encoding: xml\n",
		"level":    minimalYAML + "log:\n  level: loud\n",
	}
	for name, yaml := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, minimalYAML+"adapter:\n  type: webhook\n  url: https://hooks.example.com\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("expected retries to be set")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("retries = %d, want 0", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	if _, err := Load(writeTemp(t, minimalYAML+"  idle_timeout: soon\n")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestDuration_NegativeRejected(t *testing.T) {
	if _, err := Load(writeTemp(t, minimalYAML+"  idle_timeout: -5s\n")); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default("https://chat.example.com", "llama-3")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Chat.IdleTimeout.Duration != DefaultChatIdleTimeout {
		t.Errorf("chat idle timeout = %v", cfg.Chat.IdleTimeout.Duration)
	}
}
