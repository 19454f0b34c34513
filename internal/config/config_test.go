package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.STT.Mode != "mock" {
		t.Fatalf("expected mock recognizer by default, got %s", cfg.STT.Mode)
	}
	if cfg.Format.Default != "json" || cfg.Format.MaxLineWidth != 1000 {
		t.Fatalf("unexpected format defaults %+v", cfg.Format)
	}
	if cfg.Auth.Enabled() {
		t.Fatal("auth should be disabled without keys")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	data := `runtime_name: scribe-test
http:
  port: 9000
auth:
  api_key: secret
stt:
  mode: http
  endpoint: http://asr:9000
format:
  default: md_quote
models:
  - id: small
    owned_by: whisperx
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != 9000 || cfg.STT.Endpoint != "http://asr:9000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if !cfg.Auth.Enabled() {
		t.Fatal("expected auth enabled")
	}
	if len(cfg.Models) != 1 || cfg.Models[0].ID != "small" {
		t.Fatalf("unexpected models %+v", cfg.Models)
	}
	if cfg.STT.SampleRate != 16000 {
		t.Fatalf("expected default sample rate to survive, got %d", cfg.STT.SampleRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBE_BUS_ENABLED", "true")
	t.Setenv("SCRIBE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SCRIBE_BUS_USERNAME", "alice")
	t.Setenv("SCRIBE_AUTH_API_KEYS_FILE", "/etc/scribe/keys.json")
	t.Setenv("SCRIBE_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("SCRIBE_EVENT_STORE_MAX_JOBS", "123")
	t.Setenv("SCRIBE_STT_MODE", "exec")
	t.Setenv("SCRIBE_STT_COMMAND", "whisperx-json --device cpu")
	t.Setenv("SCRIBE_STT_RETRIES", "5")
	t.Setenv("SCRIBE_FORMAT_MAX_LINE_COUNT", "2")
	t.Setenv("SCRIBE_FORMAT_HIGHLIGHT_WORDS", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Username != "alice" {
		t.Fatalf("expected bus override, got %+v", cfg.Bus)
	}
	if cfg.Auth.APIKeysFile != "/etc/scribe/keys.json" {
		t.Fatalf("expected keys file override")
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.MaxJobs != 123 {
		t.Fatalf("expected event store override, got %+v", cfg.EventStore)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Retries != 5 {
		t.Fatalf("expected stt override, got %+v", cfg.STT)
	}
	if cfg.Format.MaxLineCount != 2 || !cfg.Format.HighlightWords {
		t.Fatalf("expected format override, got %+v", cfg.Format)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Config){
		"exec without command":  func(c *Config) { c.STT.Mode = "exec" },
		"http without endpoint": func(c *Config) { c.STT.Mode = "http" },
		"unknown mode":          func(c *Config) { c.STT.Mode = "grpc" },
		"unknown format":        func(c *Config) { c.Format.Default = "docx" },
		"bad port":              func(c *Config) { c.HTTP.Port = 0 },
		"bad retention":         func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"empty model id":        func(c *Config) { c.Models = []ModelConfig{{}} },
		"bus without servers": func(c *Config) {
			c.Bus.Enabled = true
			c.Bus.Servers = nil
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
