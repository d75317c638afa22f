package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("port=%d", cfg.Port)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("redis url=%q", cfg.RedisURL)
	}
	if cfg.Gateway.AckTimeout != defaultAckTimeout || cfg.Controls.IdleTTL != defaultIdleTTL {
		t.Fatalf("durations=%+v %+v", cfg.Gateway, cfg.Controls)
	}
	if !cfg.IsDev() {
		t.Fatalf("default env should be development")
	}
	if cfg.RateLimit != defaultRateLimit {
		t.Fatalf("rate limit=%d", cfg.RateLimit)
	}
}

func TestParseOverrides(t *testing.T) {
	content := []byte(`
port: 8080
env: Production
redis:
  host: cache.internal
  port: 6380
  db: 2
  password: secret
api_token: abc
rate_limit: 0
allowed_origins: [" *.example.com ", ""]
gateway:
  ack_timeout: 750ms
  snapshot_ttl: 1h
controls:
  idle_ttl: 0s
presets_path: /etc/confetti/presets.yml
`)
	cfg, err := Parse(content, "inline")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.IsDev() {
		t.Fatalf("port=%d env=%s", cfg.Port, cfg.Env)
	}
	if cfg.RedisURL != "redis://:secret@cache.internal:6380/2" {
		t.Fatalf("redis url=%q", cfg.RedisURL)
	}
	if cfg.Gateway.AckTimeout != 750*time.Millisecond || cfg.Gateway.SnapshotTTL != time.Hour {
		t.Fatalf("gateway=%+v", cfg.Gateway)
	}
	if cfg.Controls.IdleTTL != 0 {
		t.Fatalf("idle ttl=%s", cfg.Controls.IdleTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*.example.com" {
		t.Fatalf("origins=%v", cfg.AllowedOrigins)
	}
	if cfg.PresetsPath() != "/etc/confetti/presets.yml" {
		t.Fatalf("presets path=%s", cfg.PresetsPath())
	}
	if cfg.APIToken != "abc" {
		t.Fatalf("api token=%q", cfg.APIToken)
	}
	if cfg.RateLimit != 0 {
		t.Fatalf("rate limit=%d", cfg.RateLimit)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "colour: red\n", "field colour not found"},
		{"bad port", "port: 70000\n", "invalid port"},
		{"bad duration", "gateway:\n  ack_timeout: soon\n", "gateway.ack_timeout"},
		{"negative duration", "controls:\n  sweep_interval: -1m\n", "controls.sweep_interval"},
		{"negative rate limit", "rate_limit: -5\n", "invalid rate_limit"},
		{"zero ack timeout", "gateway:\n  ack_timeout: 0s\n", "expected > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), "inline")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("explicit missing file must fail")
	}

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port=%d", cfg.Port)
	}
}

func TestResolveRuntimePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	if got := ResolveRuntimePath("", "presets.yml"); got != filepath.Join(home, "presets.yml") {
		t.Fatalf("fallback=%s", got)
	}
	if got := ResolveRuntimePath("conf/p.yml", "x"); got != filepath.Join(home, "conf", "p.yml") {
		t.Fatalf("relative=%s", got)
	}
	abs := filepath.Join(home, "abs", "..", "p.yml")
	if got := ResolveRuntimePath(abs, "x"); got != filepath.Join(home, "p.yml") {
		t.Fatalf("absolute=%s", got)
	}
	if got := ResolveRuntimePath("", ""); got != home {
		t.Fatalf("empty=%s", got)
	}
}
