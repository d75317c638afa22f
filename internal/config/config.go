package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML config at configPath. A missing default file yields the built-in defaults.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath {
			cfg := defaultAppConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	return Parse(content, path)
}

// Parse decodes YAML content. source is only used in error messages.
func Parse(content []byte, source string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", source, err)
		}
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("config %q: %w", source, err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, source)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, source)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, source)
	}
	if cfg.Gateway.AckTimeout <= 0 {
		return nil, fmt.Errorf("invalid gateway.ack_timeout %s in %q, expected > 0", cfg.Gateway.AckTimeout, source)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:      defaultPort,
		Env:       defaultEnv,
		RateLimit: defaultRateLimit,
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Gateway: GatewayRuntimeConfig{
			AckTimeout:    defaultAckTimeout,
			SnapshotTTL:   defaultSnapshotTTL,
			MountTokenTTL: defaultMountTokenTTL,
		},
		Controls: ControlsRuntimeConfig{
			IdleTTL:       defaultIdleTTL,
			SweepInterval: defaultSweepInterval,
			PresetPoll:    defaultPresetPoll,
		},
	}
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.RedisURL = cfg.Redis.URLValue()

	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	cfg.Env = normalizeEnv(cfg.Env)

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Presets); v != "" {
		cfg.Paths.Presets = v
	}
	if v := strings.TrimSpace(raw.PresetsPath); v != "" {
		cfg.Paths.Presets = v
	}
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)

	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}

	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.APIToken); v != "" {
		cfg.APIToken = v
	}
	if raw.RateLimit != nil {
		if *raw.RateLimit < 0 {
			return fmt.Errorf("invalid rate_limit %d, expected >= 0", *raw.RateLimit)
		}
		cfg.RateLimit = *raw.RateLimit
	}

	durations := []struct {
		key    string
		values []string
		target *time.Duration
	}{
		{"gateway.ack_timeout", []string{raw.Gateway.AckTimeout}, &cfg.Gateway.AckTimeout},
		{"gateway.snapshot_ttl", []string{raw.Gateway.SnapshotTTL, raw.SnapshotTTL}, &cfg.Gateway.SnapshotTTL},
		{"gateway.mount_token_ttl", []string{raw.Gateway.MountTokenTTL}, &cfg.Gateway.MountTokenTTL},
		{"controls.idle_ttl", []string{raw.Controls.IdleTTL, raw.IdleTTL}, &cfg.Controls.IdleTTL},
		{"controls.sweep_interval", []string{raw.Controls.SweepInterval, raw.SweepInterval}, &cfg.Controls.SweepInterval},
		{"controls.preset_poll", []string{raw.Controls.PresetPoll}, &cfg.Controls.PresetPoll},
	}
	for _, d := range durations {
		for _, v := range d.values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
			}
			if parsed < 0 {
				return fmt.Errorf("invalid %s %q, expected >= 0", d.key, v)
			}
			*d.target = parsed
		}
	}
	return nil
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(raw.RedisHost); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if raw.RedisPort != 0 {
		cfg.Port = raw.RedisPort
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.RedisUsername); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.RedisPassword); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.RedisDB != nil {
		cfg.DB = *raw.RedisDB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if raw.RedisTLS != nil {
		cfg.TLS = *raw.RedisTLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = copyStringMap(raw.Redis.Params)
	}

	return normalizeRedisConfig(cfg)
}

func (c *AppConfig) IsDev() bool {
	return c.Env == defaultEnv
}

func (c *AppConfig) LogDir() string {
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

// LogLevelOrDefault returns the configured zap level name, "info" when unset.
func (c *AppConfig) LogLevelOrDefault() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// PresetsPath returns the preset catalog file, relative paths resolved against the executable.
func (c *AppConfig) PresetsPath() string {
	return ResolveRuntimePath(c.Paths.Presets, defaultPresetsFile)
}
