package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2334
	defaultEnv        = "development"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultPresetsFile = "presets.yml"
	defaultRateLimit   = 50

	defaultAckTimeout    = 5 * time.Second
	defaultSnapshotTTL   = 24 * time.Hour
	defaultMountTokenTTL = 12 * time.Hour
	defaultIdleTTL       = time.Hour
	defaultSweepInterval = 10 * time.Minute
	defaultPresetPoll    = 2 * time.Second
)
