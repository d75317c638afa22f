package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	RedisURL       string                `yaml:"redis_url"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Env            string                `yaml:"env"` // "development" | "production"
	Paths          RuntimePathsConfig    `yaml:"paths"`
	LogLevel       string                `yaml:"log_level"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	APIToken       string                `yaml:"api_token"`
	RateLimit      int                   `yaml:"rate_limit"` // requests per second per IP, 0 disables
	Gateway        GatewayRuntimeConfig  `yaml:"gateway"`
	Controls       ControlsRuntimeConfig `yaml:"controls"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type RuntimePathsConfig struct {
	Logs    string `yaml:"logs"`
	Presets string `yaml:"presets"`
}

// GatewayRuntimeConfig tunes the socket.io transport to host widgets.
type GatewayRuntimeConfig struct {
	AckTimeout    time.Duration `yaml:"ack_timeout"`
	SnapshotTTL   time.Duration `yaml:"snapshot_ttl"`
	MountTokenTTL time.Duration `yaml:"mount_token_ttl"`
}

// ControlsRuntimeConfig tunes the control registry.
type ControlsRuntimeConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	PresetPoll    time.Duration `yaml:"preset_poll"`
}

type rawAppConfig struct {
	Port               int               `yaml:"port"`
	RedisURL           string            `yaml:"redis_url"`
	Redis              rawRedisConfig    `yaml:"redis"`
	RedisHost          string            `yaml:"redis_host"`
	RedisPort          int               `yaml:"redis_port"`
	RedisUsername      string            `yaml:"redis_username"`
	RedisPassword      string            `yaml:"redis_password"`
	RedisDB            *int              `yaml:"redis_db"`
	RedisTLS           *bool             `yaml:"redis_tls"`
	Env                string            `yaml:"env"`
	Paths              rawPathsConfig    `yaml:"paths"`
	LogDir             string            `yaml:"log_dir"`
	LogLevel           string            `yaml:"log_level"`
	PresetsPath        string            `yaml:"presets_path"`
	AllowedOrigins     []string          `yaml:"allowed_origins"`
	CORSAllowedOrigins []string          `yaml:"cors_allowed_origins"`
	JWTSecret          string            `yaml:"jwt_secret"`
	APIToken           string            `yaml:"api_token"`
	RateLimit          *int              `yaml:"rate_limit"`
	Gateway            rawGatewayConfig  `yaml:"gateway"`
	Controls           rawControlsConfig `yaml:"controls"`
	SnapshotTTL        string            `yaml:"snapshot_ttl"`
	IdleTTL            string            `yaml:"idle_ttl"`
	SweepInterval      string            `yaml:"sweep_interval"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawPathsConfig struct {
	Logs    string `yaml:"logs"`
	Presets string `yaml:"presets"`
}

type rawGatewayConfig struct {
	AckTimeout    string `yaml:"ack_timeout"`
	SnapshotTTL   string `yaml:"snapshot_ttl"`
	MountTokenTTL string `yaml:"mount_token_ttl"`
}

type rawControlsConfig struct {
	IdleTTL       string `yaml:"idle_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
	PresetPoll    string `yaml:"preset_poll"`
}
