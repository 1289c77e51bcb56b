package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"masjidbox-bridge/internal/masjidbox"
	"masjidbox-bridge/internal/setup"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	MasjidBox MasjidBoxConfig `yaml:"masjidbox"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
	// Places are configured through the setup flow at startup. Slugs that
	// already exist are skipped.
	Places []setup.Form `yaml:"places"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// MasjidBoxConfig holds the upstream API settings.
type MasjidBoxConfig struct {
	BaseURL   string `yaml:"base_url"`
	HTTPProxy string `yaml:"http_proxy"`
}

// MQTTConfig holds the Home Assistant MQTT publisher settings.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`
	Workers         int    `yaml:"workers"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "masjidbox.db"
	}

	if cfg.MasjidBox.BaseURL == "" {
		cfg.MasjidBox.BaseURL = masjidbox.DefaultBaseURL
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "masjidbox-bridge"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "masjidbox"
	}
	if cfg.MQTT.Workers <= 0 {
		cfg.MQTT.Workers = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// ApplyEnv overrides secrets and connection strings from the environment.
func (cfg *Config) ApplyEnv() {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
	}
	if password := os.Getenv("MQTT_PASSWORD"); password != "" {
		cfg.MQTT.Password = password
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}
