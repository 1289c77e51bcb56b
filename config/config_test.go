package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 300, cfg.Server.CacheTTLSeconds)
	assert.Equal(t, "masjidbox.db", cfg.Database.DSN)
	assert.Equal(t, "https://api.masjidbox.com", cfg.MasjidBox.BaseURL)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	assert.Equal(t, "masjidbox", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 1, cfg.MQTT.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoad_Places(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9000
database:
  dsn: "postgres://masjid@localhost/masjidbox"
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
places:
  - slug: central-mosque
    apikey: abc123
    days: 3
  - slug: east-mosque
    apikey: def456
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres://masjid@localhost/masjidbox", cfg.Database.DSN)
	assert.True(t, cfg.MQTT.Enabled)
	require.Len(t, cfg.Places, 2)
	assert.Equal(t, "central-mosque", cfg.Places[0].Slug)
	require.NotNil(t, cfg.Places[0].Days)
	assert.Equal(t, 3, *cfg.Places[0].Days)
	assert.Nil(t, cfg.Places[1].Days)
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, "masjidbox.db", cfg.Database.DSN)
	assert.False(t, cfg.MQTT.Enabled)
	// Nothing is seeded until a real API key is filled in.
	assert.Empty(t, cfg.Places)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=db user=masjid")
	t.Setenv("MQTT_PASSWORD", "s3cret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()

	assert.Equal(t, "host=db user=masjid", cfg.Database.DSN)
	assert.Equal(t, "s3cret", cfg.MQTT.Password)
	assert.Equal(t, "debug", cfg.Log.Level)
}
