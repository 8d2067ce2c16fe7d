package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
apavital:
  client_code: "GRP12345"
  token: "jwt"
  timeout: 10s
  scan_interval: 30
  leak_threshold: 0.2

server:
  grpc_port: 50052
  host: "127.0.0.1"

database:
  enabled: true
  host: "localhost"
  name: "water"

logging:
  level: "debug"
  format: "text"
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "GRP12345", config.Apavital.ClientCode)
	assert.Equal(t, "jwt", config.Apavital.Token)
	assert.Equal(t, 10*time.Second, config.Apavital.Timeout)
	assert.Equal(t, 30*time.Minute, config.Apavital.Interval())
	assert.Equal(t, 0.2, config.Apavital.LeakThreshold)
	assert.Equal(t, 50052, config.Server.GRPCPort)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.True(t, config.Database.Enabled)
	assert.Equal(t, "water", config.Database.Name)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
apavital:
  client_code: "GRP12345"
  token: "jwt"
`)

	config, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://my.apavital.ro/api/get_usage", config.Apavital.URL)
	assert.Equal(t, 30*time.Second, config.Apavital.Timeout)
	assert.Equal(t, time.Hour, config.Apavital.Interval())
	assert.Equal(t, 0.1, config.Apavital.LeakThreshold)
	assert.Equal(t, 8080, config.Server.HTTPPort)
	assert.Equal(t, 5.0, config.RateLimit.Rate)
	assert.Equal(t, 10, config.RateLimit.Burst)
	assert.False(t, config.MQTT.Enabled)
	assert.Equal(t, "homeassistant", config.MQTT.DiscoveryPrefix)
	assert.Equal(t, "json", config.Logging.Format)
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("APP_DATABASE_HOST", "envhost")
	t.Setenv("APAVITAL_APAVITAL_TOKEN", "from-env")

	configPath := writeConfig(t, `
apavital:
  client_code: "GRP12345"
  token: "from-file"
database:
  host: $APP_DATABASE_HOST
  port: 5433
`)

	config, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "envhost", config.Database.Host)
	assert.Equal(t, 5433, config.Database.Port)
	assert.Equal(t, "from-env", config.Apavital.Token)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"missing token", "apavital:\n  client_code: x\n", "apavital.token is required"},
		{"interval too short", "apavital:\n  client_code: x\n  token: y\n  scan_interval: 5\n", "scan_interval"},
		{"threshold too large", "apavital:\n  client_code: x\n  token: y\n  leak_threshold: 2\n", "leak_threshold"},
		{"mqtt without broker", "apavital:\n  client_code: x\n  token: y\nmqtt:\n  enabled: true\n", "mqtt.broker"},
		{"bad log format", "apavital:\n  client_code: x\n  token: y\nlogging:\n  format: xml\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.ConnString())
}
