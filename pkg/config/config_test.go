package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Calls.ConnectTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"pong timeout not above ping", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"zero send buffer", func(c *Config) { c.Signal.SendBuffer = 0 }},
		{"negative connect timeout", func(c *Config) { c.Calls.ConnectTimeout = -time.Second }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"ice server without urls", func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{}} }},
		{"unknown ice transport policy", func(c *Config) { c.WebRTC.ICETransportPolicy = "p2p-only" }},
		{"redis without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Topic = ""
		}},
		{"auth without secret", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.JWTSecret = ""
		}},
		{"tracing sample rate above one", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 1.5
		}},
		{"ws messages per second must be > 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.WebSocket.MessagesPerSecond = 0
		}},
		{"http burst must be > 0", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.Burst = 0
		}},
		{"trusted proxy must be an ip or cidr", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.TrustedProxies = []string{"10.0.0.0/8", "gateway.local"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  address: ":9000"
calls:
  connect_timeout: 45s
webrtc:
  ice_servers:
    - urls: ["stun:stun.example.org:3478"]
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CAREBRIDGE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 45*time.Second, cfg.Calls.ConnectTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	require.Len(t, cfg.WebRTC.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, cfg.WebRTC.ICEServers[0].URLs)
	// defaults survive partial files
	assert.Equal(t, 64, cfg.Signal.SendBuffer)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CAREBRIDGE_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CAREBRIDGE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "loaded", os.Getenv("CAREBRIDGE_TEST_DOTENV"))

	// absent files are skipped silently
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
