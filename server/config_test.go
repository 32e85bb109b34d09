package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[server]
port = 8080
allowed_origins = https://chat.example.com, https://staging.example.com
shutdown_timeout = 2s

[websocket]
max_message_bytes = 32768
messages_per_second = 10
message_burst = 20
send_queue_size = 16
write_timeout = 1s
pong_timeout = 30s
ping_interval = 10s

[relay]
partner_only = true

[ice]
stun_urls = stun:stun.example.com:3478
turn_urls = turn:turn.example.com:3478?transport=udp, turns:turn.example.com:5349
turn_username = user
turn_credential = pass

[moderation]
webhook_url = https://mod.example.com/reports
secret = hunter2
timeout = 3s

[log]
level = debug
`

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, []string{"https://chat.example.com", "https://staging.example.com"}, config.AllowedOrigins)
	assert.Equal(t, 2*time.Second, config.ShutdownTimeout)

	assert.Equal(t, int64(32768), config.MaxMessageBytes)
	assert.Equal(t, 10.0, config.MessagesPerSecond)
	assert.Equal(t, 20, config.MessageBurst)
	assert.Equal(t, 16, config.SendQueueSize)
	assert.Equal(t, time.Second, config.WriteTimeout)
	assert.Equal(t, 30*time.Second, config.PongTimeout)
	assert.Equal(t, 10*time.Second, config.PingInterval)

	assert.True(t, config.PartnerOnlyRelay)

	assert.Equal(t, []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{
			URLs:       []string{"turn:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"},
			Username:   "user",
			Credential: "pass",
		},
	}, config.ICEServers)

	assert.Equal(t, "https://mod.example.com/reports", config.ModerationWebhookURL)
	assert.Equal(t, "hunter2", config.ModerationSecret)
	assert.Equal(t, 3*time.Second, config.ModerationTimeout)
	assert.Equal(t, log.DebugLevel, config.LogLevel)
}

func TestParseEmptyConfigGivesDefaults(t *testing.T) {
	config, err := ParseConfig([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
	assert.Equal(t, 3001, config.Port)
	assert.False(t, config.PartnerOnlyRelay)
}

func TestParseConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"port not a number":        "[server]\nport = abc",
		"port out of range":        "[server]\nport = 70000",
		"bad duration":             "[websocket]\nwrite_timeout = soon",
		"bad bool":                 "[relay]\npartner_only = maybe",
		"zero send queue":          "[websocket]\nsend_queue_size = 0",
		"ping slower than pong":    "[websocket]\nping_interval = 90s",
		"turn without credentials": "[ice]\nturn_urls = turn:turn.example.com",
		"non ice url":              "[ice]\nstun_urls = https://example.com",
		"webhook without secret":   "[moderation]\nwebhook_url = https://mod.example.com",
		"bad log level":            "[log]\nlevel = chatty",
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file gives defaults", func(t *testing.T) {
		t.Setenv("PORT", "")
		config, err := LoadConfig(filepath.Join(dir, "absent.ini"))
		require.NoError(t, err)
		assert.Equal(t, 3001, config.Port)
	})

	t.Run("PORT overrides the file", func(t *testing.T) {
		location := filepath.Join(dir, "server.ini")
		require.NoError(t, os.WriteFile(location, []byte("[server]\nport = 8080\n"), 0o600))

		t.Setenv("PORT", "9090")
		config, err := LoadConfig(location)
		require.NoError(t, err)
		assert.Equal(t, 9090, config.Port)
	})

	t.Run("invalid PORT", func(t *testing.T) {
		t.Setenv("PORT", "not-a-port")
		_, err := LoadConfig(filepath.Join(dir, "absent.ini"))
		assert.Error(t, err)
	})
}
