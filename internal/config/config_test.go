// internal/config/config_test.go
package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"SLASHCODER_API_BASE", "SLASHCODER_SOCKET_URL", "SLASHCODER_GATEWAY_URL",
		"SLASHCODER_QUEUE_TIMEOUT_SEC", "SLASHCODER_FINISH_DELAY_MS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "http://localhost:8000", cfg.APIBase)
	assert.Equal(t, "ws://localhost:8000/socket", cfg.SocketURL)
	assert.Equal(t, "ws://localhost:8000/realtime", cfg.GatewayURL)
	assert.Equal(t, 30*time.Second, cfg.QueueTimeout)
	assert.Equal(t, 2200*time.Millisecond, cfg.FinishDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLASHCODER_API_BASE", "https://play.example.com/")
	t.Setenv("SLASHCODER_SOCKET_URL", "")
	t.Setenv("SLASHCODER_GATEWAY_URL", "")
	t.Setenv("SLASHCODER_QUEUE_TIMEOUT_SEC", "45")
	t.Setenv("SLASHCODER_FINISH_DELAY_MS", "bogus")

	cfg := Load()
	assert.Equal(t, "wss://play.example.com/socket", cfg.SocketURL)
	assert.Equal(t, "wss://play.example.com/realtime", cfg.GatewayURL)
	assert.Equal(t, 45*time.Second, cfg.QueueTimeout)
	// Unparsable numbers fall back to the default.
	assert.Equal(t, 2200*time.Millisecond, cfg.FinishDelay)
}

func TestProfileDirSanitizesUID(t *testing.T) {
	cfg := Config{DataDir: t.TempDir()}
	dir := cfg.ProfileDir("user one/!?")
	assert.Contains(t, dir, cfg.DataDir)
	assert.Equal(t, "user_one___", filepath.Base(dir))
}
