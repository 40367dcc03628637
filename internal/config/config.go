// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the client-side settings. Everything comes from environment
// variables with sane localhost defaults, matching the backend's dev setup.
type Config struct {
	// APIBase is the REST backend root, e.g. "http://localhost:8000".
	APIBase string
	// SocketURL is the event channel websocket endpoint.
	SocketURL string
	// GatewayURL is the realtime document gateway websocket endpoint.
	GatewayURL string
	// DataDir is the root of client-owned persisted state (session cache,
	// cached token, UI preferences), one subdirectory per profile.
	DataDir string

	QueueTimeout time.Duration
	FinishDelay  time.Duration
}

// Load reads the configuration from the environment:
//   - SLASHCODER_API_BASE    (default "http://localhost:8000")
//   - SLASHCODER_SOCKET_URL  (default derived from API base, path /socket)
//   - SLASHCODER_GATEWAY_URL (default derived from API base, path /realtime)
//   - SLASHCODER_DATA_DIR    (default <os config dir>/Slashcoder/<profile>)
//   - SLASHCODER_PROFILE     (default "default")
func Load() Config {
	apiBase := getEnv("SLASHCODER_API_BASE", "http://localhost:8000")
	return Config{
		APIBase:      apiBase,
		SocketURL:    getEnv("SLASHCODER_SOCKET_URL", wsURL(apiBase, "/socket")),
		GatewayURL:   getEnv("SLASHCODER_GATEWAY_URL", wsURL(apiBase, "/realtime")),
		DataDir:      getEnv("SLASHCODER_DATA_DIR", defaultDataDir()),
		QueueTimeout: time.Duration(getEnvInt("SLASHCODER_QUEUE_TIMEOUT_SEC", 30)) * time.Second,
		FinishDelay:  time.Duration(getEnvInt("SLASHCODER_FINISH_DELAY_MS", 2200)) * time.Millisecond,
	}
}

// ProfileDir returns the per-user state directory, creating it if needed.
func (c Config) ProfileDir(uid string) string {
	dir := filepath.Join(c.DataDir, sanitize(uid))
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func defaultDataDir() string {
	root, _ := os.UserConfigDir()
	if root == "" {
		home, _ := os.UserHomeDir()
		root = filepath.Join(home, ".config")
	}
	return filepath.Join(root, "Slashcoder", sanitize(getEnv("SLASHCODER_PROFILE", "default")))
}

func wsURL(httpBase, path string) string {
	u := httpBase
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/") + path
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" {
		s = "default"
	}
	return s
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
