// internal/auth/token.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const credentialsFile = "token.json"

// DefaultRefreshInterval is how often the background refresher renews the
// session token.
const DefaultRefreshInterval = 5 * time.Minute

var ErrNoCredentials = errors.New("auth: no stored credentials")

// Credentials is the persisted session identity.
type Credentials struct {
	Token    string `json:"token"`
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// RefreshFunc exchanges the current token for a fresh one.
type RefreshFunc func(ctx context.Context, current string) (string, error)

// Manager holds the session credentials, persists them across restarts and
// renews the token on a fixed interval while Run is alive. The token is
// never verified locally; only the backend holds the signing key, so the
// client reads claims without checking the signature.
type Manager struct {
	path     string
	refresh  RefreshFunc
	log      *logrus.Logger
	interval time.Duration

	mu    sync.Mutex
	creds Credentials

	// OnChange, when set, is invoked after every sign-in, sign-out and
	// identity change. Not called for token-only renewals.
	OnChange func(Credentials)
}

// NewManager loads any credentials persisted under dir. A missing or
// unreadable file starts the manager signed out.
func NewManager(dir string, refresh RefreshFunc, log *logrus.Logger) *Manager {
	m := &Manager{
		path:     filepath.Join(dir, credentialsFile),
		refresh:  refresh,
		log:      log,
		interval: DefaultRefreshInterval,
	}
	data, err := os.ReadFile(m.path)
	if err == nil {
		var creds Credentials
		if json.Unmarshal(data, &creds) == nil {
			m.creds = creds
		}
	}
	return m
}

// Token returns the current session token, empty when signed out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Token
}

// UID returns the signed-in user's id, empty when signed out.
func (m *Manager) UID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.UID
}

// Username returns the signed-in display name.
func (m *Manager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Username
}

// SetCredentials stores and persists a new session.
func (m *Manager) SetCredentials(creds Credentials) error {
	m.mu.Lock()
	changedUser := m.creds.UID != creds.UID
	m.creds = creds
	m.mu.Unlock()
	if changedUser && m.OnChange != nil {
		m.OnChange(creds)
	}
	return m.persist(creds)
}

// Clear signs out and removes the persisted credentials.
func (m *Manager) Clear() error {
	m.mu.Lock()
	hadUser := m.creds.UID != ""
	m.creds = Credentials{}
	m.mu.Unlock()
	if hadUser && m.OnChange != nil {
		m.OnChange(Credentials{})
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// Expiry reads the exp claim of the current token without verifying the
// signature. ok is false when signed out or the token carries no expiry.
func (m *Manager) Expiry() (time.Time, bool) {
	tok := m.Token()
	if tok == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the current token has passed its exp claim. A
// token without an expiry never expires.
func (m *Manager) Expired() bool {
	exp, ok := m.Expiry()
	return ok && time.Now().After(exp)
}

// Run renews the token every interval until ctx is canceled. A failed
// refresh keeps the old token and retries on the next tick.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.RefreshNow(ctx); err != nil && !errors.Is(err, ErrNoCredentials) {
				m.log.WithField("error", err).Warn("token refresh failed")
			}
		}
	}
}

// RefreshNow performs one token renewal.
func (m *Manager) RefreshNow(ctx context.Context) error {
	current := m.Token()
	if current == "" {
		return ErrNoCredentials
	}
	fresh, err := m.refresh(ctx, current)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.creds.Token != current {
		// Credentials changed while the refresh was in flight.
		m.mu.Unlock()
		return nil
	}
	m.creds.Token = fresh
	creds := m.creds
	m.mu.Unlock()
	return m.persist(creds)
}

func (m *Manager) persist(creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
