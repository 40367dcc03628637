// internal/auth/token_test.go
package auth

import (
	"context"
	"crypto/ed25519"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	claims := jwt.MapClaims{"sub": "u1"}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	require.NoError(t, err)
	return tok
}

func TestManagerPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	m := NewManager(dir, nil, testLogger())
	assert.Empty(t, m.Token())

	creds := Credentials{Token: "tok-1", UID: "u1", Username: "ada"}
	require.NoError(t, m.SetCredentials(creds))

	reloaded := NewManager(dir, nil, testLogger())
	assert.Equal(t, "tok-1", reloaded.Token())
	assert.Equal(t, "u1", reloaded.UID())
	assert.Equal(t, "ada", reloaded.Username())

	require.NoError(t, reloaded.Clear())
	assert.Empty(t, reloaded.Token())
	assert.Empty(t, NewManager(dir, nil, testLogger()).Token())

	// Clearing twice is fine.
	require.NoError(t, reloaded.Clear())
}

func TestManagerExpiry(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil, testLogger())

	_, ok := m.Expiry()
	assert.False(t, ok, "signed out manager has no expiry")

	exp := time.Now().Add(time.Hour)
	require.NoError(t, m.SetCredentials(Credentials{Token: signedToken(t, exp), UID: "u1"}))

	got, ok := m.Expiry()
	require.True(t, ok)
	assert.WithinDuration(t, exp, got, time.Second)
	assert.False(t, m.Expired())

	require.NoError(t, m.SetCredentials(Credentials{Token: signedToken(t, time.Now().Add(-time.Minute)), UID: "u1"}))
	assert.True(t, m.Expired())

	// No exp claim means the token never expires.
	require.NoError(t, m.SetCredentials(Credentials{Token: signedToken(t, time.Time{}), UID: "u1"}))
	_, ok = m.Expiry()
	assert.False(t, ok)
	assert.False(t, m.Expired())
}

func TestOnChangeFiresForIdentityChangesOnly(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil, testLogger())

	var changes []string
	m.OnChange = func(c Credentials) { changes = append(changes, c.UID) }

	require.NoError(t, m.SetCredentials(Credentials{Token: "t1", UID: "u1"}))
	// Token rotation for the same user is not an identity change.
	require.NoError(t, m.SetCredentials(Credentials{Token: "t2", UID: "u1"}))
	require.NoError(t, m.Clear())
	require.NoError(t, m.Clear())

	assert.Equal(t, []string{"u1", ""}, changes)
}

func TestRefreshNow(t *testing.T) {
	dir := t.TempDir()
	refreshed := ""
	refresh := func(ctx context.Context, current string) (string, error) {
		refreshed = current
		return current + "-next", nil
	}
	m := NewManager(dir, refresh, testLogger())

	assert.ErrorIs(t, m.RefreshNow(context.Background()), ErrNoCredentials)

	require.NoError(t, m.SetCredentials(Credentials{Token: "tok-1", UID: "u1", Username: "ada"}))
	require.NoError(t, m.RefreshNow(context.Background()))
	assert.Equal(t, "tok-1", refreshed)
	assert.Equal(t, "tok-1-next", m.Token())
	assert.Equal(t, "u1", m.UID(), "refresh keeps the identity fields")

	// The renewed token survives a restart.
	assert.Equal(t, "tok-1-next", NewManager(dir, nil, testLogger()).Token())
}

func TestRunRefreshesOnInterval(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan string, 4)
	refresh := func(ctx context.Context, current string) (string, error) {
		calls <- current
		return current + "x", nil
	}
	m := NewManager(dir, refresh, testLogger())
	m.interval = 10 * time.Millisecond
	require.NoError(t, m.SetCredentials(Credentials{Token: "t", UID: "u1"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case first := <-calls:
		assert.Equal(t, "t", first)
	case <-time.After(time.Second):
		t.Fatal("refresher never ticked")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
