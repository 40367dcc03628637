// internal/session/cache.go
package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/slashcoder/slashcoder-client/internal/models"
)

const (
	activeMatchFile   = "active_match.json"
	pendingResultFile = "pending_battle_result.json"
	prefsFile         = "prefs.json"
)

// Cache is the durable, profile-scoped store for the single active match
// snapshot and its companion pending battle result slot. Writes are
// synchronous write-through; a corrupt or missing record reads as absent,
// never as an error.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir (typically the per-uid profile
// directory).
func NewCache(dir string) *Cache {
	_ = os.MkdirAll(dir, 0o755)
	return &Cache{dir: dir}
}

// SaveSession stores the session snapshot, overwriting any prior value.
// Ephemeral fields (run output, last submission) are not persisted.
func (c *Cache) SaveSession(s *models.MatchSession) error {
	return c.writeJSON(activeMatchFile, s)
}

// LoadSession returns the stored session, or ok=false if absent or corrupt.
func (c *Cache) LoadSession() (*models.MatchSession, bool) {
	var s models.MatchSession
	if !c.readJSON(activeMatchFile, &s) || s.Room == "" {
		return nil, false
	}
	return &s, true
}

// ClearSession removes the stored session. Safe to call when absent.
func (c *Cache) ClearSession() {
	_ = os.Remove(filepath.Join(c.dir, activeMatchFile))
}

// SavePendingResult stores a battle result that arrived with no page
// listening, so a later restart can present it.
func (c *Cache) SavePendingResult(r *models.BattleResult) error {
	return c.writeJSON(pendingResultFile, r)
}

// LoadPendingResult returns the stored pending result, or ok=false.
func (c *Cache) LoadPendingResult() (*models.BattleResult, bool) {
	var r models.BattleResult
	if !c.readJSON(pendingResultFile, &r) {
		return nil, false
	}
	return &r, true
}

// ClearPendingResult removes the pending result slot.
func (c *Cache) ClearPendingResult() {
	_ = os.Remove(filepath.Join(c.dir, pendingResultFile))
}

// Prefs holds small client-owned UI preferences.
type Prefs struct {
	SidebarCollapsed bool `json:"sidebarCollapsed"`
}

func (c *Cache) SavePrefs(p Prefs) error {
	return c.writeJSON(prefsFile, p)
}

func (c *Cache) LoadPrefs() Prefs {
	var p Prefs
	c.readJSON(prefsFile, &p)
	return p
}

func (c *Cache) writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, name), b, 0o644)
}

// readJSON reports false for missing or unparsable files.
func (c *Cache) readJSON(name string, v any) bool {
	b, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return false
	}
	return json.Unmarshal(b, v) == nil
}
