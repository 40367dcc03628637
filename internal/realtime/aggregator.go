// internal/realtime/aggregator.go
package realtime

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/slashcoder/slashcoder-client/internal/models"
)

const (
	leaderboardLimit = 100
	matchesLimit     = 20
	publicTeamsLimit = 50
)

// AppState maintains the client's live document views. StartAll wires one
// watcher per view for the signed-in user; every subsequent snapshot
// replaces the corresponding slice or struct wholesale, so readers always
// see a complete, internally consistent value.
//
// The team watcher is special: it follows the teamId field of the user
// document. When teamId changes the old team subscription is torn down and
// a new one opened; a snapshot that repeats the current teamId rewires
// nothing.
type AppState struct {
	store Store
	log   *logrus.Logger

	mu      sync.Mutex
	started bool
	cancels []CancelFunc

	uid        string
	profile    models.UserProfile
	hasProfile bool

	teamID     string
	teamCancel CancelFunc
	team       *models.Team

	leaderboard []models.LeaderboardEntry
	matches     []models.MatchRecord
	publicTeams []models.TeamSummary

	// OnChange, when set before StartAll, is invoked after every applied
	// snapshot. Used by the terminal frontend to redraw.
	OnChange func()
}

func NewAppState(store Store, log *logrus.Logger) *AppState {
	return &AppState{store: store, log: log}
}

// StartAll opens the user, leaderboard, match history and public team
// watchers for uid. Calling it twice without StopAll is a no-op.
func (a *AppState) StartAll(ctx context.Context, uid string) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.uid = uid
	a.mu.Unlock()

	userCancel := a.store.WatchDoc(ctx, "users/"+uid, func(snap Snapshot) {
		a.applyUser(ctx, snap)
	})

	lbCancel := a.store.WatchQuery(ctx, Query{
		Collection: "users",
		OrderBy:    "xp",
		Desc:       true,
		Limit:      leaderboardLimit,
	}, a.applyLeaderboard)

	matchCancel := a.store.WatchQuery(ctx, Query{
		Collection: "users/" + uid + "/matches",
		OrderBy:    "endedAt",
		Desc:       true,
		Limit:      matchesLimit,
	}, a.applyMatches)

	teamsCancel := a.store.WatchQuery(ctx, Query{
		Collection: "teams",
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      publicTeamsLimit,
	}, a.applyPublicTeams)

	a.mu.Lock()
	a.cancels = append(a.cancels, userCancel, lbCancel, matchCancel, teamsCancel)
	a.mu.Unlock()
}

// StopAll tears down every watcher, the derived team watcher included.
// Safe to call more than once.
func (a *AppState) StopAll() {
	a.mu.Lock()
	cancels := a.cancels
	a.cancels = nil
	teamCancel := a.teamCancel
	a.teamCancel = nil
	a.started = false
	a.teamID = ""
	a.team = nil
	a.hasProfile = false
	a.leaderboard = nil
	a.matches = nil
	a.publicTeams = nil
	a.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if teamCancel != nil {
		teamCancel()
	}
}

func (a *AppState) applyUser(ctx context.Context, snap Snapshot) {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	if !snap.Exists {
		a.hasProfile = false
		a.mu.Unlock()
		a.rewireTeam(ctx, "")
		a.changed()
		return
	}

	var p models.UserProfile
	if err := snap.Decode(&p); err != nil {
		a.mu.Unlock()
		a.log.WithField("error", err).Warn("user snapshot decode failed")
		return
	}
	p.ID = snap.ID
	a.profile = p
	a.hasProfile = true
	a.mu.Unlock()

	a.rewireTeam(ctx, p.TeamID)
	a.changed()
}

// rewireTeam reconciles the team subscription against the user's current
// teamId. Exactly one teardown and at most one resubscribe happen per
// change; a repeated value leaves the subscription alone.
func (a *AppState) rewireTeam(ctx context.Context, teamID string) {
	a.mu.Lock()
	if teamID == a.teamID {
		a.mu.Unlock()
		return
	}
	old := a.teamCancel
	a.teamCancel = nil
	a.teamID = teamID
	a.team = nil
	a.mu.Unlock()

	if old != nil {
		old()
	}
	if teamID == "" {
		return
	}

	cancel := a.store.WatchDoc(ctx, "teams/"+teamID, func(snap Snapshot) {
		a.applyTeam(teamID, snap)
	})
	a.mu.Lock()
	if a.teamID != teamID {
		// teamId moved again while we were subscribing
		a.mu.Unlock()
		cancel()
		return
	}
	a.teamCancel = cancel
	a.mu.Unlock()
}

func (a *AppState) applyTeam(teamID string, snap Snapshot) {
	a.mu.Lock()
	if a.teamID != teamID {
		a.mu.Unlock()
		return
	}
	if !snap.Exists {
		a.team = nil
		a.mu.Unlock()
		a.changed()
		return
	}
	var t models.Team
	if err := snap.Decode(&t); err != nil {
		a.mu.Unlock()
		a.log.WithField("error", err).Warn("team snapshot decode failed")
		return
	}
	t.ID = snap.ID
	a.team = &t
	a.mu.Unlock()
	a.changed()
}

func (a *AppState) applyLeaderboard(qs QuerySnapshot) {
	entries := make([]models.LeaderboardEntry, 0, len(qs.Docs))
	for i, doc := range qs.Docs {
		var p models.UserProfile
		if err := doc.Decode(&p); err != nil {
			a.log.WithFields(logrus.Fields{"doc": doc.ID, "error": err}).Warn("leaderboard entry decode failed")
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			ID:       doc.ID,
			Rank:     i + 1,
			Username: p.Username,
			XP:       p.XP,
			Wins:     p.Wins,
			Losses:   p.Losses,
		})
	}
	a.mu.Lock()
	a.leaderboard = entries
	a.mu.Unlock()
	a.changed()
}

func (a *AppState) applyMatches(qs QuerySnapshot) {
	records := make([]models.MatchRecord, 0, len(qs.Docs))
	for _, doc := range qs.Docs {
		var m models.MatchRecord
		if err := doc.Decode(&m); err != nil {
			a.log.WithFields(logrus.Fields{"doc": doc.ID, "error": err}).Warn("match record decode failed")
			continue
		}
		m.ID = doc.ID
		records = append(records, m)
	}
	a.mu.Lock()
	a.matches = records
	a.mu.Unlock()
	a.changed()
}

func (a *AppState) applyPublicTeams(qs QuerySnapshot) {
	teams := make([]models.TeamSummary, 0, len(qs.Docs))
	for _, doc := range qs.Docs {
		var t models.Team
		if err := doc.Decode(&t); err != nil {
			a.log.WithFields(logrus.Fields{"doc": doc.ID, "error": err}).Warn("public team decode failed")
			continue
		}
		teams = append(teams, models.TeamSummary{
			ID:          doc.ID,
			Name:        t.Name,
			Code:        t.Code,
			TotalPoints: t.TotalPoints,
			MemberCount: len(t.Members),
			CreatedAt:   t.CreatedAt,
		})
	}
	a.mu.Lock()
	a.publicTeams = teams
	a.mu.Unlock()
	a.changed()
}

func (a *AppState) changed() {
	if a.OnChange != nil {
		a.OnChange()
	}
}

// Profile returns the latest user snapshot, ok=false before the first one
// arrives or after the document is deleted.
func (a *AppState) Profile() (models.UserProfile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile, a.hasProfile
}

// Team returns a copy of the user's current team, or nil when the user is
// teamless or the team snapshot has not arrived yet.
func (a *AppState) Team() *models.Team {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.team == nil {
		return nil
	}
	t := *a.team
	t.Members = append([]models.TeamMember(nil), a.team.Members...)
	t.MemberIDs = append([]string(nil), a.team.MemberIDs...)
	return &t
}

// Leaderboard returns a copy of the ranked top players.
func (a *AppState) Leaderboard() []models.LeaderboardEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.LeaderboardEntry(nil), a.leaderboard...)
}

// Matches returns a copy of the user's recent match history.
func (a *AppState) Matches() []models.MatchRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.MatchRecord(nil), a.matches...)
}

// PublicTeams returns a copy of the public team directory.
func (a *AppState) PublicTeams() []models.TeamSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.TeamSummary(nil), a.publicTeams...)
}
