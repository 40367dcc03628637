// internal/team/service_test.go
package team

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slashcoder/slashcoder-client/internal/models"
	"github.com/slashcoder/slashcoder-client/internal/realtime"
)

func newTestService(t *testing.T) (*Service, *realtime.MemoryStore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := realtime.NewMemoryStore()
	return NewService(store, log), store
}

func loadTeam(t *testing.T, store *realtime.MemoryStore, id string) models.Team {
	t.Helper()
	snap, err := store.Get(context.Background(), "teams/"+id)
	require.NoError(t, err)
	var team models.Team
	require.NoError(t, snap.Decode(&team))
	team.ID = id
	return team
}

func loadProfile(t *testing.T, store *realtime.MemoryStore, uid string) models.UserProfile {
	t.Helper()
	snap, err := store.Get(context.Background(), "users/"+uid)
	require.NoError(t, err)
	var p models.UserProfile
	require.NoError(t, snap.Decode(&p))
	return p
}

func TestCreateTeam(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.Seed("users/u1", map[string]any{"username": "ada", "xp": 0})

	teamID, err := svc.Create(ctx, "u1", "ada", "Compilers")
	require.NoError(t, err)
	require.NotEmpty(t, teamID)

	team := loadTeam(t, store, teamID)
	assert.Equal(t, "Compilers", team.Name)
	require.Len(t, team.Members, 1)
	assert.Equal(t, "u1", team.Members[0].UserID)
	assert.Len(t, team.Code, 6)
	for _, r := range team.Code {
		assert.Contains(t, codeAlphabet, string(r))
	}

	assert.Equal(t, teamID, loadProfile(t, store, "u1").TeamID)

	_, err = svc.Create(ctx, "u1", "ada", "Second")
	assert.ErrorIs(t, err, ErrAlreadyInTeam)
}

func TestCreateRequiresLogin(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "", "", "Compilers")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestJoinByID(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.Seed("users/u1", map[string]any{"username": "ada"})
	store.Seed("users/u2", map[string]any{"username": "lin"})

	teamID, err := svc.Create(ctx, "u1", "ada", "Compilers")
	require.NoError(t, err)

	require.NoError(t, svc.JoinByID(ctx, "u2", "lin", teamID))

	team := loadTeam(t, store, teamID)
	require.Len(t, team.Members, 2)
	assert.True(t, team.HasMember("u2"))
	assert.Equal(t, teamID, loadProfile(t, store, "u2").TeamID)

	assert.ErrorIs(t, svc.JoinByID(ctx, "u2", "lin", "no-such-team"), ErrTeamNotFound)
}

func TestJoinRejoinOnlyRepairsProfile(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.Seed("users/u1", map[string]any{"username": "ada"})

	teamID, err := svc.Create(ctx, "u1", "ada", "Compilers")
	require.NoError(t, err)

	// Simulate a profile that lost its back-pointer.
	require.NoError(t, store.Update(ctx, "users/u1", map[string]any{"teamId": realtime.DeleteField()}))

	require.NoError(t, svc.JoinByID(ctx, "u1", "ada", teamID))

	team := loadTeam(t, store, teamID)
	assert.Len(t, team.Members, 1, "roster must not gain a duplicate entry")
	assert.Equal(t, teamID, loadProfile(t, store, "u1").TeamID)
}

func TestJoinWhileInOtherTeam(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.Seed("users/u1", map[string]any{"username": "ada"})
	store.Seed("users/u2", map[string]any{"username": "lin"})

	_, err := svc.Create(ctx, "u1", "ada", "Alpha")
	require.NoError(t, err)
	otherID, err := svc.Create(ctx, "u2", "lin", "Beta")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.JoinByID(ctx, "u1", "ada", otherID), ErrAlreadyInTeam)
}

func TestJoinFullTeam(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	members := make([]map[string]any, models.MaxTeamMembers)
	ids := make([]string, models.MaxTeamMembers)
	for i := range members {
		uid := string(rune('a' + i))
		members[i] = map[string]any{"userId": uid, "username": uid}
		ids[i] = uid
	}
	store.Seed("teams/t1", map[string]any{"name": "Full", "code": "ABC234", "members": members, "memberIds": ids})
	store.Seed("users/u9", map[string]any{"username": "late"})

	assert.ErrorIs(t, svc.JoinByID(ctx, "u9", "late", "t1"), ErrTeamFull)
}

func TestJoinByCode(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.Seed("users/u1", map[string]any{"username": "ada"})
	store.Seed("users/u2", map[string]any{"username": "lin"})

	teamID, err := svc.Create(ctx, "u1", "ada", "Compilers")
	require.NoError(t, err)
	code := loadTeam(t, store, teamID).Code

	// Codes are matched case-insensitively with surrounding space ignored.
	joined, err := svc.JoinByCode(ctx, "u2", "lin", "  "+code+"  ")
	require.NoError(t, err)
	assert.Equal(t, teamID, joined)

	_, err = svc.JoinByCode(ctx, "u2", "lin", "ZZZZZZ")
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestLeaveTeam(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.Seed("users/u1", map[string]any{"username": "ada"})
	store.Seed("users/u2", map[string]any{"username": "lin"})

	teamID, err := svc.Create(ctx, "u1", "ada", "Compilers")
	require.NoError(t, err)
	require.NoError(t, svc.JoinByID(ctx, "u2", "lin", teamID))

	require.NoError(t, svc.Leave(ctx, "u2"))

	team := loadTeam(t, store, teamID)
	assert.Len(t, team.Members, 1)
	assert.False(t, team.HasMember("u2"))
	assert.Empty(t, loadProfile(t, store, "u2").TeamID)

	// Last member out deletes the team.
	require.NoError(t, svc.Leave(ctx, "u1"))
	_, err = store.Get(ctx, "teams/"+teamID)
	assert.ErrorIs(t, err, realtime.ErrNotFound)
	assert.Empty(t, loadProfile(t, store, "u1").TeamID)

	assert.ErrorIs(t, svc.Leave(ctx, "u1"), ErrTeamNotFound)
}
