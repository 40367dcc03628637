// internal/team/service.go
package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/slashcoder/slashcoder-client/internal/models"
	"github.com/slashcoder/slashcoder-client/internal/realtime"
)

// Join codes avoid the look-alike characters 0/O, 1/I/L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const codeLength = 6

var (
	ErrNotLoggedIn   = errors.New("team: not logged in")
	ErrAlreadyInTeam = errors.New("team: already a member of a team")
	ErrTeamNotFound  = errors.New("team: team not found")
	ErrTeamFull      = errors.New("team: team is full")
)

// Service implements team membership on top of the document store. The
// team document is the source of truth for the roster; the user document
// carries only the teamId back-pointer the live views key off.
type Service struct {
	store realtime.Store
	log   *logrus.Logger
}

func NewService(store realtime.Store, log *logrus.Logger) *Service {
	return &Service{store: store, log: log}
}

// Create makes a new team with the caller as its only member and returns
// the team id. The caller must be teamless.
func (s *Service) Create(ctx context.Context, uid, username, name string) (string, error) {
	if uid == "" {
		return "", ErrNotLoggedIn
	}
	current, err := s.currentTeamID(ctx, uid)
	if err != nil {
		return "", err
	}
	if current != "" {
		return "", ErrAlreadyInTeam
	}

	code, err := gonanoid.Generate(codeAlphabet, codeLength)
	if err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}

	teamID, err := s.store.Create(ctx, "teams", map[string]any{
		"name":        name,
		"code":        code,
		"totalPoints": 0,
		"members":     []map[string]any{{"userId": uid, "username": username}},
		"memberIds":   []string{uid},
		"createdAt":   realtime.ServerTimestamp(),
	})
	if err != nil {
		return "", fmt.Errorf("create team: %w", err)
	}

	if err := s.store.Update(ctx, "users/"+uid, map[string]any{"teamId": teamID}); err != nil {
		return "", fmt.Errorf("link team to profile: %w", err)
	}
	s.log.WithFields(logrus.Fields{"team_id": teamID, "uid": uid}).Info("team created")
	return teamID, nil
}

// JoinByID adds the caller to the team's roster. If the roster already
// lists the caller, only the profile back-pointer is repaired; the team
// document is left untouched.
func (s *Service) JoinByID(ctx context.Context, uid, username, teamID string) error {
	if uid == "" {
		return ErrNotLoggedIn
	}

	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return err
	}

	if !team.HasMember(uid) {
		current, err := s.currentTeamID(ctx, uid)
		if err != nil {
			return err
		}
		if current != "" && current != teamID {
			return ErrAlreadyInTeam
		}
		if len(team.Members) >= models.MaxTeamMembers {
			return ErrTeamFull
		}
		err = s.store.Update(ctx, "teams/"+teamID, map[string]any{
			"members":   realtime.ArrayUnion(map[string]any{"userId": uid, "username": username}),
			"memberIds": realtime.ArrayUnion(uid),
		})
		if err != nil {
			return fmt.Errorf("join team: %w", err)
		}
	}

	if err := s.store.Update(ctx, "users/"+uid, map[string]any{"teamId": teamID}); err != nil {
		return fmt.Errorf("link team to profile: %w", err)
	}
	s.log.WithFields(logrus.Fields{"team_id": teamID, "uid": uid}).Info("joined team")
	return nil
}

// JoinByCode resolves a join code to its team and joins it. Codes match
// case-insensitively.
func (s *Service) JoinByCode(ctx context.Context, uid, username, code string) (string, error) {
	if uid == "" {
		return "", ErrNotLoggedIn
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	qs, err := s.store.GetQuery(ctx, realtime.Query{
		Collection: "teams",
		Where:      &realtime.Where{Field: "code", Value: code},
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("look up join code: %w", err)
	}
	if len(qs.Docs) == 0 {
		return "", ErrTeamNotFound
	}
	teamID := qs.Docs[0].ID
	if err := s.JoinByID(ctx, uid, username, teamID); err != nil {
		return "", err
	}
	return teamID, nil
}

// Leave removes the caller from their current team. The last member out
// deletes the team document entirely.
func (s *Service) Leave(ctx context.Context, uid string) error {
	if uid == "" {
		return ErrNotLoggedIn
	}
	teamID, err := s.currentTeamID(ctx, uid)
	if err != nil {
		return err
	}
	if teamID == "" {
		return ErrTeamNotFound
	}

	team, err := s.getTeam(ctx, teamID)
	if err == nil {
		remaining := make([]map[string]any, 0, len(team.Members))
		for _, m := range team.Members {
			if m.UserID != uid {
				remaining = append(remaining, map[string]any{"userId": m.UserID, "username": m.Username})
			}
		}
		if len(remaining) == 0 {
			if err := s.store.Delete(ctx, "teams/"+teamID); err != nil {
				return fmt.Errorf("delete empty team: %w", err)
			}
		} else {
			err := s.store.Update(ctx, "teams/"+teamID, map[string]any{
				"members":   remaining,
				"memberIds": realtime.ArrayRemove(uid),
			})
			if err != nil {
				return fmt.Errorf("leave team: %w", err)
			}
		}
	} else if !errors.Is(err, ErrTeamNotFound) {
		return err
	}

	if err := s.store.Update(ctx, "users/"+uid, map[string]any{"teamId": realtime.DeleteField()}); err != nil {
		return fmt.Errorf("unlink team from profile: %w", err)
	}
	s.log.WithFields(logrus.Fields{"team_id": teamID, "uid": uid}).Info("left team")
	return nil
}

func (s *Service) currentTeamID(ctx context.Context, uid string) (string, error) {
	snap, err := s.store.Get(ctx, "users/"+uid)
	if errors.Is(err, realtime.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	var p models.UserProfile
	if err := snap.Decode(&p); err != nil {
		return "", fmt.Errorf("decode profile: %w", err)
	}
	return p.TeamID, nil
}

func (s *Service) getTeam(ctx context.Context, teamID string) (*models.Team, error) {
	snap, err := s.store.Get(ctx, "teams/"+teamID)
	if errors.Is(err, realtime.ErrNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}
	var t models.Team
	if err := snap.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode team: %w", err)
	}
	t.ID = snap.ID
	return &t, nil
}
