package models

// UserProfile is the backend-owned user document. The client holds a cached,
// possibly stale copy; everything except cosmetic fields is mutated by the
// backend in response to match outcomes.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	XP       int    `json:"xp"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`

	// TeamID is empty when the user is not in a team.
	TeamID string `json:"teamId,omitempty"`
}

// Level is one level per 100 xp.
func (u *UserProfile) Level() int {
	if u == nil || u.XP < 0 {
		return 0
	}
	return u.XP / 100
}

// LeaderboardEntry is a read-only projection of UserProfile ordered by xp
// descending. Rank is positional; ties are broken by ascending user id.
type LeaderboardEntry struct {
	ID       string `json:"id"`
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	XP       int    `json:"xp"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}
