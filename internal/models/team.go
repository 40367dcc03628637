package models

// MaxTeamMembers caps team size.
const MaxTeamMembers = 10

type TeamMember struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Team is the backend-owned team document. A team with zero members is
// deleted; membership is a set unique by UserID.
type Team struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Code        string       `json:"code"`
	TotalPoints int          `json:"totalPoints"`
	Members     []TeamMember `json:"members"`
	MemberIDs   []string     `json:"memberIds"`
	CreatedAt   int64        `json:"createdAt,omitempty"`
}

func (t *Team) HasMember(userID string) bool {
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// TeamSummary is the public-teams listing projection.
type TeamSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	TotalPoints int    `json:"totalPoints"`
	MemberCount int    `json:"memberCount"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
}
