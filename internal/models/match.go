package models

// Phase tracks where a match session is in its lifecycle. PhaseIdle means
// no session exists.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSearching      Phase = "searching"
	PhaseMatched        Phase = "matched"
	PhaseRunning        Phase = "running"
	PhaseAwaitingResult Phase = "awaiting-result"
	PhaseFinished       Phase = "finished"
)

// Problem is the statement payload for a match or practice problem. It is
// immutable for the duration of a session.
type Problem struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Input       string `json:"input,omitempty"`
	Output      string `json:"output,omitempty"`
	Constraints string `json:"constraints,omitempty"`
	Example     string `json:"example,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
}

type Opponent struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// MatchSession is the client-owned record of an in-progress duel. Its
// presence in the session cache is the sole source of truth for resuming
// across restarts; authoritative outcome state lives in the backend.
//
// LastRunOutput and LastSubmission are ephemeral and excluded from
// persistence.
type MatchSession struct {
	Room      string   `json:"room"`
	Problem   Problem  `json:"problem"`
	Opponent  Opponent `json:"opponent"`
	StartTime int64    `json:"startTime"` // server epoch seconds
	TimeLimit int      `json:"timeLimit"` // seconds

	Phase          Phase             `json:"-"`
	LastRunOutput  string            `json:"-"`
	LastSubmission *SubmissionResult `json:"-"`
}

// RunResult is the ephemeral reply to a run_code command.
type RunResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr,omitempty"`
}

// SubmissionResult is the intermediate per-player reply to submit_code.
// The final outcome still depends on the opponent.
type SubmissionResult struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

// BattleResult is the authoritative match outcome pushed by the backend.
type BattleResult struct {
	Room    string `json:"room,omitempty"`
	Winner  string `json:"winner,omitempty"` // uid, empty on draw
	Summary string `json:"summary,omitempty"`
}

// MatchRecord is one entry in a user's match history subcollection.
type MatchRecord struct {
	ID       string `json:"id"`
	Opponent string `json:"opponent,omitempty"`
	Result   string `json:"result,omitempty"` // "win", "loss" or "forfeit"
	XPChange int    `json:"xpChange,omitempty"`
	EndedAt  int64  `json:"endedAt"`
}
