// internal/channel/events.go
package channel

// Inbound event names pushed by the backend, plus synthetic connection
// lifecycle events emitted by the client itself.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"

	EventWaiting          = "waiting"
	EventMatchFound       = "match_found"
	EventRunResult        = "run_result"
	EventSubmissionResult = "submission_result"
	EventBattleResult     = "battle_result"
)

// Outbound command names.
const (
	CmdJoinQueue  = "join_queue"
	CmdRunCode    = "run_code"
	CmdSubmitCode = "submit_code"
	CmdForfeit    = "forfeit"
)

// JoinQueuePayload accompanies join_queue.
type JoinQueuePayload struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// WaitingPayload accompanies waiting.
type WaitingPayload struct {
	Msg string `json:"msg,omitempty"`
}

// RunCodePayload accompanies run_code.
type RunCodePayload struct {
	Room       string `json:"room"`
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin,omitempty"`
}

// SubmitCodePayload accompanies submit_code. The backend resolves the room
// from the connection.
type SubmitCodePayload struct {
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
}
