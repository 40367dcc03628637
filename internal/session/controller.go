// internal/session/controller.go
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slashcoder/slashcoder-client/internal/channel"
	"github.com/slashcoder/slashcoder-client/internal/models"
)

// EventChannel is the slice of the event channel client the controller
// needs: fire-and-forget commands out, named event subscriptions in.
type EventChannel interface {
	Emit(event string, payload any) error
	On(event string, h channel.Handler) (off func())
}

// Views the controller asks the UI to show.
const (
	ViewArena     = "arena"
	ViewDashboard = "dashboard"
)

// Hooks are optional UI callbacks. They are invoked with the controller
// lock released and may be nil.
type Hooks struct {
	// OnPhase fires on every phase transition.
	OnPhase func(models.Phase)
	// OnNavigate asks the UI to switch views.
	OnNavigate func(view string)
	// OnResult delivers the battle outcome, live or recovered from the
	// pending-result slot after a restart.
	OnResult func(models.BattleResult)
	// OnTick fires once per countdown second.
	OnTick func(remaining int)
	// OnStatus carries transient queue status text ("waiting" messages).
	OnStatus func(msg string)
}

// Option configures a Controller.
type Option func(*Controller)

// WithQueueTimeout overrides the 30s matchmaking queue timeout.
func WithQueueTimeout(d time.Duration) Option {
	return func(c *Controller) { c.queueTimeout = d }
}

// WithFinishDelay overrides the short pause between showing a result and
// returning to the dashboard.
func WithFinishDelay(d time.Duration) Option {
	return func(c *Controller) { c.finishDelay = d }
}

// Controller owns the match-session lifecycle: queueing, the
// match_found/run/submit/battle_result exchange, persistence of the active
// session for resume, and the guarantee of exactly one outcome (finish,
// forfeit or abandon) per session.
type Controller struct {
	mu    sync.Mutex
	log   *logrus.Logger
	ch    EventChannel
	cache *Cache
	hooks Hooks

	countdown *Countdown
	phase     models.Phase
	session   *models.MatchSession

	// finishedRoom is the room of the most recently finished match, kept so
	// redelivered results for it can be recognized after the phase has moved
	// on.
	finishedRoom string

	queueTimer *time.Timer
	exitTimer  *time.Timer

	queueTimeout time.Duration
	finishDelay  time.Duration

	offs    []func()
	started bool
}

// matchFoundPayload mirrors the match_found event body.
type matchFoundPayload struct {
	Room      string          `json:"room"`
	Problem   models.Problem  `json:"problem"`
	Opponent  models.Opponent `json:"opponent"`
	TimeLimit int             `json:"timeLimit"`
	StartTime int64           `json:"startTime"`
}

// NewController wires a controller to its collaborators. Call Start to
// attach event listeners.
func NewController(ch EventChannel, cache *Cache, log *logrus.Logger, hooks Hooks, opts ...Option) *Controller {
	c := &Controller{
		log:          log,
		ch:           ch,
		cache:        cache,
		hooks:        hooks,
		phase:        models.PhaseIdle,
		queueTimeout: 30 * time.Second,
		finishDelay:  2200 * time.Millisecond,
	}
	c.countdown = NewCountdown(func(rem int) {
		if hooks.OnTick != nil {
			hooks.OnTick(rem)
		}
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers the page-scoped event listeners and surfaces any battle
// result captured while no session was mounted. Listeners are removed
// symmetrically by Close.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.offs = append(c.offs,
		c.ch.On(channel.EventWaiting, c.handleWaiting),
		c.ch.On(channel.EventMatchFound, c.handleMatchFound),
		c.ch.On(channel.EventRunResult, c.handleRunResult),
		c.ch.On(channel.EventSubmissionResult, c.handleSubmissionResult),
		c.ch.On(channel.EventBattleResult, c.handleBattleResult),
	)
	c.mu.Unlock()

	// A pending result supersedes any cached session: the match ended while
	// this client was away.
	if r, ok := c.cache.LoadPendingResult(); ok {
		c.cache.ClearPendingResult()
		c.cache.ClearSession()
		c.log.WithField("summary", r.Summary).Info("recovered battle result from pending slot")
		if c.hooks.OnResult != nil {
			c.hooks.OnResult(*r)
		}
	}
}

// JoinQueue emits join_queue and starts the queue-timeout countdown. It is
// only valid from Idle.
func (c *Controller) JoinQueue(uid, name string) error {
	c.mu.Lock()
	if c.phase != models.PhaseIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.setPhaseLocked(models.PhaseSearching)
	c.restartQueueTimerLocked()
	c.mu.Unlock()

	return c.ch.Emit(channel.CmdJoinQueue, channel.JoinQueuePayload{UID: uid, Name: name})
}

// CancelSearch leaves the queue locally. The backend expires idle queue
// entries on its own; no command is sent.
func (c *Controller) CancelSearch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != models.PhaseSearching {
		return
	}
	c.stopQueueTimerLocked()
	c.setPhaseLocked(models.PhaseIdle)
}

// MountArena resolves what a freshly mounted arena should show, in priority
// order: the in-memory session carried from matchmaking, then the cached
// snapshot from a previous run. It reports whether an active session exists.
func (c *Controller) MountArena() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		s, ok := c.cache.LoadSession()
		if !ok {
			return false
		}
		c.log.WithField("room", s.Room).Info("restored match session from cache")
		c.session = s
	}

	// The countdown restarts from the server epoch, so both the fresh-mount
	// and restore paths land on the correct remaining time, and Start stops
	// any previous ticker before creating a new one.
	c.countdown.Start(c.session.TimeLimit, c.session.StartTime)
	c.session.Phase = models.PhaseRunning
	c.setPhaseLocked(models.PhaseRunning)
	return true
}

// Session returns a copy of the active session, if any.
func (c *Controller) Session() (models.MatchSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return models.MatchSession{}, false
	}
	return *c.session, true
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() models.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Remaining returns the countdown's displayed seconds.
func (c *Controller) Remaining() int {
	return c.countdown.Remaining()
}

// Run sends the current editor buffer for an unscored run against custom
// input. The phase does not change; the reply only updates ephemeral output.
func (c *Controller) Run(language, sourceCode, stdin string) error {
	c.mu.Lock()
	if c.session == nil || (c.phase != models.PhaseMatched && c.phase != models.PhaseRunning) {
		c.mu.Unlock()
		return ErrNoActiveMatch
	}
	room := c.session.Room
	c.mu.Unlock()

	return c.ch.Emit(channel.CmdRunCode, channel.RunCodePayload{
		Room:       room,
		Language:   language,
		SourceCode: sourceCode,
		Stdin:      stdin,
	})
}

// Submit runs the hidden tests and moves to awaiting-result. No local
// timeout applies: the outcome depends on the opponent too, so the phase
// waits indefinitely for battle_result.
func (c *Controller) Submit(language, sourceCode string) error {
	c.mu.Lock()
	if c.session == nil || (c.phase != models.PhaseMatched && c.phase != models.PhaseRunning) {
		c.mu.Unlock()
		return ErrNoActiveMatch
	}
	c.session.LastSubmission = nil
	c.session.Phase = models.PhaseAwaitingResult
	c.setPhaseLocked(models.PhaseAwaitingResult)
	c.mu.Unlock()

	return c.ch.Emit(channel.CmdSubmitCode, channel.SubmitCodePayload{
		Language:   language,
		SourceCode: sourceCode,
	})
}

// Forfeit abandons the session. While still searching there is no room to
// target, so nothing is emitted and the phase drops straight back to Idle.
func (c *Controller) Forfeit() error {
	c.mu.Lock()
	switch c.phase {
	case models.PhaseIdle, models.PhaseFinished:
		c.mu.Unlock()
		return nil
	case models.PhaseSearching:
		c.stopQueueTimerLocked()
		c.setPhaseLocked(models.PhaseIdle)
		c.mu.Unlock()
		return nil
	}

	c.countdown.Stop()
	c.cache.ClearSession()
	c.session = nil
	c.setPhaseLocked(models.PhaseIdle)
	c.mu.Unlock()

	err := c.ch.Emit(channel.CmdForfeit, struct{}{})
	if c.hooks.OnNavigate != nil {
		c.hooks.OnNavigate(ViewDashboard)
	}
	return err
}

// Close removes listeners and stops every timer the controller owns.
func (c *Controller) Close() {
	c.mu.Lock()
	offs := c.offs
	c.offs = nil
	c.started = false
	c.stopQueueTimerLocked()
	if c.exitTimer != nil {
		c.exitTimer.Stop()
		c.exitTimer = nil
	}
	c.mu.Unlock()

	c.countdown.Stop()
	for _, off := range offs {
		off()
	}
}

// --- inbound event handlers ---

func (c *Controller) handleWaiting(data json.RawMessage) {
	var p channel.WaitingPayload
	_ = json.Unmarshal(data, &p)

	c.mu.Lock()
	if c.phase != models.PhaseSearching {
		c.mu.Unlock()
		return
	}
	c.restartQueueTimerLocked()
	c.mu.Unlock()

	if c.hooks.OnStatus != nil && p.Msg != "" {
		c.hooks.OnStatus(p.Msg)
	}
}

func (c *Controller) handleMatchFound(data json.RawMessage) {
	var p matchFoundPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		c.log.WithField("error", err).Warn("dropped malformed match_found")
		return
	}
	if p.TimeLimit <= 0 {
		p.TimeLimit = 600
	}
	if p.StartTime <= 0 {
		p.StartTime = time.Now().Unix()
	}

	s := &models.MatchSession{
		Room:      p.Room,
		Problem:   p.Problem,
		Opponent:  p.Opponent,
		TimeLimit: p.TimeLimit,
		StartTime: p.StartTime,
		Phase:     models.PhaseMatched,
	}

	c.mu.Lock()
	c.stopQueueTimerLocked()
	c.session = s
	if err := c.cache.SaveSession(s); err != nil {
		c.log.WithField("error", err).Error("failed to persist match session")
	}
	c.countdown.Start(s.TimeLimit, s.StartTime)
	c.setPhaseLocked(models.PhaseMatched)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"room": s.Room, "opponent": s.Opponent.Name}).Info("match found")
	if c.hooks.OnNavigate != nil {
		c.hooks.OnNavigate(ViewArena)
	}
}

func (c *Controller) handleRunResult(data json.RawMessage) {
	var r models.RunResult
	_ = json.Unmarshal(data, &r)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.LastRunOutput = r.Stdout
	}
}

func (c *Controller) handleSubmissionResult(data json.RawMessage) {
	var r models.SubmissionResult
	if err := json.Unmarshal(data, &r); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.LastSubmission = &r
	}
}

// handleBattleResult finishes the session exactly once, even if the backend
// redelivers the event.
func (c *Controller) handleBattleResult(data json.RawMessage) {
	var r models.BattleResult
	_ = json.Unmarshal(data, &r)

	c.mu.Lock()
	switch c.phase {
	case models.PhaseMatched, models.PhaseRunning, models.PhaseAwaitingResult:
	default:
		// A redelivery for the match that just finished still re-saves the
		// pending slot via the always-on sink; scrub it so a later start does
		// not replay an outcome the user already saw.
		if c.finishedRoom != "" && (r.Room == "" || r.Room == c.finishedRoom) {
			c.cache.ClearPendingResult()
		}
		c.mu.Unlock()
		return
	}

	c.countdown.Stop()
	c.cache.ClearSession()
	c.cache.ClearPendingResult()
	if c.session != nil {
		c.session.Phase = models.PhaseFinished
		c.finishedRoom = c.session.Room
	}
	if r.Room != "" {
		c.finishedRoom = r.Room
	}
	c.setPhaseLocked(models.PhaseFinished)

	// Show the outcome briefly, then leave the arena on our own.
	timer := time.AfterFunc(c.finishDelay, c.exitAfterFinish)
	if c.exitTimer != nil {
		c.exitTimer.Stop()
	}
	c.exitTimer = timer
	c.mu.Unlock()

	c.log.WithField("summary", r.Summary).Info("battle finished")
	if c.hooks.OnResult != nil {
		c.hooks.OnResult(r)
	}
}

func (c *Controller) exitAfterFinish() {
	c.mu.Lock()
	if c.phase != models.PhaseFinished {
		c.mu.Unlock()
		return
	}
	c.exitTimer = nil
	c.session = nil
	c.setPhaseLocked(models.PhaseIdle)
	c.mu.Unlock()

	if c.hooks.OnNavigate != nil {
		c.hooks.OnNavigate(ViewDashboard)
	}
}

// --- timers ---

// restartQueueTimerLocked arms the matchmaking timeout. The identity check
// in the callback discards stale timers that fire after a restart.
func (c *Controller) restartQueueTimerLocked() {
	c.stopQueueTimerLocked()
	var timer *time.Timer
	timer = time.AfterFunc(c.queueTimeout, func() {
		c.mu.Lock()
		if c.queueTimer != timer {
			c.mu.Unlock()
			return
		}
		c.queueTimer = nil
		if c.phase == models.PhaseSearching {
			c.setPhaseLocked(models.PhaseIdle)
			c.log.Info("matchmaking queue timed out")
		}
		c.mu.Unlock()
	})
	c.queueTimer = timer
}

func (c *Controller) stopQueueTimerLocked() {
	if c.queueTimer != nil {
		c.queueTimer.Stop()
		c.queueTimer = nil
	}
}

// setPhaseLocked records the transition and schedules the UI hook. Caller
// holds the lock.
func (c *Controller) setPhaseLocked(p models.Phase) {
	if c.phase == p {
		return
	}
	c.phase = p
	if c.hooks.OnPhase != nil {
		go c.hooks.OnPhase(p)
	}
}
