// internal/channel/client.go
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/slashcoder/slashcoder-client/internal/models"
)

// ErrNotConnected is returned by Emit when no connection is live.
var ErrNotConnected = errors.New("channel: not connected")

const writeTimeout = 3 * time.Second

// Envelope is the wire framing for both directions: a named event plus its
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw payload of one inbound event. Handlers for a
// given connection run on a single dispatch goroutine, in server-send order.
type Handler func(data json.RawMessage)

// PendingSink captures battle results that must survive even when nothing
// is subscribed, e.g. the session cache's pending-result slot.
type PendingSink interface {
	SavePendingResult(r *models.BattleResult) error
}

// TokenSource supplies the bearer credential attached on dial.
type TokenSource interface {
	Token() string
}

// Client maintains the single bidirectional event connection for an
// authenticated user. It reconnects with a bounded number of attempts and a
// fixed delay, dispatches inbound events to registered handlers, and
// persists battle_result payloads to the pending sink process-wide.
type Client struct {
	url    string
	log    *logrus.Logger
	tokens TokenSource
	sink   PendingSink

	attempts int
	delay    time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]map[uuid.UUID]Handler
	closed   bool
	cancel   context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithPendingSink installs the always-on battle_result capture target.
func WithPendingSink(s PendingSink) Option {
	return func(c *Client) { c.sink = s }
}

// WithTokenSource attaches Authorization headers on dial.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithReconnectPolicy overrides the default 10 attempts / 1s fixed delay.
func WithReconnectPolicy(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

// New creates a disconnected client for the given websocket URL.
func New(url string, log *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		url:      url,
		log:      log,
		attempts: 10,
		delay:    time.Second,
		handlers: make(map[string]map[uuid.UUID]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the endpoint, retrying per the reconnect policy, and starts
// the read loop. It returns once connected or after exhausting attempts.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return errors.New("channel: client closed")
	}
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.dispatch(EventConnect, nil)
	go c.readLoop(ctx, conn)
	return nil
}

// dial attempts the websocket handshake up to the bounded attempt count
// with a fixed delay between attempts.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.delay):
			}
		}
		opts := &websocket.DialOptions{}
		if c.tokens != nil {
			if tok := c.tokens.Token(); tok != "" {
				opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + tok}}
			}
		}
		conn, _, err := websocket.Dial(ctx, c.url, opts)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.log.WithFields(logrus.Fields{"attempt": i + 1, "error": err}).Warn("event channel dial failed")
	}
	return nil, lastErr
}

// readLoop reads frames until the connection dies, then reconnects. Events
// are dispatched inline, which preserves per-connection ordering.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.dispatch(EventDisconnect, nil)

			c.mu.Lock()
			closed := c.closed
			c.conn = nil
			c.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}

			next, derr := c.dial(ctx)
			if derr != nil {
				c.log.WithField("error", derr).Error("event channel reconnect exhausted")
				return
			}
			c.mu.Lock()
			c.conn = next
			c.mu.Unlock()
			conn = next
			c.dispatch(EventConnect, nil)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.log.WithField("error", err).Warn("event channel dropped malformed frame")
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

// Emit sends a named command, fire-and-forget. There is no acknowledgment;
// the only error is a dead or absent connection.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// On registers a handler for a named event and returns its removal func.
// The removal func is idempotent.
func (c *Client) On(event string, h Handler) (off func()) {
	id := uuid.New()
	c.mu.Lock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uuid.UUID]Handler)
	}
	c.handlers[event][id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

// dispatch persists must-not-drop events first, then fans out to whatever
// page-scoped handlers are currently registered.
func (c *Client) dispatch(event string, data json.RawMessage) {
	if event == EventBattleResult && c.sink != nil {
		var r models.BattleResult
		if err := json.Unmarshal(data, &r); err != nil {
			c.log.WithField("error", err).Warn("battle_result payload unparsable, capturing raw summary")
		}
		if err := c.sink.SavePendingResult(&r); err != nil {
			c.log.WithField("error", err).Error("failed to persist pending battle result")
		}
	}

	c.mu.Lock()
	hs := make([]Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}

// Connected reports whether a connection is currently live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears the connection down permanently.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}
