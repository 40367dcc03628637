// internal/realtime/gateway.go
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const gatewayWriteTimeout = 3 * time.Second

// TokenSource supplies the bearer credential attached on dial.
type TokenSource interface {
	Token() string
}

// frame is the gateway wire format, shared by both directions. Outbound ops
// are subscribe/unsubscribe/get/get_query/create/update/delete; inbound ops
// are snapshot, query_snapshot and result.
type frame struct {
	Op         string         `json:"op"`
	ID         int64          `json:"id,omitempty"`
	Doc        string         `json:"doc,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Query      *Query         `json:"query,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Data       map[string]any `json:"data,omitempty"`

	Snapshot *Snapshot  `json:"snapshot,omitempty"`
	Docs     []Snapshot `json:"docs,omitempty"`
	DocID    string     `json:"docId,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type subscription struct {
	docFn   func(Snapshot)
	queryFn func(QuerySnapshot)
}

// Gateway is the Store implementation backed by the platform's realtime
// document gateway. One websocket multiplexes every subscription and
// mutation; snapshots for a subscription are delivered in server-send
// order from a single read loop.
type Gateway struct {
	url    string
	log    *logrus.Logger
	tokens TokenSource

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	subs    map[int64]*subscription
	pending map[int64]chan frame
	closed  bool
}

// NewGateway creates a disconnected gateway client.
func NewGateway(url string, log *logrus.Logger, tokens TokenSource) *Gateway {
	return &Gateway{
		url:     url,
		log:     log,
		tokens:  tokens,
		subs:    make(map[int64]*subscription),
		pending: make(map[int64]chan frame),
	}
}

// Connect dials the gateway and starts the read loop.
func (g *Gateway) Connect(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if g.tokens != nil {
		if tok := g.tokens.Token(); tok != "" {
			opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + tok}}
		}
	}
	conn, _, err := websocket.Dial(ctx, g.url, opts)
	if err != nil {
		return fmt.Errorf("gateway dial: %w", err)
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	go g.readLoop(ctx, conn)
	return nil
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			g.mu.Lock()
			closed := g.closed
			for id, ch := range g.pending {
				close(ch)
				delete(g.pending, id)
			}
			g.mu.Unlock()
			if !closed {
				g.log.WithField("error", err).Warn("realtime gateway connection lost")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			g.log.WithField("error", err).Warn("realtime gateway dropped malformed frame")
			continue
		}

		switch f.Op {
		case "snapshot":
			g.mu.Lock()
			sub := g.subs[f.ID]
			g.mu.Unlock()
			if sub != nil && sub.docFn != nil && f.Snapshot != nil {
				sub.docFn(*f.Snapshot)
			}
		case "query_snapshot":
			g.mu.Lock()
			sub := g.subs[f.ID]
			g.mu.Unlock()
			if sub != nil && sub.queryFn != nil {
				sub.queryFn(QuerySnapshot{Docs: f.Docs})
			}
		case "result":
			g.mu.Lock()
			ch := g.pending[f.ID]
			delete(g.pending, f.ID)
			g.mu.Unlock()
			if ch != nil {
				ch <- f
				close(ch)
			}
		}
	}
}

func (g *Gateway) WatchDoc(ctx context.Context, path string, fn func(Snapshot)) CancelFunc {
	id := g.register(&subscription{docFn: fn})
	if err := g.write(ctx, frame{Op: "subscribe", ID: id, Doc: path}); err != nil {
		g.log.WithFields(logrus.Fields{"doc": path, "error": err}).Error("subscribe failed")
	}
	return g.cancelFunc(id)
}

func (g *Gateway) WatchQuery(ctx context.Context, q Query, fn func(QuerySnapshot)) CancelFunc {
	id := g.register(&subscription{queryFn: fn})
	if err := g.write(ctx, frame{Op: "subscribe", ID: id, Query: &q}); err != nil {
		g.log.WithFields(logrus.Fields{"collection": q.Collection, "error": err}).Error("subscribe failed")
	}
	return g.cancelFunc(id)
}

func (g *Gateway) Get(ctx context.Context, path string) (Snapshot, error) {
	reply, err := g.request(ctx, frame{Op: "get", Doc: path})
	if err != nil {
		return Snapshot{}, err
	}
	if reply.Snapshot == nil || !reply.Snapshot.Exists {
		return Snapshot{Exists: false}, ErrNotFound
	}
	return *reply.Snapshot, nil
}

func (g *Gateway) GetQuery(ctx context.Context, q Query) (QuerySnapshot, error) {
	reply, err := g.request(ctx, frame{Op: "get_query", Query: &q})
	if err != nil {
		return QuerySnapshot{}, err
	}
	return QuerySnapshot{Docs: reply.Docs}, nil
}

func (g *Gateway) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	reply, err := g.request(ctx, frame{Op: "create", Collection: collection, Data: data})
	if err != nil {
		return "", err
	}
	return reply.DocID, nil
}

func (g *Gateway) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := g.request(ctx, frame{Op: "update", Doc: path, Fields: fields})
	return err
}

func (g *Gateway) Delete(ctx context.Context, path string) error {
	_, err := g.request(ctx, frame{Op: "delete", Doc: path})
	return err
}

// Close tears down the connection; outstanding requests fail.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}

func (g *Gateway) register(sub *subscription) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := g.nextID
	g.subs[id] = sub
	return id
}

// cancelFunc returns the idempotent unsubscribe handle for id.
func (g *Gateway) cancelFunc(id int64) CancelFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
			ctx, cancel := context.WithTimeout(context.Background(), gatewayWriteTimeout)
			defer cancel()
			_ = g.write(ctx, frame{Op: "unsubscribe", ID: id})
		})
	}
}

// request performs one correlated round-trip.
func (g *Gateway) request(ctx context.Context, f frame) (frame, error) {
	ch := make(chan frame, 1)
	g.mu.Lock()
	g.nextID++
	f.ID = g.nextID
	g.pending[f.ID] = ch
	g.mu.Unlock()

	if err := g.write(ctx, f); err != nil {
		g.mu.Lock()
		delete(g.pending, f.ID)
		g.mu.Unlock()
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, f.ID)
		g.mu.Unlock()
		return frame{}, ctx.Err()
	case reply, ok := <-ch:
		if !ok {
			return frame{}, errors.New("realtime: gateway connection closed")
		}
		if reply.Error != "" {
			if reply.Error == "not found" {
				return frame{}, ErrNotFound
			}
			return frame{}, errors.New("realtime: " + reply.Error)
		}
		return reply, nil
	}
}

func (g *Gateway) write(ctx context.Context, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return errors.New("realtime: not connected")
	}
	wctx, cancel := context.WithTimeout(ctx, gatewayWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
