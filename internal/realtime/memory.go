// internal/realtime/memory.go
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and offline tooling. It
// applies the same field operators as the gateway backend and delivers
// snapshots synchronously in mutation order.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]map[string]any
	nextSub int

	docWatchers   map[string]map[int]func(Snapshot)
	queryWatchers map[int]*queryWatcher

	// Now supplies ServerTimestamp values; overridable in tests.
	Now func() time.Time
}

type queryWatcher struct {
	q  Query
	fn func(QuerySnapshot)
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:          make(map[string]map[string]any),
		docWatchers:   make(map[string]map[int]func(Snapshot)),
		queryWatchers: make(map[int]*queryWatcher),
		Now:           time.Now,
	}
}

// Seed inserts a document at an explicit path, bypassing id generation.
func (m *MemoryStore) Seed(path string, data map[string]any) {
	m.mu.Lock()
	m.docs[path] = normalize(data)
	m.mu.Unlock()
	m.notifyPath(path)
}

func (m *MemoryStore) WatchDoc(ctx context.Context, path string, fn func(Snapshot)) CancelFunc {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	if m.docWatchers[path] == nil {
		m.docWatchers[path] = make(map[int]func(Snapshot))
	}
	m.docWatchers[path][id] = fn
	snap := m.snapshotLocked(path)
	m.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.docWatchers[path], id)
			m.mu.Unlock()
		})
	}
}

func (m *MemoryStore) WatchQuery(ctx context.Context, q Query, fn func(QuerySnapshot)) CancelFunc {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.queryWatchers[id] = &queryWatcher{q: q, fn: fn}
	snap := m.evalQueryLocked(q)
	m.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.queryWatchers, id)
			m.mu.Unlock()
		})
	}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	m.mu.Lock()
	snap := m.snapshotLocked(path)
	m.mu.Unlock()
	if !snap.Exists {
		return snap, ErrNotFound
	}
	return snap, nil
}

func (m *MemoryStore) GetQuery(ctx context.Context, q Query) (QuerySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evalQueryLocked(q), nil
}

func (m *MemoryStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	path := collection + "/" + id
	m.mu.Lock()
	m.docs[path] = m.applyFieldsLocked(map[string]any{}, data)
	m.mu.Unlock()
	m.notifyPath(path)
	return id, nil
}

func (m *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	doc, ok := m.docs[path]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.docs[path] = m.applyFieldsLocked(doc, fields)
	m.mu.Unlock()
	m.notifyPath(path)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	delete(m.docs, path)
	m.mu.Unlock()
	m.notifyPath(path)
	return nil
}

// notifyPath fans the new state out to doc watchers of path and query
// watchers over its collection. Callbacks run outside the lock.
func (m *MemoryStore) notifyPath(path string) {
	m.mu.Lock()
	snap := m.snapshotLocked(path)
	var docFns []func(Snapshot)
	for _, fn := range m.docWatchers[path] {
		docFns = append(docFns, fn)
	}
	type queryNote struct {
		fn   func(QuerySnapshot)
		snap QuerySnapshot
	}
	var queryNotes []queryNote
	collection := parentCollection(path)
	for _, w := range m.queryWatchers {
		if w.q.Collection == collection {
			queryNotes = append(queryNotes, queryNote{fn: w.fn, snap: m.evalQueryLocked(w.q)})
		}
	}
	m.mu.Unlock()

	for _, fn := range docFns {
		fn(snap)
	}
	for _, n := range queryNotes {
		n.fn(n.snap)
	}
}

func (m *MemoryStore) snapshotLocked(path string) Snapshot {
	id := path[strings.LastIndex(path, "/")+1:]
	doc, ok := m.docs[path]
	if !ok {
		return Snapshot{ID: id, Exists: false}
	}
	data, _ := json.Marshal(doc)
	return Snapshot{ID: id, Exists: true, Data: data}
}

func (m *MemoryStore) evalQueryLocked(q Query) QuerySnapshot {
	prefix := q.Collection + "/"
	type row struct {
		id  string
		doc map[string]any
	}
	var rows []row
	for path, doc := range m.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		id := strings.TrimPrefix(path, prefix)
		if strings.Contains(id, "/") {
			continue
		}
		if q.Where != nil && !jsonEqual(doc[q.Where.Field], q.Where.Value) {
			continue
		}
		rows = append(rows, row{id: id, doc: doc})
	}

	sort.Slice(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			a, b := rows[i].doc[q.OrderBy], rows[j].doc[q.OrderBy]
			if cmp := compareValues(a, b); cmp != 0 {
				if q.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		// Stable deterministic tie-break: ascending document id.
		return rows[i].id < rows[j].id
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := QuerySnapshot{}
	for _, r := range rows {
		data, _ := json.Marshal(r.doc)
		out.Docs = append(out.Docs, Snapshot{ID: r.id, Exists: true, Data: data})
	}
	return out
}

// applyFieldsLocked merges plain values and field operators into doc.
func (m *MemoryStore) applyFieldsLocked(doc map[string]any, fields map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+len(fields))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range fields {
		op, ok := v.(fieldOp)
		if !ok {
			out[k] = normalizeValue(v)
			continue
		}
		switch op.Op {
		case "arrayUnion":
			arr, _ := out[k].([]any)
			for _, val := range op.Values {
				nv := normalizeValue(val)
				present := false
				for _, existing := range arr {
					if jsonEqual(existing, nv) {
						present = true
						break
					}
				}
				if !present {
					arr = append(arr, nv)
				}
			}
			out[k] = arr
		case "arrayRemove":
			arr, _ := out[k].([]any)
			var kept []any
			for _, existing := range arr {
				removed := false
				for _, val := range op.Values {
					if jsonEqual(existing, normalizeValue(val)) {
						removed = true
						break
					}
				}
				if !removed {
					kept = append(kept, existing)
				}
			}
			out[k] = kept
		case "increment":
			cur, _ := out[k].(float64)
			out[k] = cur + float64(op.N)
		case "serverTimestamp":
			out[k] = float64(m.Now().Unix())
		case "delete":
			delete(out, k)
		}
	}
	return out
}

func parentCollection(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[:idx]
}

// normalize round-trips a document through JSON so stored values use the
// same shapes the wire format would produce.
func normalize(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	_ = json.Unmarshal(b, &out)
	return out
}

func jsonEqual(a, b any) bool {
	ab, err1 := json.Marshal(normalizeValue(a))
	bb, err2 := json.Marshal(normalizeValue(b))
	return err1 == nil && err2 == nil && bytes.Equal(ab, bb)
}

func compareValues(a, b any) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}
