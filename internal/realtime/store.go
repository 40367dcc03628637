// internal/realtime/store.go
package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get for a missing document.
var ErrNotFound = errors.New("realtime: document not found")

// Snapshot is one observed document state. Exists is false for a deleted or
// never-created document, in which case Data is empty.
type Snapshot struct {
	ID     string          `json:"id"`
	Exists bool            `json:"exists"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the document body into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	return json.Unmarshal(s.Data, v)
}

// QuerySnapshot is the full result set of a watched query, in query order.
type QuerySnapshot struct {
	Docs []Snapshot `json:"docs"`
}

// Where is an equality filter on a single field.
type Where struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Query selects an ordered, limited slice of a collection.
type Query struct {
	Collection string `json:"collection"`
	Where      *Where `json:"where,omitempty"`
	OrderBy    string `json:"orderBy,omitempty"`
	Desc       bool   `json:"desc,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// CancelFunc tears down a subscription. Calling it more than once is a
// no-op.
type CancelFunc func()

// Store is the client-side view of the backend document store: push-based
// snapshots of documents and queries plus mutating calls with field-level
// operators. Updates for a given subscription arrive in server-send order;
// nothing is guaranteed between independent subscriptions.
type Store interface {
	WatchDoc(ctx context.Context, path string, fn func(Snapshot)) CancelFunc
	WatchQuery(ctx context.Context, q Query, fn func(QuerySnapshot)) CancelFunc

	Get(ctx context.Context, path string) (Snapshot, error)
	GetQuery(ctx context.Context, q Query) (QuerySnapshot, error)

	// Create adds a document with a generated id and returns that id.
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	// Update applies field values and operators (ArrayUnion, ArrayRemove,
	// Increment, ServerTimestamp, DeleteField) atomically to one document.
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
}

// fieldOp is the wire form of a field-level operator.
type fieldOp struct {
	Op     string `json:"$op"`
	Values []any  `json:"values,omitempty"`
	N      int64  `json:"n,omitempty"`
}

// ArrayUnion appends values not already present (deep equality).
func ArrayUnion(values ...any) any { return fieldOp{Op: "arrayUnion", Values: values} }

// ArrayRemove removes all occurrences of the given values.
func ArrayRemove(values ...any) any { return fieldOp{Op: "arrayRemove", Values: values} }

// Increment adds n to a numeric field, treating a missing field as zero.
func Increment(n int64) any { return fieldOp{Op: "increment", N: n} }

// ServerTimestamp writes the store's own clock as epoch seconds.
func ServerTimestamp() any { return fieldOp{Op: "serverTimestamp"} }

// DeleteField removes the field from the document.
func DeleteField() any { return fieldOp{Op: "delete"} }
