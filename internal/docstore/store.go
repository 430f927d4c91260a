// Package docstore defines the boundary to the remote document store: live
// collection subscriptions, one-shot queries and single-document writes.
//
// Implementations live in this package (Memory), internal/db (SQLite) and
// internal/db/postgres. All of them share Hub for change fan-out so that every
// backend delivers the same batch semantics.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when updating a document that does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by operations on a closed store, and is the
	// terminal error of subscriptions that were open when the store closed.
	ErrClosed = errors.New("store closed")
)

// Data is the body of a document. Values are strings, bools, float64 numbers,
// nil or Timestamp.
type Data map[string]any

// Clone returns a shallow copy of d
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String returns the string at key, or "" when absent or not a string
func (d Data) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool returns the bool at key, or false when absent or not a bool
func (d Data) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Document is a stored document with its id
type Document struct {
	ID   string
	Data Data
}

// ChangeType classifies a document change within a batch
type ChangeType int

const (
	Added ChangeType = iota
	Modified
	Removed
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change is one classified document change
type Change struct {
	Type ChangeType
	ID   string
	Data Data
}

// Batch is delivered on every remote change: the full ordered result set of
// the subscribed query plus the changes since the previous batch. The first
// batch of a subscription reports every document as Added.
type Batch struct {
	Docs    []Document
	Changes []Change
}

// Store is the remote store client contract
type Store interface {
	Subscribe(ctx context.Context, collection string, q Query) (Subscription, error)
	Insert(ctx context.Context, collection string, data Data) (string, error)
	Update(ctx context.Context, collection, id string, partial Data) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Close() error
}

// Subscription is a live query. Changes is closed when the subscription ends;
// Err then reports why (nil after Unsubscribe).
type Subscription interface {
	Changes() <-chan Batch
	Err() error
	// Unsubscribe stops delivery and returns once the subscription is torn down.
	Unsubscribe()
}
