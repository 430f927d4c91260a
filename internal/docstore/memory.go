package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Op names a store operation for fault injection
type Op string

const (
	OpInsert    Op = "insert"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpQuery     Op = "query"
	OpSubscribe Op = "subscribe"
)

type fault struct {
	op         Op
	collection string
	err        error
}

// Memory is an in-process Store. It is the backend for tests and for the
// "memory" backend setting.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Data
	hub         *Hub
	faults      []fault
	writes      int
	closed      bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Data),
		hub:         NewHub(),
	}
}

// FailNext makes the next op on collection return err instead of running
func (m *Memory) FailNext(op Op, collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, fault{op: op, collection: collection, err: err})
}

// FailSubscriptions ends every open subscription with err
func (m *Memory) FailSubscriptions(err error) {
	m.hub.Fail(err)
}

// Writes returns how many writes have been applied
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Subscriptions returns the number of open subscriptions
func (m *Memory) Subscriptions() int {
	return m.hub.Len()
}

// Put stores data under a fixed id, bypassing fault injection. Tests use it
// to seed documents with known ids.
func (m *Memory) Put(collection, id string, data Data) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op := Added
	if _, ok := m.coll(collection)[id]; ok {
		op = Modified
	}
	m.coll(collection)[id] = data.Clone()
	m.hub.Notify(collection, Change{Type: op, ID: id, Data: data.Clone()})
}

func (m *Memory) Subscribe(ctx context.Context, collection string, q Query) (Subscription, error) {
	m.mu.Lock()
	if err := m.check(OpSubscribe, collection); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()
	return m.hub.Subscribe(ctx, collection, q, m.fetch)
}

func (m *Memory) Insert(ctx context.Context, collection string, data Data) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	if err := m.check(OpInsert, collection); err != nil {
		m.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	m.coll(collection)[id] = data.Clone()
	m.writes++
	m.hub.Notify(collection, Change{Type: Added, ID: id, Data: data.Clone()})
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, partial Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.check(OpUpdate, collection); err != nil {
		m.mu.Unlock()
		return err
	}
	existing, ok := m.coll(collection)[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	merged := existing.Clone()
	for k, v := range partial {
		merged[k] = v
	}
	m.coll(collection)[id] = merged
	m.writes++
	m.hub.Notify(collection, Change{Type: Modified, ID: id, Data: merged.Clone()})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.check(OpDelete, collection); err != nil {
		m.mu.Unlock()
		return err
	}
	old, ok := m.coll(collection)[id]
	delete(m.coll(collection), id)
	m.writes++
	if ok {
		m.hub.Notify(collection, Change{Type: Removed, ID: id, Data: old})
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	m.mu.Lock()
	if err := m.check(OpQuery, collection); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()
	return m.fetch(ctx, collection, Query{Filters: filters})
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.hub.Close()
	return nil
}

func (m *Memory) fetch(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	var docs []Document
	for id, data := range m.collections[collection] {
		if q.Matches(data) {
			docs = append(docs, Document{ID: id, Data: data.Clone()})
		}
	}
	SortDocuments(docs, q.Sort)
	return docs, nil
}

// check must be called with m.mu held
func (m *Memory) check(op Op, collection string) error {
	if m.closed {
		return ErrClosed
	}
	for i, f := range m.faults {
		if f.op == op && f.collection == collection {
			m.faults = append(m.faults[:i], m.faults[i+1:]...)
			return f.err
		}
	}
	return nil
}

func (m *Memory) coll(name string) map[string]Data {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Data)
		m.collections[name] = c
	}
	return c
}
