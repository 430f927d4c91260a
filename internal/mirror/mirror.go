// Package mirror keeps an in-memory, ordered snapshot of a filtered remote
// collection live through a docstore subscription.
//
// A Mirror owns at most one subscription at a time. Every batch from the
// store replaces the whole snapshot, and each replacement is published as an
// Event on Updates. A subscription error is terminal: the snapshot freezes at
// its last value and the mirror stays failed until Activate is called again.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/metrics"
)

// ErrSubscription wraps the store error that ended a mirror's subscription
var ErrSubscription = errors.New("subscription failed")

var errSubscriptionEnded = errors.New("store ended the subscription")

// Decoder turns a stored document into T, normalizing store-native values
type Decoder[T any] func(doc docstore.Document) (T, error)

// Params selects the mirrored collection, filters and order
type Params struct {
	Collection string
	Filters    []docstore.Filter
	Sort       *docstore.Sort
}

func (p Params) query() docstore.Query {
	return docstore.Query{Filters: p.Filters, Sort: p.Sort}
}

// Change is a decoded document change
type Change[T any] struct {
	Type docstore.ChangeType
	ID   string
	Item T
}

// Event is published after every snapshot replacement. Err is set on the
// final event of a failed subscription; Snapshot then holds the frozen value.
type Event[T any] struct {
	Params   Params
	Snapshot []T
	Changes  []Change[T]
	Err      error
}

// Mirror is a live, ordered cache of one query's results
type Mirror[T any] struct {
	store   docstore.Store
	decode  Decoder[T]
	logger  *log.Logger
	metrics *metrics.Metrics
	updates chan Event[T]

	lifecycle sync.Mutex // serializes Activate and Deactivate
	active    *activation

	mu       sync.RWMutex
	params   Params
	snapshot []T
	ready    bool
	err      error
}

type activation struct {
	params Params
	sub    docstore.Subscription
	stop   chan struct{}
	done   chan struct{}
}

// Option configures a Mirror
type Option func(*options)

type options struct {
	logger  *log.Logger
	metrics *metrics.Metrics
}

// WithLogger sets the logger used for decode failures and subscription errors
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records batches and subscription lifecycle in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates an inactive mirror
func New[T any](store docstore.Store, decode Decoder[T], opts ...Option) *Mirror[T] {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mirror[T]{
		store:   store,
		decode:  decode,
		logger:  o.logger,
		metrics: o.metrics,
		updates: make(chan Event[T]),
	}
}

// Updates delivers an Event for every applied batch. Consumers must keep
// draining it while the mirror is active.
func (m *Mirror[T]) Updates() <-chan Event[T] {
	return m.updates
}

// Activate subscribes with p. If the mirror is already live with equal
// params it does nothing; otherwise the previous subscription is torn down
// before the new one opens. The snapshot is cleared when params change.
func (m *Mirror[T]) Activate(ctx context.Context, p Params) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.active != nil && reflect.DeepEqual(m.active.params, p) && m.Err() == nil {
		return nil
	}
	m.stopLocked()

	sub, err := m.store.Subscribe(ctx, p.Collection, p.query())
	m.retarget(p)
	if err != nil {
		m.setFailed(p, err)
		return m.Err()
	}
	m.metrics.SubscriptionOpened()

	a := &activation{params: p, sub: sub, stop: make(chan struct{}), done: make(chan struct{})}
	m.active = a
	go m.consume(a)
	return nil
}

// retarget points the mirror at p, dropping a snapshot that belongs to other
// params, and clears any earlier failure
func (m *Mirror[T]) retarget(p Params) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !reflect.DeepEqual(m.params, p) {
		m.snapshot = nil
		m.ready = false
	}
	m.params = p
	m.err = nil
}

// Deactivate tears down the current subscription, if any. The snapshot is
// kept until the next Activate with different params.
func (m *Mirror[T]) Deactivate() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.stopLocked()
}

// Active reports whether a subscription is open and healthy
func (m *Mirror[T]) Active() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.active != nil && m.Err() == nil
}

// Snapshot returns a copy of the current ordered snapshot
func (m *Mirror[T]) Snapshot() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

// Ready reports whether the first batch for the current params has arrived
func (m *Mirror[T]) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// IsCurrent reports whether ev was produced for the mirror's current params.
// Events read before a re-activation may arrive late and should be dropped.
func (m *Mirror[T]) IsCurrent(ev Event[T]) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return reflect.DeepEqual(ev.Params, m.params)
}

// Err returns the terminal error of the current activation, or nil
func (m *Mirror[T]) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// stopLocked must be called with m.lifecycle held
func (m *Mirror[T]) stopLocked() {
	a := m.active
	if a == nil {
		return
	}
	m.active = nil
	close(a.stop)
	a.sub.Unsubscribe()
	<-a.done
}

func (m *Mirror[T]) consume(a *activation) {
	defer close(a.done)
	defer m.metrics.SubscriptionClosed()

	for {
		select {
		case <-a.stop:
			return
		case batch, ok := <-a.sub.Changes():
			if !ok {
				select {
				case <-a.stop:
					return
				default:
				}
				// Closed without Unsubscribe: the feed is gone either way.
				err := a.sub.Err()
				if err == nil {
					err = errSubscriptionEnded
				}
				m.setFailed(a.params, err)
				m.publish(a, Event[T]{Params: a.params, Snapshot: m.Snapshot(), Err: m.Err()})
				return
			}
			m.publish(a, m.apply(a.params, batch))
		}
	}
}

func (m *Mirror[T]) publish(a *activation, ev Event[T]) {
	select {
	case m.updates <- ev:
	case <-a.stop:
	}
}

// apply replaces the snapshot with the batch's full result set
func (m *Mirror[T]) apply(p Params, batch docstore.Batch) Event[T] {
	docs := make([]docstore.Document, len(batch.Docs))
	copy(docs, batch.Docs)
	docstore.SortDocuments(docs, p.Sort)

	snapshot := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := m.decode(doc)
		if err != nil {
			m.logger.Printf("mirror %s: skipping document %s: %v", p.Collection, doc.ID, err)
			continue
		}
		snapshot = append(snapshot, item)
	}

	changes := make([]Change[T], 0, len(batch.Changes))
	for _, c := range batch.Changes {
		item, err := m.decode(docstore.Document{ID: c.ID, Data: c.Data})
		if err != nil {
			continue
		}
		changes = append(changes, Change[T]{Type: c.Type, ID: c.ID, Item: item})
	}

	m.mu.Lock()
	m.snapshot = snapshot
	m.ready = true
	m.mu.Unlock()
	m.metrics.MirrorBatch(p.Collection)

	out := make([]T, len(snapshot))
	copy(out, snapshot)
	return Event[T]{Params: p, Snapshot: out, Changes: changes}
}

func (m *Mirror[T]) setFailed(p Params, err error) {
	m.logger.Printf("mirror %s: %v", p.Collection, err)
	m.metrics.MirrorFailed(p.Collection)
	m.mu.Lock()
	m.err = fmt.Errorf("%w: %s: %w", ErrSubscription, p.Collection, err)
	m.mu.Unlock()
}

// Load returns the current ordered snapshot for p without keeping a
// subscription open.
func Load[T any](ctx context.Context, store docstore.Store, decode Decoder[T], p Params, opts ...Option) ([]T, error) {
	m := New(store, decode, opts...)
	if err := m.Activate(ctx, p); err != nil {
		return nil, err
	}
	defer m.Deactivate()

	select {
	case ev := <-m.Updates():
		if ev.Err != nil {
			return nil, ev.Err
		}
		return ev.Snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
