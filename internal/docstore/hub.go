package docstore

import (
	"context"
	"errors"
	"sync"
)

// FetchFunc runs a query against the backing store
type FetchFunc func(ctx context.Context, collection string, q Query) ([]Document, error)

var errUnsubscribed = errors.New("unsubscribed")

// Hub fans collection change notifications out to live subscriptions. Each
// subscription re-runs its query when its collection is touched and delivers
// a batch if the result set changed. Writes reported with their Change are
// replayed one by one, so a document that flips several times between two
// fetches yields one Modified change per flip.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// Subscribe opens a subscription whose results come from fetch. The initial
// batch is delivered as soon as the first fetch completes.
func (h *Hub) Subscribe(ctx context.Context, collection string, q Query, fetch FetchFunc) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancelCause(ctx)
	s := &subscription{
		hub:        h,
		ctx:        subCtx,
		cancel:     cancel,
		collection: collection,
		query:      q,
		fetch:      fetch,
		kick:       make(chan struct{}, 1),
		changes:    make(chan Batch),
		done:       make(chan struct{}),
	}
	h.subs[s] = struct{}{}
	go s.run()
	return s, nil
}

// Notify tells every subscription on collection to re-query. changes are the
// writes that caused it, in commit order, each carrying the document state
// after the write (the last state for Removed). Without changes the
// subscription falls back to diffing the re-fetched result set.
func (h *Hub) Notify(collection string, changes ...Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.collection != collection {
			continue
		}
		if len(changes) > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, changes...)
			s.mu.Unlock()
		}
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Fail ends every open subscription with err
func (h *Hub) Fail(err error) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.cancel(err)
	}
}

// Len returns the number of open subscriptions
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription with ErrClosed and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Fail(ErrClosed)
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

type subscription struct {
	hub        *Hub
	ctx        context.Context
	cancel     context.CancelCauseFunc
	collection string
	query      Query
	fetch      FetchFunc

	mu      sync.Mutex
	pending []Change

	kick    chan struct{}
	changes chan Batch
	done    chan struct{}
	err     error
}

func (s *subscription) Changes() <-chan Batch { return s.changes }

// Err is only meaningful once Changes has been closed
func (s *subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *subscription) Unsubscribe() {
	s.cancel(errUnsubscribed)
	<-s.done
}

func (s *subscription) run() {
	defer func() {
		s.hub.remove(s)
		close(s.done)
		close(s.changes)
	}()

	var prev []Document
	first := true
	for {
		// Writes that land after this point are either in the fetch or
		// replayed next round; replay skips the ones already seen.
		pending := s.drain()
		docs, err := s.fetch(s.ctx, s.collection, s.query)
		if s.ctx.Err() != nil {
			s.finish(nil)
			return
		}
		if err != nil {
			s.finish(err)
			return
		}

		changes := replay(prev, pending, s.query, docs)
		if first || len(changes) > 0 {
			select {
			case s.changes <- Batch{Docs: docs, Changes: changes}:
			case <-s.ctx.Done():
				s.finish(nil)
				return
			}
		}
		prev, first = docs, false

		select {
		case <-s.kick:
		case <-s.ctx.Done():
			s.finish(nil)
			return
		}
	}
}

func (s *subscription) drain() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	return pending
}

// finish records the terminal error. A nil err means the context ended, in
// which case the cancellation cause decides.
func (s *subscription) finish(err error) {
	if err == nil {
		if cause := context.Cause(s.ctx); !errors.Is(cause, errUnsubscribed) {
			err = cause
		}
	}
	s.err = err
}
