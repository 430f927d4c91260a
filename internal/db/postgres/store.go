// Package postgres provides a Postgres-backed document store shared by several
// clients. Writes publish the touched collection on a LISTEN/NOTIFY channel so
// that subscriptions in every connected process re-query.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib" // registers pgx as a database/sql driver
	"github.com/tgienger/checker/internal/docstore"
)

var _ docstore.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/checker?sslmode=disable"
	notifyChannel = "checker_changes"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

// Store implements docstore.Store on Postgres
type Store struct {
	db     *sql.DB
	hub    *docstore.Hub
	logger *log.Logger

	cancel    context.CancelFunc
	listening chan struct{}
}

// Open connects to dsn (falls back to defaultDSN), ensures the documents table
// exists and starts the change-feed listener.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if logger == nil {
		logger = log.Default()
	}

	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:        db,
		hub:       docstore.NewHub(),
		logger:    logger,
		cancel:    cancel,
		listening: make(chan struct{}),
	}
	go s.listen(listenCtx)
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Subscribe(ctx context.Context, collection string, q docstore.Query) (docstore.Subscription, error) {
	return s.hub.Subscribe(ctx, collection, q, s.fetch)
}

func (s *Store) Insert(ctx context.Context, collection string, data docstore.Data) (string, error) {
	payload, err := docstore.EncodeData(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := s.write(ctx, collection, id, docstore.Added,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb) RETURNING data::text`,
		collection, id, string(payload)); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial docstore.Data) error {
	payload, err := docstore.EncodeData(partial)
	if err != nil {
		return err
	}
	ok, err := s.write(ctx, collection, id, docstore.Modified,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2 RETURNING data::text`,
		collection, id, string(payload))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if !ok {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.write(ctx, collection, id, docstore.Removed,
		`DELETE FROM documents WHERE collection = $1 AND id = $2 RETURNING data::text`,
		collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	return s.fetch(ctx, collection, docstore.Query{Filters: filters})
}

// Close stops the listener, ends subscriptions and closes the pool
func (s *Store) Close() error {
	s.cancel()
	<-s.listening
	s.hub.Close()
	return s.db.Close()
}

// write runs stmt, which must return the row's data, and publishes collection
// in the same transaction so the notification is only delivered if the write
// commits. It reports false when stmt touched no row.
func (s *Store) write(ctx context.Context, collection, id string, op docstore.ChangeType, stmt string, args ...any) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, stmt, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	data, err := docstore.DecodeData([]byte(raw))
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		return false, fmt.Errorf("notify: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	// Other clients only learn the collection and fall back to a diff.
	s.hub.Notify(collection, docstore.Change{Type: op, ID: id, Data: data})
	return true, nil
}

func (s *Store) fetch(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	query, args := buildSelect(collection, q.Filters)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []docstore.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		data, err := docstore.DecodeData([]byte(raw))
		if err != nil {
			return nil, err
		}
		if q.Matches(data) {
			docs = append(docs, docstore.Document{ID: id, Data: data})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docstore.SortDocuments(docs, q.Sort)
	return docs, nil
}

// buildSelect pushes string equality filters into SQL. Other filters are
// applied by Query.Matches after decoding.
func buildSelect(collection string, filters []docstore.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT id, data::text FROM documents WHERE collection = $1")
	args := []any{collection}
	for _, f := range filters {
		s, ok := f.Value.(string)
		if !ok {
			continue
		}
		args = append(args, f.Field, s)
		fmt.Fprintf(&b, " AND data->>$%d = $%d", len(args)-1, len(args))
	}
	return b.String(), args
}

// listen holds one dedicated connection in LISTEN mode and turns every
// notification into a Hub.Notify. If the feed breaks, open subscriptions fail
// rather than silently going stale.
func (s *Store) listen(ctx context.Context) {
	defer close(s.listening)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.feedFailed(ctx, err)
		return
	}
	defer func() { _ = conn.Close() }()

	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		pc := sc.Conn()
		if _, err := pc.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		for {
			n, err := pc.WaitForNotification(ctx)
			if err != nil {
				return err
			}
			s.hub.Notify(n.Payload)
		}
	})
	s.feedFailed(ctx, err)
}

func (s *Store) feedFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Printf("postgres change feed stopped: %v", err)
	s.hub.Fail(fmt.Errorf("change feed: %w", err))
}
