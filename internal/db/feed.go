package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tgienger/checker/internal/docstore"
)

var (
	// pollInterval is how often the change log is checked for writes made
	// by other processes
	pollInterval = 100 * time.Millisecond
	// changeRetention bounds how long change log rows are kept
	changeRetention = 10 * time.Minute
)

// apply runs stmt, which must return the written document's data, and logs
// the change in the same transaction. It reports false when stmt matched no
// document.
func (db *DB) apply(ctx context.Context, collection, id string, op docstore.ChangeType, stmt string, args ...any) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
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

	res, err := tx.ExecContext(ctx, `
		INSERT INTO changes (collection, doc_id, op, data) VALUES (?, ?, ?, ?)
	`, collection, id, int(op), raw)
	if err != nil {
		return false, fmt.Errorf("log change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	db.mu.Lock()
	db.own[seq] = struct{}{}
	db.mu.Unlock()
	if err := tx.Commit(); err != nil {
		db.mu.Lock()
		delete(db.own, seq)
		db.mu.Unlock()
		return false, err
	}

	db.hub.Notify(collection, docstore.Change{Type: op, ID: id, Data: data})
	return true, nil
}

// watch polls the change log until ctx ends. A failed poll ends the open
// subscriptions rather than letting them go stale; polling continues so that
// subscriptions opened afterwards recover with the feed.
func (db *DB) watch(ctx context.Context) {
	defer close(db.watching)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastPrune := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := db.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			db.hub.Fail(fmt.Errorf("change feed: %w", err))
			continue
		}
		if time.Since(lastPrune) > changeRetention {
			lastPrune = time.Now()
			_, _ = db.ExecContext(ctx, `DELETE FROM changes WHERE created_at < datetime('now', ?)`,
				fmt.Sprintf("-%d seconds", int(changeRetention.Seconds())))
		}
	}
}

type loggedChange struct {
	seq        int64
	collection string
	change     docstore.Change
}

// poll notifies the hub of every change logged by other handles since the
// last poll
func (db *DB) poll(ctx context.Context) error {
	db.mu.Lock()
	last := db.lastSeq
	db.mu.Unlock()

	rows, err := db.QueryContext(ctx, `
		SELECT seq, collection, doc_id, op, data FROM changes WHERE seq > ? ORDER BY seq
	`, last)
	if err != nil {
		return err
	}
	var logged []loggedChange
	for rows.Next() {
		var (
			lc  loggedChange
			op  int
			raw string
		)
		if err := rows.Scan(&lc.seq, &lc.collection, &lc.change.ID, &op, &raw); err != nil {
			rows.Close()
			return err
		}
		data, err := docstore.DecodeData([]byte(raw))
		if err != nil {
			rows.Close()
			return fmt.Errorf("change %d: %w", lc.seq, err)
		}
		lc.change.Type = docstore.ChangeType(op)
		lc.change.Data = data
		logged = append(logged, lc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, lc := range logged {
		db.mu.Lock()
		_, mine := db.own[lc.seq]
		delete(db.own, lc.seq)
		db.lastSeq = lc.seq
		db.mu.Unlock()
		if !mine {
			db.hub.Notify(lc.collection, lc.change)
		}
	}
	return nil
}
