// Package docstoretest holds the behavioural contract every docstore.Store
// backend must satisfy.
package docstoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tgienger/checker/internal/docstore"
)

// Run exercises store against the shared contract. newStore must return a
// fresh, empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("InsertQueryDelete", func(t *testing.T) {
		testInsertQueryDelete(t, newStore(t))
	})
	t.Run("UpdateMerges", func(t *testing.T) {
		testUpdateMerges(t, newStore(t))
	})
	t.Run("SubscriptionOrdering", func(t *testing.T) {
		testSubscriptionOrdering(t, newStore(t))
	})
	t.Run("TimestampsRoundTrip", func(t *testing.T) {
		testTimestamps(t, newStore(t))
	})
}

// NextBatch waits for the next batch on sub
func NextBatch(t *testing.T, sub docstore.Subscription) docstore.Batch {
	t.Helper()
	select {
	case b, ok := <-sub.Changes():
		if !ok {
			t.Fatalf("subscription closed: %v", sub.Err())
		}
		return b
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for batch")
	}
	return docstore.Batch{}
}

func testInsertQueryDelete(t *testing.T, store docstore.Store) {
	defer store.Close()
	ctx := context.Background()

	id, err := store.Insert(ctx, "tasks", docstore.Data{"projectId": "p1", "title": "a"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Insert(ctx, "tasks", docstore.Data{"projectId": "p2", "title": "b"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	docs, err := store.Query(ctx, "tasks", docstore.Eq("projectId", "p1"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != id {
		t.Fatalf("expected only %s, got %v", id, docs)
	}

	if err := store.Delete(ctx, "tasks", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "tasks", id); err != nil {
		t.Fatalf("delete of missing document should be a no-op, got %v", err)
	}
	docs, err = store.Query(ctx, "tasks", docstore.Eq("projectId", "p1"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents after delete, got %v", docs)
	}
}

func testUpdateMerges(t *testing.T, store docstore.Store) {
	defer store.Close()
	ctx := context.Background()

	id, err := store.Insert(ctx, "tasks", docstore.Data{"title": "a", "isDone": false})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Update(ctx, "tasks", id, docstore.Data{"isDone": true}); err != nil {
		t.Fatalf("update: %v", err)
	}

	docs, err := store.Query(ctx, "tasks")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Data.String("title") != "a" || !docs[0].Data.Bool("isDone") {
		t.Fatalf("expected merged document, got %v", docs[0].Data)
	}

	if err := store.Update(ctx, "tasks", "missing", docstore.Data{"isDone": true}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSubscriptionOrdering(t *testing.T, store docstore.Store) {
	defer store.Close()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sub, err := store.Subscribe(ctx, "projects", docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("customerId", "c1")},
		Sort:    &docstore.Sort{Field: "createdAt", Desc: true},
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if b := NextBatch(t, sub); len(b.Docs) != 0 {
		t.Fatalf("expected empty initial batch, got %v", b.Docs)
	}

	for i, name := range []string{"old", "new"} {
		_, err := store.Insert(ctx, "projects", docstore.Data{
			"name":       name,
			"customerId": "c1",
			"createdAt":  docstore.TimestampOf(base.Add(time.Duration(i) * time.Hour)),
		})
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		var b docstore.Batch
		select {
		case b = <-sub.Changes():
		case <-deadline:
			t.Fatalf("timed out waiting for both projects")
		}
		if len(b.Docs) < 2 {
			continue
		}
		if b.Docs[0].Data.String("name") != "new" || b.Docs[1].Data.String("name") != "old" {
			t.Fatalf("expected newest first, got %v", b.Docs)
		}
		return
	}
}

func testTimestamps(t *testing.T, store docstore.Store) {
	defer store.Close()
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

	if _, err := store.Insert(ctx, "tasks", docstore.Data{"deadline": docstore.TimestampOf(at)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	docs, err := store.Query(ctx, "tasks")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ts, ok := docs[0].Data["deadline"].(docstore.Timestamp)
	if !ok {
		t.Fatalf("expected store-native timestamp, got %T", docs[0].Data["deadline"])
	}
	if !ts.Time().Equal(at) {
		t.Fatalf("expected %v, got %v", at, ts.Time())
	}
}
