package postgres

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/docstore/docstoretest"
)

func TestBuildSelectPushesStringFilters(t *testing.T) {
	query, args := buildSelect("tasks", []docstore.Filter{
		docstore.Eq("projectId", "p1"),
		docstore.Eq("isDone", true),
		docstore.Eq("customerId", "c1"),
	})

	wantQuery := "SELECT id, data::text FROM documents WHERE collection = $1 AND data->>$2 = $3 AND data->>$4 = $5"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	wantArgs := []any{"tasks", "projectId", "p1", "customerId", "c1"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("unexpected args: want %v, got %v", wantArgs, args)
	}
}

func TestBuildSelectWithoutFilters(t *testing.T) {
	query, args := buildSelect("customers", nil)
	if query != "SELECT id, data::text FROM documents WHERE collection = $1" {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 1 {
		t.Fatalf("expected only the collection arg, got %v", args)
	}
}

func TestPostgresContract(t *testing.T) {
	dsn := testDSN(t)
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		store := openClean(t, dsn)
		return store
	})
}

func TestChangesFromAnotherClientArriveLive(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	watcher := openClean(t, dsn)
	defer watcher.Close()
	writer, err := Open(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer writer.Close()

	sub, err := watcher.Subscribe(ctx, "customers", docstore.Query{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	docstoretest.NextBatch(t, sub)

	// Give the listener a moment to issue LISTEN before the write commits.
	time.Sleep(200 * time.Millisecond)
	if _, err := writer.Insert(ctx, "customers", docstore.Data{"name": "Acme"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	b := docstoretest.NextBatch(t, sub)
	if len(b.Docs) != 1 || b.Docs[0].Data.String("name") != "Acme" {
		t.Fatalf("expected Acme from the other client, got %v", b.Docs)
	}
}

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CHECKER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHECKER_TEST_POSTGRES_DSN not set")
	}
	return dsn
}

func openClean(t *testing.T, dsn string) *Store {
	t.Helper()
	store, err := Open(context.Background(), dsn, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.DB().Exec("TRUNCATE documents"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store
}
