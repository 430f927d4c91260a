package db

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/tgienger/checker/internal/docstore"
)

// Subscribe opens a live query on a collection
func (db *DB) Subscribe(ctx context.Context, collection string, q docstore.Query) (docstore.Subscription, error) {
	return db.hub.Subscribe(ctx, collection, q, db.fetch)
}

// Insert creates a new document and returns its id
func (db *DB) Insert(ctx context.Context, collection string, data docstore.Data) (string, error) {
	payload, err := docstore.EncodeData(data)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := db.apply(ctx, collection, id, docstore.Added, `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, ?) RETURNING data
	`, collection, id, string(payload)); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges partial into an existing document
func (db *DB) Update(ctx context.Context, collection, id string, partial docstore.Data) error {
	payload, err := docstore.EncodeData(partial)
	if err != nil {
		return err
	}

	found, err := db.apply(ctx, collection, id, docstore.Modified, `
		UPDATE documents SET data = json_patch(data, ?), updated_at = CURRENT_TIMESTAMP
		WHERE collection = ? AND id = ? RETURNING data
	`, string(payload), collection, id)
	if err != nil {
		return err
	}
	if !found {
		return docstore.ErrNotFound
	}
	return nil
}

// Delete deletes a document. Deleting a missing document is a no-op.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	_, err := db.apply(ctx, collection, id, docstore.Removed,
		"DELETE FROM documents WHERE collection = ? AND id = ? RETURNING data", collection, id)
	return err
}

// Query returns the documents in collection matching every filter
func (db *DB) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	return db.fetch(ctx, collection, docstore.Query{Filters: filters})
}

// fetch pushes string equality filters into SQL and applies the rest in Go
func (db *DB) fetch(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	query := "SELECT id, data FROM documents WHERE collection = ?"
	args := []interface{}{collection}

	for _, f := range q.Filters {
		if s, ok := f.Value.(string); ok {
			query += " AND json_extract(data, ?) = ?"
			args = append(args, jsonPath(f.Field), s)
		}
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}
