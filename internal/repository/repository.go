// Package repository performs validated writes for customers, projects and
// tasks against the document store, including the project -> task cascade.
//
// Blank or missing required input is not an error: the operation returns
// without writing anything. Every store failure is returned to the caller
// unretried.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/metrics"
)

// ErrPartialCascade matches any *CascadeError
var ErrPartialCascade = errors.New("partial cascade delete")

// CascadeError reports a project delete whose task cleanup did not finish.
// The project document is already gone; Survivors still reference it.
type CascadeError struct {
	ProjectID string
	Survivors []string
	Err       error
}

func (e *CascadeError) Error() string {
	if len(e.Survivors) == 0 {
		return fmt.Sprintf("delete project %s: task cleanup failed: %v", e.ProjectID, e.Err)
	}
	return fmt.Sprintf("delete project %s: %d task(s) left orphaned: %v", e.ProjectID, len(e.Survivors), e.Err)
}

func (e *CascadeError) Is(target error) bool {
	return target == ErrPartialCascade
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

// Repository writes entities to a docstore.Store
type Repository struct {
	store   docstore.Store
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Repository
type Option func(*Repository)

// WithClock overrides time.Now for createdAt stamps
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger sets the logger for write failures
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithMetrics records writes in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// New creates a repository backed by store
func New(store docstore.Store, opts ...Option) *Repository {
	r := &Repository{store: store, now: time.Now, logger: log.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) insert(ctx context.Context, collection string, data docstore.Data) (string, error) {
	id, err := r.store.Insert(ctx, collection, data)
	r.metrics.ObserveWrite("insert", collection, err)
	if err != nil {
		r.logger.Printf("insert %s failed: %v", collection, err)
		return "", err
	}
	return id, nil
}

func (r *Repository) update(ctx context.Context, collection, id string, partial docstore.Data) error {
	err := r.store.Update(ctx, collection, id, partial)
	r.metrics.ObserveWrite("update", collection, err)
	if err != nil {
		r.logger.Printf("update %s/%s failed: %v", collection, id, err)
	}
	return err
}

func (r *Repository) delete(ctx context.Context, collection, id string) error {
	err := r.store.Delete(ctx, collection, id)
	r.metrics.ObserveWrite("delete", collection, err)
	if err != nil {
		r.logger.Printf("delete %s/%s failed: %v", collection, id, err)
	}
	return err
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
