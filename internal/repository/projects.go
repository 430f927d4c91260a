package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/models"
	"golang.org/x/sync/errgroup"
)

// maxCascadeDeletes bounds the number of concurrent task deletes
const maxCascadeDeletes = 8

// CreateProject inserts a project under customer. A blank name or nil
// customer is skipped and returns "".
func (r *Repository) CreateProject(ctx context.Context, name string, customer *models.Customer) (string, error) {
	if blank(name) || customer == nil || customer.ID == "" {
		return "", nil
	}
	id, err := r.insert(ctx, models.CollectionProjects, docstore.Data{
		models.FieldName:       name,
		models.FieldCustomerID: customer.ID,
		models.FieldClientName: customer.Name,
		models.FieldCreatedAt:  docstore.TimestampOf(r.now()),
	})
	if err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}
	return id, nil
}

// DeleteProject deletes a project and then every task that references it.
//
// The project is first marked as deleting so an interrupted cascade can be
// found and resumed by SweepOrphans. Phase 1 deletes the project document;
// phase 2 queries its tasks and deletes them concurrently, waiting for all of
// them. A failure in phase 2 returns a *CascadeError naming the surviving
// tasks.
func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	err := r.update(ctx, models.CollectionProjects, id, docstore.Data{models.FieldDeleting: true})
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("delete project: %w", err)
	}

	if err := r.delete(ctx, models.CollectionProjects, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	if err := r.deleteProjectTasks(ctx, id); err != nil {
		r.metrics.CascadeFailed()
		r.logger.Printf("project %s deleted but cascade incomplete: %v", id, err)
		return err
	}
	return nil
}

func (r *Repository) deleteProjectTasks(ctx context.Context, projectID string) error {
	docs, err := r.store.Query(ctx, models.CollectionTasks, docstore.Eq(models.FieldProjectID, projectID))
	if err != nil {
		return &CascadeError{ProjectID: projectID, Err: fmt.Errorf("query tasks: %w", err)}
	}

	var (
		mu        sync.Mutex
		survivors []string
		g         errgroup.Group
	)
	g.SetLimit(maxCascadeDeletes)
	for _, doc := range docs {
		taskID := doc.ID
		g.Go(func() error {
			if err := r.delete(ctx, models.CollectionTasks, taskID); err != nil {
				mu.Lock()
				survivors = append(survivors, taskID)
				mu.Unlock()
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		sort.Strings(survivors)
		return &CascadeError{ProjectID: projectID, Survivors: survivors, Err: err}
	}
	return nil
}
