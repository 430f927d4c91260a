package repository

import (
	"context"
	"fmt"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/models"
)

// CreateCustomer inserts a customer and returns its id. A blank name is
// skipped and returns "". Duplicate names are allowed.
func (r *Repository) CreateCustomer(ctx context.Context, name string) (string, error) {
	if blank(name) {
		return "", nil
	}
	id, err := r.insert(ctx, models.CollectionCustomers, docstore.Data{models.FieldName: name})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// DeleteCustomer deletes the customer document only. Its projects and tasks
// are left in place with a dangling customerId.
//
// TODO: decide whether customer deletion should cascade to projects and tasks.
func (r *Repository) DeleteCustomer(ctx context.Context, id string) error {
	if err := r.delete(ctx, models.CollectionCustomers, id); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}
