package repository

import (
	"context"
	"fmt"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/models"
)

// CreateTask inserts a task under projectID. The project name snapshot is
// looked up in projects, the caller's current list; it is "" if the project is
// not in the list. A blank title or missing customer/project is skipped and
// returns "".
func (r *Repository) CreateTask(ctx context.Context, input models.TaskInput, customer *models.Customer, projectID string, projects []models.Project) (string, error) {
	if blank(input.Title) || customer == nil || customer.ID == "" || projectID == "" {
		return "", nil
	}

	data := docstore.Data{
		models.FieldTitle:       input.Title,
		models.FieldDescription: input.Description,
		models.FieldIsDone:      false,
		models.FieldCreatedAt:   docstore.TimestampOf(r.now()),
		models.FieldCustomerID:  customer.ID,
		models.FieldProjectID:   projectID,
		models.FieldClientName:  customer.Name,
		models.FieldProjectName: projectName(projects, projectID),
	}
	if input.Deadline != nil {
		data[models.FieldDeadline] = docstore.TimestampOf(*input.Deadline)
	}

	id, err := r.insert(ctx, models.CollectionTasks, data)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

// DeleteTask deletes a task
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	if err := r.delete(ctx, models.CollectionTasks, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ToggleTaskDone sets isDone to !current. There is no compare-and-swap:
// concurrent toggles resolve as last write wins.
func (r *Repository) ToggleTaskDone(ctx context.Context, id string, current bool) error {
	if err := r.update(ctx, models.CollectionTasks, id, docstore.Data{models.FieldIsDone: !current}); err != nil {
		return fmt.Errorf("toggle task: %w", err)
	}
	return nil
}

func projectName(projects []models.Project, id string) string {
	for _, p := range projects {
		if p.ID == id {
			return p.Name
		}
	}
	return ""
}
