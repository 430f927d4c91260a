package mirror

import (
	"fmt"
	"time"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/models"
)

// CustomerParams mirrors every customer in id order
func CustomerParams() Params {
	return Params{Collection: models.CollectionCustomers}
}

// ProjectParams mirrors a customer's projects, newest first
func ProjectParams(customerID string) Params {
	return Params{
		Collection: models.CollectionProjects,
		Filters:    []docstore.Filter{docstore.Eq(models.FieldCustomerID, customerID)},
		Sort:       &docstore.Sort{Field: models.FieldCreatedAt, Desc: true},
	}
}

// TaskParams mirrors a project's tasks, newest first
func TaskParams(projectID string) Params {
	return Params{
		Collection: models.CollectionTasks,
		Filters:    []docstore.Filter{docstore.Eq(models.FieldProjectID, projectID)},
		Sort:       &docstore.Sort{Field: models.FieldCreatedAt, Desc: true},
	}
}

// DecodeCustomer maps a customers document
func DecodeCustomer(doc docstore.Document) (models.Customer, error) {
	return models.Customer{
		ID:   doc.ID,
		Name: doc.Data.String(models.FieldName),
	}, nil
}

// DecodeProject maps a projects document
func DecodeProject(doc docstore.Document) (models.Project, error) {
	createdAt, _, err := timeField(doc.Data, models.FieldCreatedAt)
	if err != nil {
		return models.Project{}, err
	}
	return models.Project{
		ID:                 doc.ID,
		Name:               doc.Data.String(models.FieldName),
		CustomerID:         doc.Data.String(models.FieldCustomerID),
		ClientNameSnapshot: doc.Data.String(models.FieldClientName),
		CreatedAt:          createdAt,
		Deleting:           doc.Data.Bool(models.FieldDeleting),
	}, nil
}

// DecodeTask maps a tasks document
func DecodeTask(doc docstore.Document) (models.Task, error) {
	createdAt, _, err := timeField(doc.Data, models.FieldCreatedAt)
	if err != nil {
		return models.Task{}, err
	}
	task := models.Task{
		ID:                  doc.ID,
		Title:               doc.Data.String(models.FieldTitle),
		Description:         doc.Data.String(models.FieldDescription),
		IsDone:              doc.Data.Bool(models.FieldIsDone),
		CreatedAt:           createdAt,
		CustomerID:          doc.Data.String(models.FieldCustomerID),
		ProjectID:           doc.Data.String(models.FieldProjectID),
		ClientNameSnapshot:  doc.Data.String(models.FieldClientName),
		ProjectNameSnapshot: doc.Data.String(models.FieldProjectName),
	}

	deadline, ok, err := timeField(doc.Data, models.FieldDeadline)
	if err != nil {
		return models.Task{}, err
	}
	if ok {
		task.Deadline = &deadline
	}
	return task, nil
}

// timeField converts a store-native time value to time.Time. Missing and
// null fields report ok=false.
func timeField(d docstore.Data, key string) (time.Time, bool, error) {
	switch v := d[key].(type) {
	case nil:
		return time.Time{}, false, nil
	case docstore.Timestamp:
		return v.Time(), true, nil
	case time.Time:
		return v, true, nil
	case string:
		if v == "" {
			return time.Time{}, false, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("field %s: %w", key, err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("field %s: unsupported time value %T", key, v)
	}
}
