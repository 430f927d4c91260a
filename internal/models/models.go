package models

import (
	"fmt"
	"strings"
	"time"
)

// Collection names in the document store
const (
	CollectionCustomers = "customers"
	CollectionProjects  = "projects"
	CollectionTasks     = "tasks"
)

// Document field names shared by the repository and the mirror decoders
const (
	FieldName        = "name"
	FieldCustomerID  = "customerId"
	FieldProjectID   = "projectId"
	FieldClientName  = "clientName"
	FieldProjectName = "project"
	FieldCreatedAt   = "createdAt"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldIsDone      = "isDone"
	FieldDeadline    = "deadline"
	FieldDeleting    = "deleting"
)

// Role is the observing user's role. It is passed in, never verified.
type Role string

const (
	RoleTeamLead Role = "TeamLead"
	RoleCreator  Role = "Creator"
)

// ParseRole accepts a role name case-insensitively
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "teamlead", "team-lead", "lead":
		return RoleTeamLead, nil
	case "creator":
		return RoleCreator, nil
	}
	return "", fmt.Errorf("unknown role %q (want TeamLead or Creator)", s)
}

// Customer is the root entity; it owns projects
type Customer struct {
	ID   string
	Name string
}

// Project belongs to a customer and owns tasks
type Project struct {
	ID         string
	Name       string
	CustomerID string
	// ClientNameSnapshot is the customer's name at creation time. It is not
	// updated when the customer is renamed.
	ClientNameSnapshot string
	CreatedAt          time.Time
	// Deleting is set while a cascading delete is in flight
	Deleting bool
}

// Task is a unit of work under a project
type Task struct {
	ID                  string
	Title               string
	Description         string
	IsDone              bool
	CreatedAt           time.Time
	Deadline            *time.Time // nil when no deadline was set
	CustomerID          string
	ProjectID           string
	ClientNameSnapshot  string
	ProjectNameSnapshot string
}

// TaskInput holds the user-supplied fields for a new task
type TaskInput struct {
	Title       string
	Description string
	Deadline    *time.Time
}

// Notification describes a task that another observer should hear about
type Notification struct {
	ClientName  string
	Title       string
	ProjectName string
}

// Body returns the notification text shown under the client name
func (n Notification) Body() string {
	if n.ProjectName == "" {
		return n.Title + " marked done!"
	}
	return n.Title + " " + n.ProjectName + " marked done!"
}

// DeadlineLayout is the date format accepted for deadlines
const DeadlineLayout = "2006-01-02"

// ParseDeadline parses a YYYY-MM-DD date as midnight UTC. An empty string
// means no deadline.
func ParseDeadline(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DeadlineLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}
