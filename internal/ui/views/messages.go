package views

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/checker/internal/models"
)

// SelectedCustomer is sent when a customer is opened
type SelectedCustomer struct {
	Customer models.Customer
}

// SelectedProject is sent when a project is opened
type SelectedProject struct {
	Project models.Project
}

// BackToCustomers signals to go back to the customer list
type BackToCustomers struct{}

// BackToProjects signals to go back to the project list
type BackToProjects struct{}

// RetryFeed asks the app to re-open the failed feed of the current view
type RetryFeed struct{}

// WriteResult reports a settled repository call. Views stay busy from the
// moment they issue a write until its result arrives.
type WriteResult struct {
	Op  string
	ID  string
	Err error
}

// write runs fn off the event loop and reports its outcome as a
// WriteResult. There is no timeout: a hung store call keeps the view busy.
func write(op string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		id, err := fn(context.Background())
		return WriteResult{Op: op, ID: id, Err: err}
	}
}

// writeErr adapts an error-only repository call for write
func writeErr(fn func(ctx context.Context) error) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return "", fn(ctx)
	}
}
