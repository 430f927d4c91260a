// Package derived computes facts that are never stored: whether a task is
// overdue, and which task changes are worth a notification.
package derived

import (
	"time"

	"github.com/tgienger/checker/internal/models"
)

// IsOverdue reports whether an open task's deadline has passed. It reads the
// wall clock on every call, so the answer can change without any write.
func IsOverdue(deadline *time.Time, done bool) bool {
	return IsOverdueAt(deadline, done, time.Now())
}

// IsOverdueAt is IsOverdue evaluated at now
func IsOverdueAt(deadline *time.Time, done bool, now time.Time) bool {
	if deadline == nil || done {
		return false
	}
	return deadline.Before(now)
}

// TaskOverdue is IsOverdue for a task
func TaskOverdue(t models.Task) bool {
	return IsOverdue(t.Deadline, t.IsDone)
}
