package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/tgienger/checker/internal/models"
)

// Orphan is a task whose project no longer exists or is mid-delete
type Orphan struct {
	TaskID    string
	Title     string
	ProjectID string
}

// SweepReport lists what SweepOrphans found and, with fix, removed
type SweepReport struct {
	// Interrupted lists projects still marked as deleting
	Interrupted []string
	Orphans     []Orphan
	Deleted     int
}

// SweepOrphans finds tasks left behind by incomplete project deletes. With
// fix set it resumes interrupted project deletes and removes the orphaned
// tasks. It is an operator action and never runs on its own.
func (r *Repository) SweepOrphans(ctx context.Context, fix bool) (SweepReport, error) {
	var report SweepReport

	projects, err := r.store.Query(ctx, models.CollectionProjects)
	if err != nil {
		return report, fmt.Errorf("list projects: %w", err)
	}
	live := make(map[string]struct{}, len(projects))
	for _, p := range projects {
		if p.Data.Bool(models.FieldDeleting) {
			report.Interrupted = append(report.Interrupted, p.ID)
			continue
		}
		live[p.ID] = struct{}{}
	}

	tasks, err := r.store.Query(ctx, models.CollectionTasks)
	if err != nil {
		return report, fmt.Errorf("list tasks: %w", err)
	}
	for _, t := range tasks {
		projectID := t.Data.String(models.FieldProjectID)
		if _, ok := live[projectID]; ok {
			continue
		}
		report.Orphans = append(report.Orphans, Orphan{
			TaskID:    t.ID,
			Title:     t.Data.String(models.FieldTitle),
			ProjectID: projectID,
		})
	}
	sort.Slice(report.Orphans, func(i, j int) bool {
		if report.Orphans[i].ProjectID != report.Orphans[j].ProjectID {
			return report.Orphans[i].ProjectID < report.Orphans[j].ProjectID
		}
		return report.Orphans[i].TaskID < report.Orphans[j].TaskID
	})

	if !fix {
		return report, nil
	}

	for _, id := range report.Interrupted {
		if err := r.delete(ctx, models.CollectionProjects, id); err != nil {
			return report, fmt.Errorf("resume delete of project %s: %w", id, err)
		}
	}
	for _, o := range report.Orphans {
		if err := r.delete(ctx, models.CollectionTasks, o.TaskID); err != nil {
			return report, fmt.Errorf("delete orphaned task %s: %w", o.TaskID, err)
		}
		report.Deleted++
	}
	return report, nil
}
