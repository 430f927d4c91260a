package repository

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/metrics"
	"github.com/tgienger/checker/internal/models"
)

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestValidationSkipsWriteNothing(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()
	acme := &models.Customer{ID: "c1", Name: "Acme"}

	for _, name := range []string{"", "   ", "\t\n"} {
		id, err := repo.CreateCustomer(ctx, name)
		if err != nil || id != "" {
			t.Fatalf("CreateCustomer(%q) = %q, %v; want skip", name, id, err)
		}
	}
	if id, err := repo.CreateProject(ctx, "Website", nil); err != nil || id != "" {
		t.Fatalf("CreateProject without customer = %q, %v; want skip", id, err)
	}
	if id, err := repo.CreateProject(ctx, " ", acme); err != nil || id != "" {
		t.Fatalf("CreateProject with blank name = %q, %v; want skip", id, err)
	}
	if id, err := repo.CreateTask(ctx, models.TaskInput{Title: ""}, acme, "p1", nil); err != nil || id != "" {
		t.Fatalf("CreateTask with blank title = %q, %v; want skip", id, err)
	}
	if id, err := repo.CreateTask(ctx, models.TaskInput{Title: "x"}, acme, "", nil); err != nil || id != "" {
		t.Fatalf("CreateTask without project = %q, %v; want skip", id, err)
	}
	if id, err := repo.CreateTask(ctx, models.TaskInput{Title: "x"}, nil, "p1", nil); err != nil || id != "" {
		t.Fatalf("CreateTask without customer = %q, %v; want skip", id, err)
	}

	if n := store.Writes(); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
}

func TestCreateCustomerAllowsDuplicates(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := repo.CreateCustomer(ctx, "Acme"); err != nil {
			t.Fatalf("create customer: %v", err)
		}
	}
	docs := query(t, store, models.CollectionCustomers)
	if len(docs) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(docs))
	}
}

func TestCreateProjectSnapshotsCustomerName(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateProject(ctx, "Website", &models.Customer{ID: "c1", Name: "Acme"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	docs := query(t, store, models.CollectionProjects)
	if len(docs) != 1 || docs[0].ID != id {
		t.Fatalf("expected project %s, got %v", id, docs)
	}
	data := docs[0].Data
	if data.String(models.FieldCustomerID) != "c1" || data.String(models.FieldClientName) != "Acme" {
		t.Fatalf("unexpected project data: %v", data)
	}
	ts, ok := data[models.FieldCreatedAt].(docstore.Timestamp)
	if !ok || !ts.Time().Equal(fixedNow) {
		t.Fatalf("expected createdAt %v, got %v", fixedNow, data[models.FieldCreatedAt])
	}
}

func TestCreateTaskResolvesProjectNameFromCallerList(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()
	acme := &models.Customer{ID: "c1", Name: "Acme"}
	deadline := fixedNow.Add(-24 * time.Hour)
	projects := []models.Project{{ID: "p0", Name: "Other"}, {ID: "p1", Name: "Website"}}

	_, err := repo.CreateTask(ctx, models.TaskInput{Title: "Design homepage", Description: "hero + nav", Deadline: &deadline}, acme, "p1", projects)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	// A stale list leaves the snapshot empty.
	if _, err := repo.CreateTask(ctx, models.TaskInput{Title: "Copy"}, acme, "p2", projects); err != nil {
		t.Fatalf("create task: %v", err)
	}

	docs := query(t, store, models.CollectionTasks, docstore.Eq(models.FieldProjectID, "p1"))
	if len(docs) != 1 {
		t.Fatalf("expected 1 task in p1, got %d", len(docs))
	}
	data := docs[0].Data
	if data.String(models.FieldProjectName) != "Website" || data.String(models.FieldClientName) != "Acme" {
		t.Fatalf("unexpected snapshots: %v", data)
	}
	if data.Bool(models.FieldIsDone) {
		t.Fatalf("expected new task to be not done")
	}
	if data.String(models.FieldDescription) != "hero + nav" {
		t.Fatalf("unexpected description: %v", data)
	}
	if ts, ok := data[models.FieldDeadline].(docstore.Timestamp); !ok || !ts.Time().Equal(deadline) {
		t.Fatalf("expected deadline %v, got %v", deadline, data[models.FieldDeadline])
	}

	stale := query(t, store, models.CollectionTasks, docstore.Eq(models.FieldProjectID, "p2"))
	if got := stale[0].Data.String(models.FieldProjectName); got != "" {
		t.Fatalf("expected empty project name for stale list, got %q", got)
	}
}

func TestDeleteCustomerDoesNotCascade(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	customerID, err := repo.CreateCustomer(ctx, "Acme")
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	acme := &models.Customer{ID: customerID, Name: "Acme"}
	projectID, err := repo.CreateProject(ctx, "Website", acme)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := repo.CreateTask(ctx, models.TaskInput{Title: "t"}, acme, projectID, nil); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := repo.DeleteCustomer(ctx, customerID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}

	if n := len(query(t, store, models.CollectionCustomers)); n != 0 {
		t.Fatalf("expected customer gone, %d left", n)
	}
	if n := len(query(t, store, models.CollectionProjects)); n != 1 {
		t.Fatalf("expected project to survive, got %d", n)
	}
	if n := len(query(t, store, models.CollectionTasks)); n != 1 {
		t.Fatalf("expected task to survive, got %d", n)
	}
}

func TestDeleteProjectCascadesToAllTasks(t *testing.T) {
	for _, n := range []int{0, 1, 5, 20} {
		repo, store := newTestRepo(t)
		ctx := context.Background()
		acme := &models.Customer{ID: "c1", Name: "Acme"}

		target, err := repo.CreateProject(ctx, "Website", acme)
		if err != nil {
			t.Fatalf("create project: %v", err)
		}
		other, err := repo.CreateProject(ctx, "Billing", acme)
		if err != nil {
			t.Fatalf("create project: %v", err)
		}
		for i := 0; i < n; i++ {
			if _, err := repo.CreateTask(ctx, models.TaskInput{Title: "task"}, acme, target, nil); err != nil {
				t.Fatalf("create task: %v", err)
			}
		}
		if _, err := repo.CreateTask(ctx, models.TaskInput{Title: "keep"}, acme, other, nil); err != nil {
			t.Fatalf("create task: %v", err)
		}

		if err := repo.DeleteProject(ctx, target); err != nil {
			t.Fatalf("n=%d: delete project: %v", n, err)
		}

		projects := query(t, store, models.CollectionProjects)
		if len(projects) != 1 || projects[0].ID != other {
			t.Fatalf("n=%d: expected only %s to remain, got %v", n, other, projects)
		}
		if left := query(t, store, models.CollectionTasks, docstore.Eq(models.FieldProjectID, target)); len(left) != 0 {
			t.Fatalf("n=%d: expected no tasks for deleted project, got %d", n, len(left))
		}
		if kept := query(t, store, models.CollectionTasks, docstore.Eq(models.FieldProjectID, other)); len(kept) != 1 {
			t.Fatalf("n=%d: expected other project's task to survive, got %d", n, len(kept))
		}
	}
}

func TestDeleteProjectPartialCascadeFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := docstore.NewMemory()
	t.Cleanup(func() { store.Close() })
	repo := New(store, WithClock(func() time.Time { return fixedNow }), WithLogger(quietLogger()), WithMetrics(m))
	ctx := context.Background()
	acme := &models.Customer{ID: "c1", Name: "Acme"}

	projectID, err := repo.CreateProject(ctx, "Website", acme)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := repo.CreateTask(ctx, models.TaskInput{Title: "task"}, acme, projectID, nil); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}

	rejected := errors.New("delete rejected")
	store.FailNext(docstore.OpDelete, models.CollectionTasks, rejected)

	err = repo.DeleteProject(ctx, projectID)
	if !errors.Is(err, ErrPartialCascade) {
		t.Fatalf("expected partial cascade error, got %v", err)
	}
	if !errors.Is(err, rejected) {
		t.Fatalf("expected cascade error to wrap the store error, got %v", err)
	}
	var cascadeErr *CascadeError
	if !errors.As(err, &cascadeErr) {
		t.Fatalf("expected *CascadeError, got %T", err)
	}
	if cascadeErr.ProjectID != projectID || len(cascadeErr.Survivors) != 1 {
		t.Fatalf("expected 1 survivor of %s, got %+v", projectID, cascadeErr)
	}

	if n := len(query(t, store, models.CollectionProjects)); n != 0 {
		t.Fatalf("expected project to be gone after phase 1, got %d", n)
	}
	left := query(t, store, models.CollectionTasks)
	if len(left) != 1 || left[0].ID != cascadeErr.Survivors[0] {
		t.Fatalf("expected survivor %v to remain, got %v", cascadeErr.Survivors, left)
	}
	if got := testutil.ToFloat64(m.CascadeFailures); got != 1 {
		t.Fatalf("expected cascade failure to be counted, got %v", got)
	}

	report, err := repo.SweepOrphans(ctx, true)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Orphans) != 1 || report.Orphans[0].TaskID != cascadeErr.Survivors[0] || report.Deleted != 1 {
		t.Fatalf("expected sweep to remove the survivor, got %+v", report)
	}
	if n := len(query(t, store, models.CollectionTasks)); n != 0 {
		t.Fatalf("expected no tasks after sweep, got %d", n)
	}
}

func TestDeleteProjectPhaseOneFailureKeepsTasks(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()
	acme := &models.Customer{ID: "c1", Name: "Acme"}

	projectID, err := repo.CreateProject(ctx, "Website", acme)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := repo.CreateTask(ctx, models.TaskInput{Title: "task"}, acme, projectID, nil); err != nil {
		t.Fatalf("create task: %v", err)
	}

	offline := errors.New("offline")
	store.FailNext(docstore.OpDelete, models.CollectionProjects, offline)

	err = repo.DeleteProject(ctx, projectID)
	if !errors.Is(err, offline) {
		t.Fatalf("expected offline error, got %v", err)
	}
	if errors.Is(err, ErrPartialCascade) {
		t.Fatalf("phase 1 failure must not be reported as a partial cascade")
	}
	if n := len(query(t, store, models.CollectionTasks)); n != 1 {
		t.Fatalf("expected task to be untouched, got %d", n)
	}

	// The marker stays set, so the sweep picks the project up.
	report, err := repo.SweepOrphans(ctx, false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Interrupted) != 1 || report.Interrupted[0] != projectID {
		t.Fatalf("expected %s to be reported as interrupted, got %+v", projectID, report)
	}
	if len(report.Orphans) != 1 || report.Deleted != 0 {
		t.Fatalf("expected 1 orphan reported and nothing deleted, got %+v", report)
	}
}

func TestSweepResumesInterruptedDelete(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	store.Put(models.CollectionProjects, "live", docstore.Data{models.FieldName: "Live"})
	store.Put(models.CollectionProjects, "half", docstore.Data{models.FieldName: "Half", models.FieldDeleting: true})
	store.Put(models.CollectionTasks, "t-live", docstore.Data{models.FieldProjectID: "live"})
	store.Put(models.CollectionTasks, "t-half", docstore.Data{models.FieldProjectID: "half"})
	store.Put(models.CollectionTasks, "t-gone", docstore.Data{models.FieldProjectID: "gone"})

	report, err := repo.SweepOrphans(ctx, true)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Deleted != 2 {
		t.Fatalf("expected 2 orphaned tasks deleted, got %+v", report)
	}

	projects := query(t, store, models.CollectionProjects)
	if len(projects) != 1 || projects[0].ID != "live" {
		t.Fatalf("expected only the live project to remain, got %v", projects)
	}
	tasks := query(t, store, models.CollectionTasks)
	if len(tasks) != 1 || tasks[0].ID != "t-live" {
		t.Fatalf("expected only t-live to remain, got %v", tasks)
	}
}

func TestToggleTaskDoneNegatesCallerStatus(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()
	store.Put(models.CollectionTasks, "t1", docstore.Data{models.FieldIsDone: false})

	if err := repo.ToggleTaskDone(ctx, "t1", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !query(t, store, models.CollectionTasks)[0].Data.Bool(models.FieldIsDone) {
		t.Fatalf("expected task to be done")
	}

	// A stale status from the caller wins: last write wins, no compare-and-swap.
	if err := repo.ToggleTaskDone(ctx, "t1", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !query(t, store, models.CollectionTasks)[0].Data.Bool(models.FieldIsDone) {
		t.Fatalf("expected task to stay done after stale toggle")
	}

	if err := repo.ToggleTaskDone(ctx, "missing", false); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
}

func TestWriteFailurePropagates(t *testing.T) {
	repo, store := newTestRepo(t)
	boom := errors.New("unavailable")
	store.FailNext(docstore.OpInsert, models.CollectionCustomers, boom)

	id, err := repo.CreateCustomer(context.Background(), "Acme")
	if !errors.Is(err, boom) || id != "" {
		t.Fatalf("expected wrapped store error, got %q, %v", id, err)
	}
}

func newTestRepo(t *testing.T) (*Repository, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { store.Close() })
	repo := New(store, WithClock(func() time.Time { return fixedNow }), WithLogger(quietLogger()))
	return repo, store
}

func query(t *testing.T, store docstore.Store, collection string, filters ...docstore.Filter) []docstore.Document {
	t.Helper()
	docs, err := store.Query(context.Background(), collection, filters...)
	if err != nil {
		t.Fatalf("query %s: %v", collection, err)
	}
	return docs
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
