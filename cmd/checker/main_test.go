package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rogpeppe/go-internal/testscript"

	"github.com/tgienger/checker/internal/config"
	"github.com/tgienger/checker/internal/db"
	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/metrics"
	"github.com/tgienger/checker/internal/models"
	"github.com/tgienger/checker/internal/repository"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"checker": run,
	}))
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: filepath.Join("testdata", "script"),
		Setup: func(env *testscript.Env) error {
			env.Setenv("HOME", filepath.Join(env.WorkDir, "home"))
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, "config"))
			env.Setenv("XDG_DATA_HOME", filepath.Join(env.WorkDir, "data"))
			env.Setenv("XDG_STATE_HOME", filepath.Join(env.WorkDir, "state"))
			return nil
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"envset":       cmdEnvSet,
			"rawdelete":    cmdRawDelete,
			"markdeleting": cmdMarkDeleting,
		},
	})
}

// cmdEnvSet stores the trimmed contents of a file in an env var
func cmdEnvSet(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("envset does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: envset VAR FILE")
	}
	ts.Setenv(args[0], strings.TrimSpace(ts.ReadFile(args[1])))
}

// scriptDB opens the sqlite database the script's checker commands use
func scriptDB(ts *testscript.TestScript) *db.DB {
	database, err := db.New(filepath.Join(ts.Getenv("XDG_DATA_HOME"), "checker", "checker.db"))
	ts.Check(err)
	return database
}

// cmdRawDelete deletes a document without any cascade
func cmdRawDelete(ts *testscript.TestScript, neg bool, args []string) {
	if neg || len(args) != 2 {
		ts.Fatalf("usage: rawdelete COLLECTION ID")
	}
	database := scriptDB(ts)
	defer database.Close()
	ts.Check(database.Delete(context.Background(), args[0], args[1]))
}

// cmdMarkDeleting sets a project's deleting marker
func cmdMarkDeleting(ts *testscript.TestScript, neg bool, args []string) {
	if neg || len(args) != 1 {
		ts.Fatalf("usage: markdeleting PROJECT")
	}
	database := scriptDB(ts)
	defer database.Close()
	ts.Check(database.Update(context.Background(), models.CollectionProjects, args[0], docstore.Data{models.FieldDeleting: true}))
}

// syncBuffer guards a bytes.Buffer written by the watch loop
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEnv(t *testing.T, role models.Role) *env {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := log.New(io.Discard, "", 0)
	return &env{
		cfg:      config.Default(),
		role:     role,
		logger:   logger,
		store:    store,
		registry: reg,
		metrics:  m,
		repo:     repository.New(store, repository.WithLogger(logger), repository.WithMetrics(m)),
	}
}

func TestRunWatchPrintsCompletedTasks(t *testing.T) {
	e := newTestEnv(t, models.RoleTeamLead)
	ctx := t.Context()

	customerID, err := e.repo.CreateCustomer(ctx, "Acme")
	if err != nil {
		t.Fatalf("CreateCustomer() error = %v", err)
	}
	customer := &models.Customer{ID: customerID, Name: "Acme"}
	projectID, err := e.repo.CreateProject(ctx, "Website", customer)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	projects := []models.Project{{ID: projectID, Name: "Website", CustomerID: customerID}}
	taskID, err := e.repo.CreateTask(ctx, models.TaskInput{Title: "Design homepage"}, customer, projectID, projects)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := &syncBuffer{}
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- runWatch(watchCtx, e, projectID, out, func() { close(ready) })
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watch never delivered its first batch")
	}
	if got := out.String(); got != "" {
		t.Fatalf("initial batch printed %q, want nothing", got)
	}

	if err := e.repo.ToggleTaskDone(ctx, taskID, false); err != nil {
		t.Fatalf("ToggleTaskDone() error = %v", err)
	}

	want := "Acme\nDesign homepage Website marked done!\n"
	deadline := time.Now().Add(5 * time.Second)
	for out.String() != want {
		if time.Now().After(deadline) {
			t.Fatalf("watch output = %q, want %q", out.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runWatch() error = %v", err)
	}
	if got := testutil.ToFloat64(e.metrics.Notifications); got != 1 {
		t.Errorf("notifications metric = %v, want 1", got)
	}
}

func TestRunWatchReturnsSubscriptionError(t *testing.T) {
	e := newTestEnv(t, models.RoleTeamLead)
	mem := e.store.(*docstore.Memory)
	mem.FailNext(docstore.OpSubscribe, models.CollectionTasks, docstore.ErrClosed)

	err := runWatch(t.Context(), e, "p1", io.Discard, nil)
	if err == nil {
		t.Fatal("runWatch() error = nil, want subscription error")
	}
}

func TestFormatTaskTable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	got := formatTaskTable([]models.Task{
		{ID: "t1", Title: "Late", Deadline: &past},
		{ID: "t2", Title: "Shipped", Deadline: &past, IsDone: true},
		{ID: "t3", Title: "Later", Deadline: &future},
		{ID: "t4", Title: "Whenever"},
	}, now)

	want := "" +
		"ID  STATUS   DEADLINE    TITLE\n" +
		"t1  overdue  2026-03-01  Late\n" +
		"t2  done     2026-03-01  Shipped\n" +
		"t3  open     2026-04-01  Later\n" +
		"t4  open     -           Whenever\n"
	if got != want {
		t.Errorf("formatTaskTable() =\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatSweepReport(t *testing.T) {
	clean := formatSweepReport(repository.SweepReport{}, false)
	if clean != "No problems found.\n" {
		t.Errorf("clean report = %q", clean)
	}

	report := repository.SweepReport{
		Interrupted: []string{"p2"},
		Orphans:     []repository.Orphan{{TaskID: "t1", Title: "Copy", ProjectID: "p1"}},
		Deleted:     1,
	}
	got := formatSweepReport(report, true)
	for _, want := range []string{"interrupted delete: project p2", "t1", "Copy", "Deleted 1 orphaned task(s)."} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}
