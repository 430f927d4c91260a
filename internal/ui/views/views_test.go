package views

import (
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/models"
	"github.com/tgienger/checker/internal/repository"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m tea.Model, text string) {
	for _, r := range text {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func testRepo(t *testing.T) (*repository.Repository, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { store.Close() })
	return repository.New(store, repository.WithLogger(log.New(io.Discard, "", 0))), store
}

func TestCustomerListRoleGating(t *testing.T) {
	repo, _ := testRepo(t)
	customers := []models.Customer{{ID: "c1", Name: "Acme"}}

	lead := NewCustomerListView(repo, models.RoleTeamLead)
	lead.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	lead.SetCustomers(customers, "c1")
	lead.Update(keyMsg("n"))
	if !strings.Contains(lead.View(), "New Customer") {
		t.Fatalf("team lead cannot open the customer form")
	}

	creator := NewCustomerListView(repo, models.RoleCreator)
	creator.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	creator.SetCustomers(customers, "c1")
	creator.Update(keyMsg("n"))
	if strings.Contains(creator.View(), "New Customer") {
		t.Fatalf("creator opened the customer form")
	}
	creator.Update(keyMsg("d"))
	if strings.Contains(creator.View(), "Delete Customer?") {
		t.Fatalf("creator opened the delete confirmation")
	}
}

func TestCustomerCreateIssuesWrite(t *testing.T) {
	repo, store := testRepo(t)
	v := NewCustomerListView(repo, models.RoleTeamLead)
	v.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	v.SetCustomers(nil, "")

	v.Update(keyMsg("n"))
	typeText(v, "Acme")
	_, cmd := v.Update(keyMsg("enter"))
	if cmd == nil {
		t.Fatalf("expected a write command")
	}
	if !v.Busy() {
		t.Fatalf("view not busy while write is pending")
	}

	res, ok := cmd().(WriteResult)
	if !ok || res.Err != nil || res.ID == "" {
		t.Fatalf("write result = %+v", res)
	}
	v.Update(res)
	if v.Busy() {
		t.Fatalf("view still busy after result")
	}
	if store.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", store.Writes())
	}
}

func TestCustomerCreateBlankIsSkipped(t *testing.T) {
	repo, store := testRepo(t)
	v := NewCustomerListView(repo, models.RoleTeamLead)
	v.SetCustomers(nil, "")

	v.Update(keyMsg("n"))
	typeText(v, "   ")
	if _, cmd := v.Update(keyMsg("enter")); cmd != nil {
		t.Fatalf("blank name issued a command")
	}
	if store.Writes() != 0 {
		t.Fatalf("writes = %d, want 0", store.Writes())
	}
}

func TestProjectDeleteOnlyForTeamLead(t *testing.T) {
	repo, _ := testRepo(t)
	projects := []models.Project{{ID: "p1", Name: "Website", CustomerID: "c1"}}

	creator := NewProjectListView(repo, models.RoleCreator, models.Customer{ID: "c1", Name: "Acme"})
	creator.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	creator.SetProjects(projects)
	creator.Update(keyMsg("d"))
	if strings.Contains(creator.View(), "Delete Project?") {
		t.Fatalf("creator opened the project delete confirmation")
	}

	lead := NewProjectListView(repo, models.RoleTeamLead, models.Customer{ID: "c1", Name: "Acme"})
	lead.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	lead.SetProjects(projects)
	lead.Update(keyMsg("d"))
	if !strings.Contains(lead.View(), "Delete Project?") {
		t.Fatalf("team lead cannot delete a project")
	}
	_, cmd := lead.Update(keyMsg("y"))
	if cmd == nil {
		t.Fatalf("confirming did not issue the delete")
	}
	if res, ok := cmd().(ProjectDeleted); !ok || res.ID != "p1" || res.Err != nil {
		t.Fatalf("delete result = %+v", res)
	}
}

func TestTaskFormCreatesTaskWithDeadline(t *testing.T) {
	repo, store := testRepo(t)
	customer := models.Customer{ID: "c1", Name: "Acme"}
	project := models.Project{ID: "p1", Name: "Website", CustomerID: "c1"}

	v := NewTaskListView(repo, customer, project)
	v.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	v.SetProjects([]models.Project{project})
	v.SetTasks(nil)

	v.Update(keyMsg("n"))
	typeText(v, "Design homepage")
	v.Update(keyMsg("tab"))
	typeText(v, "Use the *new* palette")
	v.Update(keyMsg("tab"))
	typeText(v, "2024-05-10")
	_, cmd := v.Update(keyMsg("ctrl+s"))
	if cmd == nil {
		t.Fatalf("save did not issue a write")
	}
	if res := cmd().(WriteResult); res.Err != nil {
		t.Fatalf("create task: %v", res.Err)
	}

	docs, err := store.Query(t.Context(), models.CollectionTasks)
	if err != nil || len(docs) != 1 {
		t.Fatalf("tasks = %v, %v", docs, err)
	}
	d := docs[0].Data
	if d.String(models.FieldProjectName) != "Website" || d.String(models.FieldClientName) != "Acme" {
		t.Fatalf("snapshots = %v", d)
	}
	ts, ok := d[models.FieldDeadline].(docstore.Timestamp)
	if !ok || !ts.Time().Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("deadline = %v", d[models.FieldDeadline])
	}
}

func TestTaskFormRejectsBadDeadline(t *testing.T) {
	repo, store := testRepo(t)
	v := NewTaskListView(repo, models.Customer{ID: "c1", Name: "Acme"}, models.Project{ID: "p1", Name: "Website"})
	v.Update(tea.WindowSizeMsg{Width: 80, Height: 30})

	v.Update(keyMsg("n"))
	typeText(v, "Design homepage")
	v.Update(keyMsg("tab"))
	v.Update(keyMsg("tab"))
	typeText(v, "tomorrow")
	if _, cmd := v.Update(keyMsg("ctrl+s")); cmd != nil {
		t.Fatalf("bad deadline issued a write")
	}
	if !strings.Contains(v.View(), "invalid deadline") {
		t.Fatalf("form does not show the deadline error")
	}
	if store.Writes() != 0 {
		t.Fatalf("writes = %d, want 0", store.Writes())
	}
}

func TestTaskListMarksOverdue(t *testing.T) {
	repo, _ := testRepo(t)
	v := NewTaskListView(repo, models.Customer{ID: "c1", Name: "Acme"}, models.Project{ID: "p1", Name: "Website"})
	v.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	yesterday := time.Now().Add(-24 * time.Hour)
	v.SetTasks([]models.Task{
		{ID: "t1", Title: "Design homepage", Deadline: &yesterday},
		{ID: "t2", Title: "Ship it", Deadline: &yesterday, IsDone: true},
	})
	out := v.View()
	if strings.Count(out, "(overdue)") != 1 {
		t.Fatalf("expected exactly one overdue marker:\n%s", out)
	}
	if !strings.Contains(out, "1 overdue") {
		t.Fatalf("header does not count overdue tasks:\n%s", out)
	}
}

func TestTaskToggleUsesLastKnownStatus(t *testing.T) {
	repo, store := testRepo(t)
	store.Put(models.CollectionTasks, "t1", docstore.Data{models.FieldTitle: "Design homepage", models.FieldIsDone: false})

	v := NewTaskListView(repo, models.Customer{ID: "c1", Name: "Acme"}, models.Project{ID: "p1", Name: "Website"})
	v.SetTasks([]models.Task{{ID: "t1", Title: "Design homepage"}})

	_, cmd := v.Update(keyMsg(" "))
	if cmd == nil {
		t.Fatalf("toggle did not issue a write")
	}
	// a second toggle is ignored while the first is in flight
	if _, again := v.Update(keyMsg(" ")); again != nil {
		t.Fatalf("toggle issued while busy")
	}
	if res := cmd().(WriteResult); res.Err != nil {
		t.Fatalf("toggle: %v", res.Err)
	}
	docs, _ := store.Query(t.Context(), models.CollectionTasks)
	if !docs[0].Data.Bool(models.FieldIsDone) {
		t.Fatalf("task not marked done")
	}
}

func TestDescribeDeleteError(t *testing.T) {
	err := &repository.CascadeError{ProjectID: "p1", Survivors: []string{"t1", "t2"}, Err: errors.New("offline")}
	if got := DescribeDeleteError(err); !strings.Contains(got, "2 task(s) remain") {
		t.Fatalf("message = %q", got)
	}
}
