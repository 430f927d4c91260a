package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/checker/internal/derived"
	"github.com/tgienger/checker/internal/models"
	"github.com/tgienger/checker/internal/repository"
	"github.com/tgienger/checker/internal/ui/keys"
	"github.com/tgienger/checker/internal/ui/styles"
)

// edit form focus order
const (
	focusTitle = iota
	focusDesc
	focusDeadline
	focusSave
	focusCount
)

// TaskListView shows the tasks of one project
type TaskListView struct {
	repo     *repository.Repository
	customer models.Customer
	project  models.Project
	projects []models.Project
	tasks    []models.Task
	styles   *styles.Styles
	keys     keys.KeyMap

	width  int
	height int

	loaded  bool
	busy    bool
	cursor  int
	scrollY int

	// Task creation
	creating     bool
	editTitle    textinput.Model
	editDesc     textarea.Model
	editDeadline textinput.Model
	editFocusIdx int
	formErr      string

	// Read-only detail view
	viewingTask bool

	confirmingDelete bool
	deleteTarget     models.Task

	showHelpPopup bool
}

// NewTaskListView creates a task list for project
func NewTaskListView(repo *repository.Repository, customer models.Customer, project models.Project) *TaskListView {
	editTitle := textinput.New()
	editTitle.Placeholder = "Task title"
	editTitle.CharLimit = 200

	editDesc := textarea.New()
	editDesc.Placeholder = "Description (markdown)"
	editDesc.CharLimit = 2000
	editDesc.SetWidth(50)
	editDesc.SetHeight(4)
	editDesc.ShowLineNumbers = false

	editDeadline := textinput.New()
	editDeadline.Placeholder = "YYYY-MM-DD"
	editDeadline.CharLimit = 10

	return &TaskListView{
		repo:         repo,
		customer:     customer,
		project:      project,
		styles:       styles.NewStyles(),
		keys:         keys.DefaultKeyMap(),
		editTitle:    editTitle,
		editDesc:     editDesc,
		editDeadline: editDeadline,
	}
}

// SetTasks replaces the list with the latest mirror snapshot
func (v *TaskListView) SetTasks(tasks []models.Task) {
	v.tasks = tasks
	v.loaded = true
	if v.cursor >= len(tasks) {
		v.cursor = max(len(tasks)-1, 0)
	}
	if len(tasks) == 0 {
		v.viewingTask = false
	}
	v.ensureVisible()
}

// SetProjects updates the project list used to snapshot project names
func (v *TaskListView) SetProjects(projects []models.Project) {
	v.projects = projects
}

// Project returns the project this view shows
func (v *TaskListView) Project() models.Project { return v.project }

// Busy reports whether a write is in flight
func (v *TaskListView) Busy() bool { return v.busy }

func (v *TaskListView) Init() tea.Cmd { return nil }

func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(msg.Width)
		v.editDesc.SetWidth(styles.Clamp(contentWidth-10, 20, 60))
		v.ensureVisible()
		return v, nil

	case WriteResult:
		v.busy = false
		return v, nil

	case tea.KeyMsg:
		switch {
		case v.showHelpPopup:
			v.showHelpPopup = false
			return v, nil
		case v.confirmingDelete:
			return v.updateConfirmDelete(msg)
		case v.creating:
			return v.updateCreating(msg)
		case v.viewingTask:
			return v.updateViewingTask(msg)
		}
		return v.updateNormal(msg)
	}
	return v, nil
}

func (v *TaskListView) selected() (models.Task, bool) {
	if v.cursor < 0 || v.cursor >= len(v.tasks) {
		return models.Task{}, false
	}
	return v.tasks[v.cursor], true
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Back):
		return v, func() tea.Msg { return BackToProjects{} }

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return v, nil

	case key.Matches(msg, v.keys.Retry):
		return v, func() tea.Msg { return RetryFeed{} }

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if _, ok := v.selected(); ok {
			v.viewingTask = true
		}
		return v, nil

	case key.Matches(msg, v.keys.Toggle):
		return v, v.toggleSelected()

	case key.Matches(msg, v.keys.New):
		if v.busy {
			return v, nil
		}
		v.startNewTask()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Delete):
		if task, ok := v.selected(); ok && !v.busy {
			v.confirmingDelete = true
			v.deleteTarget = task
		}
		return v, nil
	}
	return v, nil
}

// toggleSelected flips the selected task using its last-known status. The
// list is not changed locally; it updates when the store pushes the change.
func (v *TaskListView) toggleSelected() tea.Cmd {
	task, ok := v.selected()
	if !ok || v.busy {
		return nil
	}
	v.busy = true
	return write("toggle task", writeErr(func(ctx context.Context) error {
		return v.repo.ToggleTaskDone(ctx, task.ID, task.IsDone)
	}))
}

func (v *TaskListView) updateViewingTask(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Enter):
		v.viewingTask = false
		return v, nil
	case key.Matches(msg, v.keys.Toggle):
		return v, v.toggleSelected()
	case key.Matches(msg, v.keys.Delete):
		if task, ok := v.selected(); ok && !v.busy {
			v.confirmingDelete = true
			v.deleteTarget = task
		}
		return v, nil
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	}
	return v, nil
}

func (v *TaskListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		v.viewingTask = false
		v.busy = true
		id := v.deleteTarget.ID
		return v, write("delete task", writeErr(func(ctx context.Context) error {
			return v.repo.DeleteTask(ctx, id)
		}))
	case "n", "N", "esc":
		v.confirmingDelete = false
	}
	return v, nil
}

func (v *TaskListView) updateCreating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.creating = false
		return v, nil

	case key.Matches(msg, v.keys.Save):
		return v, v.saveTask()

	case key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % focusCount
		v.updateEditFocus()
		return v, nil

	case msg.String() == "shift+tab":
		v.editFocusIdx = (v.editFocusIdx + focusCount - 1) % focusCount
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		switch v.editFocusIdx {
		case focusSave:
			return v, v.saveTask()
		case focusDesc:
			// newlines belong to the description
		default:
			v.editFocusIdx++
			v.updateEditFocus()
			return v, nil
		}
	}

	var cmd tea.Cmd
	switch v.editFocusIdx {
	case focusTitle:
		v.editTitle, cmd = v.editTitle.Update(msg)
	case focusDesc:
		v.editDesc, cmd = v.editDesc.Update(msg)
	case focusDeadline:
		v.editDeadline, cmd = v.editDeadline.Update(msg)
	}
	return v, cmd
}

func (v *TaskListView) startNewTask() {
	v.creating = true
	v.formErr = ""
	v.editFocusIdx = focusTitle
	v.editTitle.Reset()
	v.editDesc.Reset()
	v.editDeadline.Reset()
	v.updateEditFocus()
}

func (v *TaskListView) updateEditFocus() {
	v.editTitle.Blur()
	v.editDesc.Blur()
	v.editDeadline.Blur()

	switch v.editFocusIdx {
	case focusTitle:
		v.editTitle.Focus()
	case focusDesc:
		v.editDesc.Focus()
	case focusDeadline:
		v.editDeadline.Focus()
	}
}

func (v *TaskListView) saveTask() tea.Cmd {
	deadline, err := models.ParseDeadline(v.editDeadline.Value())
	if err != nil {
		v.formErr = err.Error()
		v.editFocusIdx = focusDeadline
		v.updateEditFocus()
		return nil
	}

	input := models.TaskInput{
		Title:       strings.TrimSpace(v.editTitle.Value()),
		Description: strings.TrimSpace(v.editDesc.Value()),
		Deadline:    deadline,
	}
	v.creating = false
	if input.Title == "" {
		return nil
	}

	v.busy = true
	customer := v.customer
	projectID := v.project.ID
	projects := v.projects
	return write("create task", func(ctx context.Context) (string, error) {
		return v.repo.CreateTask(ctx, input, &customer, projectID, projects)
	})
}

func (v *TaskListView) visibleItems() int {
	// Each task item is 1 line + 1 margin = 2 lines
	availableHeight := max(v.height-10, 2)
	return max(availableHeight/2, 1)
}

func (v *TaskListView) ensureVisible() {
	visibleItems := v.visibleItems()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	} else if v.cursor >= v.scrollY+visibleItems {
		v.scrollY = v.cursor - visibleItems + 1
	}
}

func (v *TaskListView) helpEntries() []helpEntry {
	return []helpEntry{
		{"↵", "view"},
		{"space", "done"},
		{"n", "new"},
		{"d", "del"},
		{"esc", "projects"},
		{"q", "quit"},
	}
}

// View renders the view
func (v *TaskListView) View() string {
	if v.showHelpPopup {
		return renderHelpPopup(v.styles, v.width, v.height, v.helpEntries())
	}
	if v.confirmingDelete {
		return renderConfirm(v.styles, v.width, v.height, "Delete Task?",
			fmt.Sprintf("Delete %q?", v.deleteTarget.Title))
	}
	if v.creating {
		return v.renderEditForm()
	}
	if v.viewingTask {
		return v.renderTaskView()
	}

	var b strings.Builder
	b.WriteString(v.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(v.renderTaskList())
	b.WriteString("\n")
	b.WriteString(renderHelpLine(v.styles, styles.ContentWidth(v.width), v.helpEntries()))

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles
	open, overdue := 0, 0
	for _, t := range v.tasks {
		if !t.IsDone {
			open++
		}
		if derived.TaskOverdue(t) {
			overdue++
		}
	}

	summary := fmt.Sprintf("%s • %d open", v.customer.Name, open)
	if overdue > 0 {
		summary += " • " + s.TaskOverdue.Render(fmt.Sprintf("%d overdue", overdue))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render(v.project.Name),
		s.TitleMuted.Render(summary),
	)
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles

	if !v.loaded {
		return s.TitleMuted.Render("Loading...")
	}
	if len(v.tasks) == 0 {
		return s.TitleMuted.Render("No tasks. Press 'n' to create one.")
	}

	var items []string
	endIdx := min(v.scrollY+v.visibleItems(), len(v.tasks))
	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(v.tasks[i], i == v.cursor))
	}
	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskListView) renderTaskItem(task models.Task, selected bool) string {
	s := v.styles
	width := max(styles.ContentWidth(v.width)-4, 20)

	check := "[ ] "
	title := task.Title
	switch {
	case task.IsDone:
		check = "[x] "
		title = s.TaskDone.Render(title)
	case derived.TaskOverdue(task):
		title = s.TaskOverdue.Render(title + " (overdue)")
	}
	if task.Deadline != nil && !task.IsDone {
		title += " " + s.Deadline.Render(task.Deadline.Format(models.DeadlineLayout))
	}

	style := s.ListItem.Width(width)
	if selected {
		style = s.ListSelected.Width(width)
	}
	return style.Render(check+title) + "\n"
}

func (v *TaskListView) renderEditForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	inputWidth := styles.Clamp(contentWidth-6, 20, 60)

	titleStyle, descStyle, deadlineStyle, btnStyle := s.Input, s.Input, s.Input, s.Button
	switch v.editFocusIdx {
	case focusTitle:
		titleStyle = s.InputFocused
	case focusDesc:
		descStyle = s.InputFocused
	case focusDeadline:
		deadlineStyle = s.InputFocused
	case focusSave:
		btnStyle = s.ButtonFocused
	}

	lines := []string{
		s.Title.Render("New Task"),
		s.TitleMuted.Render(v.customer.Name + " / " + v.project.Name),
		"",
		"Title:",
		titleStyle.Width(inputWidth).Render(v.editTitle.View()),
		"",
		"Description:",
		descStyle.Width(inputWidth).Render(v.editDesc.View()),
		"",
		"Deadline:",
		deadlineStyle.Width(inputWidth).Render(v.editDeadline.View()),
		"",
		btnStyle.Render(" Create "),
	}
	if v.formErr != "" {
		lines = append(lines, "", s.StatusError.Render(v.formErr))
	}
	lines = append(lines, "", s.TitleMuted.Render("Tab: next • Ctrl+S: save • Esc: cancel"))

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Left, lines...),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderTaskView() string {
	task, ok := v.selected()
	if !ok {
		return ""
	}

	s := v.styles
	textWidth := styles.Clamp(styles.ContentWidth(v.width)-10, 20, 70)
	labelStyle := s.TitleMuted

	status := "Open"
	switch {
	case task.IsDone:
		status = "Done"
	case derived.TaskOverdue(task):
		status = s.TaskOverdue.Render("Overdue")
	}

	deadline := "None"
	if task.Deadline != nil {
		deadline = s.Deadline.Render(task.Deadline.Format(models.DeadlineLayout))
	}

	desc := renderMarkdown(textWidth, task.Description)
	if desc == "" {
		desc = s.TitleMuted.Render("No description")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.MarginBottom(1).Render(task.Title),
		labelStyle.Render("Client"),
		task.ClientNameSnapshot,
		"",
		labelStyle.Render("Status"),
		status,
		"",
		labelStyle.Render("Deadline"),
		deadline,
		"",
		labelStyle.Render("Created"),
		task.CreatedAt.Local().Format("Jan 2, 2006 3:04 PM"),
		"",
		labelStyle.Render("Description"),
		desc,
		"",
		s.Help.Render(fmt.Sprintf("%s done • %s delete • %s back",
			s.HelpKey.Render("space"),
			s.HelpKey.Render("d"),
			s.HelpKey.Render("esc"),
		)),
	)

	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}
