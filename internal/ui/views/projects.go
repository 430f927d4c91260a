package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/checker/internal/models"
	"github.com/tgienger/checker/internal/repository"
	"github.com/tgienger/checker/internal/ui/keys"
	"github.com/tgienger/checker/internal/ui/styles"
)

type projectItem struct {
	project models.Project
}

func (i projectItem) Title() string { return i.project.Name }
func (i projectItem) Description() string {
	if i.project.Deleting {
		return "deleting..."
	}
	if i.project.CreatedAt.IsZero() {
		return ""
	}
	return "created " + i.project.CreatedAt.Local().Format("Jan 2, 2006")
}
func (i projectItem) FilterValue() string { return i.project.Name }

type projectDelegate struct {
	styles *styles.Styles
	width  int
}

func (d projectDelegate) Height() int                               { return 2 }
func (d projectDelegate) Spacing() int                              { return 1 }
func (d projectDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d projectDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	p, ok := item.(projectItem)
	if !ok {
		return
	}

	selected := index == m.Index()
	width := max(d.width-4, 20)

	var titleStyle, descStyle lipgloss.Style
	if selected {
		titleStyle = d.styles.ListSelected.Width(width)
		descStyle = d.styles.ListSelected.Foreground(styles.Current.Muted).Width(width)
	} else {
		titleStyle = d.styles.ListItem.Width(width)
		descStyle = d.styles.ListItem.Foreground(styles.Current.Muted).Width(width)
	}

	fmt.Fprintf(w, "%s\n%s", titleStyle.Render(p.Title()), descStyle.Render(p.Description()))
}

// ProjectDeleted is sent after a project delete settles. Err may be a
// *repository.CascadeError when the project is gone but tasks survived.
type ProjectDeleted struct {
	ID  string
	Err error
}

// ProjectListView lists the selected customer's projects
type ProjectListView struct {
	repo     *repository.Repository
	role     models.Role
	customer models.Customer
	list     list.Model
	delegate *projectDelegate
	styles   *styles.Styles
	keys     keys.KeyMap
	width    int
	height   int

	loaded bool
	busy   bool

	creating bool
	newName  textinput.Model

	confirmingDelete bool
	deleteTarget     models.Project

	showHelpPopup bool
}

// NewProjectListView creates the project list for customer
func NewProjectListView(repo *repository.Repository, role models.Role, customer models.Customer) *ProjectListView {
	s := styles.NewStyles()

	newName := textinput.New()
	newName.Placeholder = "Project name"
	newName.CharLimit = 100

	delegate := &projectDelegate{styles: s, width: 80}

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = customer.Name
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = s.Title
	l.SetShowHelp(false)

	return &ProjectListView{
		repo:     repo,
		role:     role,
		customer: customer,
		list:     l,
		delegate: delegate,
		styles:   s,
		keys:     keys.DefaultKeyMap(),
		newName:  newName,
	}
}

// SetProjects replaces the list with the latest mirror snapshot
func (v *ProjectListView) SetProjects(projects []models.Project) {
	cursor := v.list.Index()
	items := make([]list.Item, len(projects))
	for i, p := range projects {
		items[i] = projectItem{project: p}
	}
	v.list.SetItems(items)
	if cursor >= len(items) {
		cursor = len(items) - 1
	}
	if cursor >= 0 {
		v.list.Select(cursor)
	}
	v.loaded = true
}

// Busy reports whether a write is in flight
func (v *ProjectListView) Busy() bool { return v.busy }

func (v *ProjectListView) canDelete() bool { return v.role == models.RoleTeamLead }

func (v *ProjectListView) Init() tea.Cmd { return nil }

func (v *ProjectListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(msg.Width)
		v.delegate.width = contentWidth
		v.list.SetSize(contentWidth-4, msg.Height-6)
		return v, nil

	case WriteResult:
		v.busy = false
		return v, nil

	case ProjectDeleted:
		v.busy = false
		return v, nil

	case tea.KeyMsg:
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}
		if v.confirmingDelete {
			return v.updateConfirmDelete(msg)
		}
		if v.creating {
			return v.updateCreating(msg)
		}
		if v.list.FilterState() == list.Filtering {
			break
		}

		switch {
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case key.Matches(msg, v.keys.Back):
			return v, func() tea.Msg { return BackToCustomers{} }
		case key.Matches(msg, v.keys.Help):
			v.showHelpPopup = true
			return v, nil
		case key.Matches(msg, v.keys.Retry):
			return v, func() tea.Msg { return RetryFeed{} }
		case key.Matches(msg, v.keys.Enter):
			if item, ok := v.list.SelectedItem().(projectItem); ok && !item.project.Deleting {
				return v, func() tea.Msg { return SelectedProject{Project: item.project} }
			}
			return v, nil
		case key.Matches(msg, v.keys.New):
			if v.busy {
				return v, nil
			}
			v.creating = true
			v.newName.Reset()
			v.newName.Focus()
			return v, textinput.Blink
		case key.Matches(msg, v.keys.Delete):
			if !v.canDelete() || v.busy {
				return v, nil
			}
			if item, ok := v.list.SelectedItem().(projectItem); ok {
				v.confirmingDelete = true
				v.deleteTarget = item.project
			}
			return v, nil
		}
	}

	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

func (v *ProjectListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		v.busy = true
		id := v.deleteTarget.ID
		return v, func() tea.Msg {
			return ProjectDeleted{ID: id, Err: v.repo.DeleteProject(context.Background(), id)}
		}
	case "n", "N", "esc":
		v.confirmingDelete = false
	}
	return v, nil
}

func (v *ProjectListView) updateCreating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.creating = false
		return v, nil
	case key.Matches(msg, v.keys.Enter), key.Matches(msg, v.keys.Save):
		v.creating = false
		name := strings.TrimSpace(v.newName.Value())
		if name == "" {
			return v, nil
		}
		v.busy = true
		customer := v.customer
		return v, write("create project", func(ctx context.Context) (string, error) {
			return v.repo.CreateProject(ctx, name, &customer)
		})
	}

	var cmd tea.Cmd
	v.newName, cmd = v.newName.Update(msg)
	return v, cmd
}

func (v *ProjectListView) helpEntries() []helpEntry {
	entries := []helpEntry{{"↵", "open"}, {"n", "new"}}
	if v.canDelete() {
		entries = append(entries, helpEntry{"d", "del"})
	}
	return append(entries, helpEntry{"esc", "customers"}, helpEntry{"q", "quit"})
}

// View renders the view
func (v *ProjectListView) View() string {
	if v.showHelpPopup {
		return renderHelpPopup(v.styles, v.width, v.height, v.helpEntries())
	}
	if v.confirmingDelete {
		return renderConfirm(v.styles, v.width, v.height, "Delete Project?",
			fmt.Sprintf("Delete %q?", v.deleteTarget.Name),
			"This will also delete all tasks in this project.")
	}
	if v.creating {
		return v.renderCreateForm()
	}
	if !v.loaded {
		return v.styles.TitleMuted.Render("Loading...")
	}
	if len(v.list.Items()) == 0 {
		return renderEmpty(v.styles, v.width, v.height, "No Projects", "Press 'n' to create the first project for "+v.customer.Name)
	}

	content := v.list.View() + "\n" + renderHelpLine(v.styles, styles.ContentWidth(v.width), v.helpEntries())
	return styles.CenterView(content, v.width, v.height)
}

func (v *ProjectListView) renderCreateForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	inputWidth := styles.Clamp(contentWidth-6, 20, 50)

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("New Project"),
		s.TitleMuted.Render("for "+v.customer.Name),
		"",
		"Name:",
		s.InputFocused.Width(inputWidth).Render(v.newName.View()),
		"",
		s.TitleMuted.Render("Enter: save • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, v.width, v.height)
}

// DescribeDeleteError turns a project delete error into a status line
func DescribeDeleteError(err error) string {
	var cascade *repository.CascadeError
	if errors.As(err, &cascade) {
		return fmt.Sprintf("project deleted but %d task(s) remain; run 'checker doctor --fix'", len(cascade.Survivors))
	}
	return "delete project: " + err.Error()
}
