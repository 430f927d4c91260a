package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/checker/internal/derived"
	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/metrics"
	"github.com/tgienger/checker/internal/mirror"
	"github.com/tgienger/checker/internal/models"
	"github.com/tgienger/checker/internal/repository"
	"github.com/tgienger/checker/internal/ui/styles"
	"github.com/tgienger/checker/internal/ui/views"
)

// SettingLastCustomer stores the id of the last opened customer
const SettingLastCustomer = "last_customer_id"

// toastTTL is how long a notification toast stays on screen
const toastTTL = 6 * time.Second

// Currently active view
type View int

const (
	ViewCustomers View = iota
	ViewProjects
	ViewTasks
)

// Settings persists small UI preferences. *db.DB implements it.
type Settings interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

type customersMsg struct{ ev mirror.Event[models.Customer] }
type projectsMsg struct{ ev mirror.Event[models.Project] }
type tasksMsg struct{ ev mirror.Event[models.Task] }
type toastExpiredMsg struct{ id int }

type toast struct {
	id   int
	note models.Notification
}

// App is the root model. It owns one mirror per collection and hands their
// snapshots to the views.
type App struct {
	repo     *repository.Repository
	role     models.Role
	logger   *log.Logger
	settings Settings
	notifier *derived.Notifier

	customers *mirror.Mirror[models.Customer]
	projects  *mirror.Mirror[models.Project]
	tasks     *mirror.Mirror[models.Task]

	currentView  View
	customer     *models.Customer
	project      *models.Project
	lastCustomer string
	started      bool

	customerList *views.CustomerListView
	projectList  *views.ProjectListView
	taskList     *views.TaskListView

	styles      *styles.Styles
	status      string
	statusIsErr bool
	toasts      []toast
	nextToastID int
	width       int
	height      int
}

// Option configures an App
type Option func(*App)

// WithSettings restores and records the last opened customer in s
func WithSettings(s Settings) Option {
	return func(a *App) { a.settings = s }
}

// WithLogger sets the logger for the app and its mirrors
func WithLogger(l *log.Logger) Option {
	return func(a *App) { a.logger = l }
}

// NewApp creates the application. Notifications are shown as toasts and
// also handed to extra, if set.
func NewApp(store docstore.Store, repo *repository.Repository, role models.Role, m *metrics.Metrics, extra derived.Emitter, opts ...Option) *App {
	a := &App{
		repo:   repo,
		role:   role,
		logger: log.Default(),
		styles: styles.NewStyles(),
	}
	for _, opt := range opts {
		opt(a)
	}

	mopts := []mirror.Option{mirror.WithLogger(a.logger), mirror.WithMetrics(m)}
	a.customers = mirror.New(store, mirror.DecodeCustomer, mopts...)
	a.projects = mirror.New(store, mirror.DecodeProject, mopts...)
	a.tasks = mirror.New(store, mirror.DecodeTask, mopts...)

	a.notifier = derived.NewNotifier(role, derived.EmitterFunc(func(n models.Notification) error {
		a.pushToast(n)
		if extra != nil {
			return extra.Emit(n)
		}
		return nil
	}), m)

	a.customerList = views.NewCustomerListView(repo, role)
	return a
}

// Close tears down every mirror subscription
func (a *App) Close() {
	a.tasks.Deactivate()
	a.projects.Deactivate()
	a.customers.Deactivate()
}

func listen[T any](m *mirror.Mirror[T], wrap func(mirror.Event[T]) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return wrap(<-m.Updates())
	}
}

func (a *App) listenCustomers() tea.Cmd {
	return listen(a.customers, func(ev mirror.Event[models.Customer]) tea.Msg { return customersMsg{ev} })
}

func (a *App) listenProjects() tea.Cmd {
	return listen(a.projects, func(ev mirror.Event[models.Project]) tea.Msg { return projectsMsg{ev} })
}

func (a *App) listenTasks() tea.Cmd {
	return listen(a.tasks, func(ev mirror.Event[models.Task]) tea.Msg { return tasksMsg{ev} })
}

func (a *App) Init() tea.Cmd {
	if a.settings != nil {
		if id, err := a.settings.GetSetting(SettingLastCustomer); err == nil {
			a.lastCustomer = id
		}
	}
	if err := a.customers.Activate(context.Background(), mirror.CustomerParams()); err != nil {
		a.setError(err)
	}
	return tea.Batch(a.listenCustomers(), a.listenProjects(), a.listenTasks())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.customerList.Update(msg)
		if a.projectList != nil {
			a.projectList.Update(msg)
		}
		if a.taskList != nil {
			a.taskList.Update(msg)
		}
		return a, nil

	case customersMsg:
		return a, tea.Batch(a.listenCustomers(), a.applyCustomers(msg.ev))

	case projectsMsg:
		return a, tea.Batch(a.listenProjects(), a.applyProjects(msg.ev))

	case tasksMsg:
		return a, tea.Batch(a.listenTasks(), a.applyTasks(msg.ev))

	case toastExpiredMsg:
		for i, t := range a.toasts {
			if t.id == msg.id {
				a.toasts = append(a.toasts[:i], a.toasts[i+1:]...)
				break
			}
		}
		return a, nil

	case views.SelectedCustomer:
		c := msg.Customer
		return a, a.openCustomer(&c)

	case views.SelectedProject:
		p := msg.Project
		return a, a.openProject(&p)

	case views.BackToCustomers:
		a.currentView = ViewCustomers
		return a, nil

	case views.BackToProjects:
		a.closeProject()
		a.currentView = ViewProjects
		return a, nil

	case views.RetryFeed:
		a.retry()
		return a, nil

	case views.WriteResult:
		if msg.Err != nil {
			a.setError(fmt.Errorf("%s: %w", msg.Op, msg.Err))
		} else {
			a.status, a.statusIsErr = "", false
		}
		a.settle(msg)
		return a, nil

	case views.ProjectDeleted:
		switch {
		case msg.Err == nil:
			a.status, a.statusIsErr = "", false
		case errors.Is(msg.Err, repository.ErrPartialCascade):
			a.status, a.statusIsErr = views.DescribeDeleteError(msg.Err), true
		default:
			a.setError(msg.Err)
		}
		if a.project != nil && a.project.ID == msg.ID {
			a.closeProject()
			if a.currentView == ViewTasks {
				a.currentView = ViewProjects
			}
		}
		a.settle(msg)
		return a, nil
	}

	var cmd tea.Cmd
	switch a.currentView {
	case ViewCustomers:
		_, cmd = a.customerList.Update(msg)
	case ViewProjects:
		if a.projectList != nil {
			_, cmd = a.projectList.Update(msg)
		}
	case ViewTasks:
		if a.taskList != nil {
			_, cmd = a.taskList.Update(msg)
		}
	}
	return a, cmd
}

// settle hands a write result to every live view so the one that issued it
// leaves its busy state, even if the user navigated away meanwhile.
func (a *App) settle(msg tea.Msg) {
	a.customerList.Update(msg)
	if a.projectList != nil {
		a.projectList.Update(msg)
	}
	if a.taskList != nil {
		a.taskList.Update(msg)
	}
}

func (a *App) applyCustomers(ev mirror.Event[models.Customer]) tea.Cmd {
	if !a.customers.IsCurrent(ev) {
		return nil
	}
	if ev.Err != nil {
		a.setError(fmt.Errorf("%w (press r to reconnect)", ev.Err))
	}

	// the selected customer was deleted
	if a.customer != nil && !containsID(ev.Snapshot, a.customer.ID, func(c models.Customer) string { return c.ID }) && ev.Err == nil {
		a.closeCustomer()
	}

	if a.customer == nil && len(ev.Snapshot) > 0 {
		pick := ev.Snapshot[0]
		for _, c := range ev.Snapshot {
			if c.ID == a.lastCustomer {
				pick = c
				break
			}
		}
		a.selectCustomer(&pick)
		if !a.started {
			a.currentView = ViewProjects
		}
	}
	a.started = true

	selected := ""
	if a.customer != nil {
		selected = a.customer.ID
	}
	a.customerList.SetCustomers(ev.Snapshot, selected)
	return nil
}

func (a *App) applyProjects(ev mirror.Event[models.Project]) tea.Cmd {
	if !a.projects.IsCurrent(ev) || a.projectList == nil {
		return nil
	}
	if ev.Err != nil {
		a.setError(fmt.Errorf("%w (press r to reconnect)", ev.Err))
	}
	a.projectList.SetProjects(ev.Snapshot)

	if a.taskList != nil {
		a.taskList.SetProjects(ev.Snapshot)
	}
	// the active project was deleted, here or by another client
	if a.project != nil && ev.Err == nil && !containsID(ev.Snapshot, a.project.ID, func(p models.Project) string { return p.ID }) {
		a.closeProject()
		if a.currentView == ViewTasks {
			a.currentView = ViewProjects
		}
	}
	return nil
}

func (a *App) applyTasks(ev mirror.Event[models.Task]) tea.Cmd {
	if !a.tasks.IsCurrent(ev) || a.taskList == nil {
		return nil
	}
	if ev.Err != nil {
		a.setError(fmt.Errorf("%w (press r to reconnect)", ev.Err))
	}
	a.taskList.SetTasks(ev.Snapshot)

	start := len(a.toasts)
	if _, err := a.notifier.Handle(ev); err != nil {
		a.logger.Printf("notify: %v", err)
	}
	var cmds []tea.Cmd
	for _, t := range a.toasts[start:] {
		id := t.id
		cmds = append(cmds, tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} }))
	}
	return tea.Batch(cmds...)
}

func (a *App) pushToast(n models.Notification) {
	a.nextToastID++
	a.toasts = append(a.toasts, toast{id: a.nextToastID, note: n})
}

// selectCustomer makes c the selected customer and mirrors its projects
func (a *App) selectCustomer(c *models.Customer) {
	if a.customer != nil && a.customer.ID == c.ID {
		return
	}
	a.closeProject()
	a.customer = c
	a.projectList = views.NewProjectListView(a.repo, a.role, *c)
	a.projectList.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
	if err := a.projects.Activate(context.Background(), mirror.ProjectParams(c.ID)); err != nil {
		a.setError(err)
	}
	if a.settings != nil {
		if err := a.settings.SetSetting(SettingLastCustomer, c.ID); err != nil {
			a.logger.Printf("save last customer: %v", err)
		}
	}
}

func (a *App) openCustomer(c *models.Customer) tea.Cmd {
	a.selectCustomer(c)
	a.currentView = ViewProjects
	return nil
}

func (a *App) closeCustomer() {
	a.closeProject()
	a.projects.Deactivate()
	a.customer = nil
	a.projectList = nil
	if a.currentView != ViewCustomers {
		a.currentView = ViewCustomers
	}
}

func (a *App) openProject(p *models.Project) tea.Cmd {
	if a.customer == nil {
		return nil
	}
	a.project = p
	a.taskList = views.NewTaskListView(a.repo, *a.customer, *p)
	a.taskList.SetProjects(a.projects.Snapshot())
	a.taskList.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
	a.currentView = ViewTasks
	if err := a.tasks.Activate(context.Background(), mirror.TaskParams(p.ID)); err != nil {
		a.setError(err)
	}
	return nil
}

func (a *App) closeProject() {
	a.tasks.Deactivate()
	a.project = nil
	a.taskList = nil
}

// retry re-opens the feeds that ended with an error
func (a *App) retry() {
	ctx := context.Background()
	a.status, a.statusIsErr = "", false
	if a.customers.Err() != nil {
		if err := a.customers.Activate(ctx, mirror.CustomerParams()); err != nil {
			a.setError(err)
		}
	}
	if a.customer != nil && a.projects.Err() != nil {
		if err := a.projects.Activate(ctx, mirror.ProjectParams(a.customer.ID)); err != nil {
			a.setError(err)
		}
	}
	if a.project != nil && a.tasks.Err() != nil {
		if err := a.tasks.Activate(ctx, mirror.TaskParams(a.project.ID)); err != nil {
			a.setError(err)
		}
	}
}

func (a *App) setError(err error) {
	a.logger.Print(err)
	a.status, a.statusIsErr = err.Error(), true
}

func containsID[T any](items []T, id string, key func(T) string) bool {
	for _, it := range items {
		if key(it) == id {
			return true
		}
	}
	return false
}

// CurrentView returns the view being shown
func (a *App) CurrentView() View { return a.currentView }

// Customer returns the selected customer, or nil
func (a *App) Customer() *models.Customer { return a.customer }

// Project returns the open project, or nil
func (a *App) Project() *models.Project { return a.project }

func (a *App) View() string {
	var body string
	switch a.currentView {
	case ViewTasks:
		if a.taskList != nil {
			body = a.taskList.View()
		}
	case ViewProjects:
		if a.projectList != nil {
			body = a.projectList.View()
		}
	}
	if body == "" {
		body = a.customerList.View()
	}

	var footer []string
	for _, t := range a.toasts {
		footer = append(footer, a.styles.Toast.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				a.styles.ToastTitle.Render(t.note.ClientName),
				t.note.Body(),
			),
		))
	}
	if a.status != "" {
		style := a.styles.StatusBar
		if a.statusIsErr {
			style = a.styles.StatusError
		}
		footer = append(footer, style.Render(a.status))
	}
	if len(footer) == 0 {
		return body
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{body}, footer...)...)
}
