package views

import (
	"context"
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

type customerItem struct {
	customer models.Customer
	selected bool
}

func (i customerItem) Title() string       { return i.customer.Name }
func (i customerItem) Description() string { return "" }
func (i customerItem) FilterValue() string { return i.customer.Name }

type customerDelegate struct {
	styles *styles.Styles
	width  int
}

func (d customerDelegate) Height() int                               { return 1 }
func (d customerDelegate) Spacing() int                              { return 0 }
func (d customerDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d customerDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	c, ok := item.(customerItem)
	if !ok {
		return
	}

	width := max(d.width-4, 20)
	style := d.styles.ListItem.Width(width)
	if index == m.Index() {
		style = d.styles.ListSelected.Width(width)
	}

	marker := "  "
	if c.selected {
		marker = "● "
	}
	fmt.Fprint(w, style.Render(marker+c.Title()))
}

// CustomerListView is the sidebar of customers. Adding and deleting
// customers is limited to TeamLead.
type CustomerListView struct {
	repo     *repository.Repository
	role     models.Role
	list     list.Model
	delegate *customerDelegate
	styles   *styles.Styles
	keys     keys.KeyMap
	width    int
	height   int

	loaded     bool
	selectedID string
	busy       bool

	creating bool
	newName  textinput.Model

	confirmingDelete bool
	deleteTarget     models.Customer

	showHelpPopup bool
}

// NewCustomerListView creates the customer list
func NewCustomerListView(repo *repository.Repository, role models.Role) *CustomerListView {
	s := styles.NewStyles()

	newName := textinput.New()
	newName.Placeholder = "Customer name"
	newName.CharLimit = 100

	delegate := &customerDelegate{styles: s, width: 80}

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Customers"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = s.Title
	l.SetShowHelp(false)

	return &CustomerListView{
		repo:     repo,
		role:     role,
		list:     l,
		delegate: delegate,
		styles:   s,
		keys:     keys.DefaultKeyMap(),
		newName:  newName,
	}
}

// SetCustomers replaces the list with the latest mirror snapshot
func (v *CustomerListView) SetCustomers(customers []models.Customer, selectedID string) {
	v.selectedID = selectedID
	items := make([]list.Item, len(customers))
	cursor := v.list.Index()
	for i, c := range customers {
		items[i] = customerItem{customer: c, selected: c.ID == selectedID}
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

// Customers returns the customers currently listed
func (v *CustomerListView) Customers() []models.Customer {
	items := v.list.Items()
	out := make([]models.Customer, 0, len(items))
	for _, it := range items {
		if c, ok := it.(customerItem); ok {
			out = append(out, c.customer)
		}
	}
	return out
}

// Busy reports whether a write is in flight
func (v *CustomerListView) Busy() bool { return v.busy }

func (v *CustomerListView) canManage() bool { return v.role == models.RoleTeamLead }

func (v *CustomerListView) Init() tea.Cmd { return nil }

func (v *CustomerListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		case key.Matches(msg, v.keys.Help):
			v.showHelpPopup = true
			return v, nil
		case key.Matches(msg, v.keys.Retry):
			return v, func() tea.Msg { return RetryFeed{} }
		case key.Matches(msg, v.keys.Enter):
			if item, ok := v.list.SelectedItem().(customerItem); ok {
				return v, func() tea.Msg { return SelectedCustomer{Customer: item.customer} }
			}
			return v, nil
		case key.Matches(msg, v.keys.New):
			if !v.canManage() || v.busy {
				return v, nil
			}
			v.creating = true
			v.newName.Reset()
			v.newName.Focus()
			return v, textinput.Blink
		case key.Matches(msg, v.keys.Delete):
			if !v.canManage() || v.busy {
				return v, nil
			}
			if item, ok := v.list.SelectedItem().(customerItem); ok {
				v.confirmingDelete = true
				v.deleteTarget = item.customer
			}
			return v, nil
		}
	}

	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

func (v *CustomerListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.confirmingDelete = false
		v.busy = true
		id := v.deleteTarget.ID
		return v, write("delete customer", writeErr(func(ctx context.Context) error {
			return v.repo.DeleteCustomer(ctx, id)
		}))
	case "n", "N", "esc":
		v.confirmingDelete = false
	}
	return v, nil
}

func (v *CustomerListView) updateCreating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
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
		return v, write("create customer", func(ctx context.Context) (string, error) {
			return v.repo.CreateCustomer(ctx, name)
		})
	}

	var cmd tea.Cmd
	v.newName, cmd = v.newName.Update(msg)
	return v, cmd
}

func (v *CustomerListView) helpEntries() []helpEntry {
	entries := []helpEntry{{"↵", "open"}}
	if v.canManage() {
		entries = append(entries, helpEntry{"n", "new"}, helpEntry{"d", "del"})
	}
	return append(entries, helpEntry{"/", "filter"}, helpEntry{"q", "quit"})
}

// View renders the view
func (v *CustomerListView) View() string {
	if v.showHelpPopup {
		return renderHelpPopup(v.styles, v.width, v.height, v.helpEntries())
	}
	if v.confirmingDelete {
		return renderConfirm(v.styles, v.width, v.height, "Delete Customer?",
			fmt.Sprintf("Delete %q?", v.deleteTarget.Name),
			"Its projects and tasks are kept.")
	}
	if v.creating {
		return v.renderCreateForm()
	}
	if !v.loaded {
		return v.styles.TitleMuted.Render("Loading...")
	}
	if len(v.list.Items()) == 0 {
		hint := "Ask a team lead to add a customer"
		if v.canManage() {
			hint = "Press 'n' to add your first customer"
		}
		return renderEmpty(v.styles, v.width, v.height, "No Customers", hint)
	}

	content := v.list.View() + "\n" + renderHelpLine(v.styles, styles.ContentWidth(v.width), v.helpEntries())
	return styles.CenterView(content, v.width, v.height)
}

func (v *CustomerListView) renderCreateForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	inputWidth := styles.Clamp(contentWidth-6, 20, 50)

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("New Customer"),
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
