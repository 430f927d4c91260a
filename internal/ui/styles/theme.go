// Package styles holds the color theme and the lipgloss styles shared by the
// views.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is a color palette
type Theme struct {
	Name string

	Background lipgloss.Color
	Text       lipgloss.Color
	Muted      lipgloss.Color
	Highlight  lipgloss.Color
	Selection  lipgloss.Color

	Border      lipgloss.Color
	BorderFocus lipgloss.Color

	Done    lipgloss.Color
	Due     lipgloss.Color
	Overdue lipgloss.Color
}

// TokyoNight is the default palette
var TokyoNight = Theme{
	Name:        "Tokyo Night",
	Background:  lipgloss.Color("#1a1b26"),
	Text:        lipgloss.Color("#c0caf5"),
	Muted:       lipgloss.Color("#565f89"),
	Highlight:   lipgloss.Color("#7aa2f7"),
	Selection:   lipgloss.Color("#33467c"),
	Border:      lipgloss.Color("#3b4261"),
	BorderFocus: lipgloss.Color("#7aa2f7"),
	Done:        lipgloss.Color("#9ece6a"),
	Due:         lipgloss.Color("#e0af68"),
	Overdue:     lipgloss.Color("#f7768e"),
}

// Current holds the active theme
var Current = TokyoNight

// MaxWidth caps the content width; wider terminals center the app.
const MaxWidth = 80

// ContentWidth returns min(terminalWidth, MaxWidth)
func ContentWidth(terminalWidth int) int {
	return min(terminalWidth, MaxWidth)
}

// Clamp returns val clamped to [lo, hi]
func Clamp(val, lo, hi int) int {
	return max(lo, min(val, hi))
}

// CenterView centers content when the terminal is wider than MaxWidth
func CenterView(content string, terminalWidth, terminalHeight int) string {
	if terminalWidth <= MaxWidth {
		return content
	}
	return lipgloss.Place(terminalWidth, terminalHeight, lipgloss.Center, lipgloss.Top, content)
}

// Styles holds the pre-computed styles
type Styles struct {
	Title      lipgloss.Style
	TitleMuted lipgloss.Style

	ListItem     lipgloss.Style
	ListSelected lipgloss.Style

	TaskDone    lipgloss.Style
	TaskOverdue lipgloss.Style
	Deadline    lipgloss.Style

	Input         lipgloss.Style
	InputFocused  lipgloss.Style
	Button        lipgloss.Style
	ButtonFocused lipgloss.Style
	ButtonPrimary lipgloss.Style

	Popup   lipgloss.Style
	Help    lipgloss.Style
	HelpKey lipgloss.Style

	StatusBar   lipgloss.Style
	StatusError lipgloss.Style

	Toast      lipgloss.Style
	ToastTitle lipgloss.Style
}

func boxed(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border)
}

// NewStyles builds Styles from Current
func NewStyles() *Styles {
	t := Current
	text := lipgloss.NewStyle().Foreground(t.Text)
	muted := lipgloss.NewStyle().Foreground(t.Muted)

	return &Styles{
		Title:      lipgloss.NewStyle().Foreground(t.Highlight).Bold(true),
		TitleMuted: muted,

		ListItem:     text.Padding(0, 2),
		ListSelected: lipgloss.NewStyle().Foreground(t.Highlight).Background(t.Selection).Padding(0, 2).Bold(true),

		TaskDone:    muted.Strikethrough(true),
		TaskOverdue: lipgloss.NewStyle().Foreground(t.Overdue).Bold(true),
		Deadline:    lipgloss.NewStyle().Foreground(t.Due),

		Input:         boxed(t.Border).Foreground(t.Text).Padding(0, 1),
		InputFocused:  boxed(t.BorderFocus).Foreground(t.Text).Padding(0, 1),
		Button:        boxed(t.Border).Foreground(t.Text).Padding(0, 2),
		ButtonFocused: boxed(t.BorderFocus).Foreground(t.Highlight).Padding(0, 2).Bold(true),
		ButtonPrimary: lipgloss.NewStyle().Foreground(t.Background).Background(t.Highlight).Padding(0, 2).Bold(true),

		Popup:   boxed(t.Border).Padding(0, 1),
		Help:    muted.Padding(1, 2),
		HelpKey: lipgloss.NewStyle().Foreground(t.Highlight).Bold(true),

		StatusBar:   muted.Padding(0, 1),
		StatusError: lipgloss.NewStyle().Foreground(t.Overdue).Padding(0, 1),

		Toast:      boxed(t.Done).Foreground(t.Text).Padding(0, 1),
		ToastTitle: lipgloss.NewStyle().Foreground(t.Done).Bold(true),
	}
}
