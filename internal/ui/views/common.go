package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/checker/internal/ui/styles"
)

// helpEntry is one key hint in a help line or popup
type helpEntry struct {
	key  string
	desc string
}

func renderHelpLine(s *styles.Styles, width int, entries []helpEntry) string {
	// At narrow widths, show hint to press ? for help
	if width > 0 && width < 50 {
		return s.Help.Render(s.HelpKey.Render("?") + " help")
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s %s", s.HelpKey.Render(e.key), e.desc)
	}
	return s.Help.Render(strings.Join(parts, " • "))
}

func renderHelpPopup(s *styles.Styles, width, height int, entries []helpEntry) string {
	contentWidth := styles.ContentWidth(width)

	lines := []string{s.Title.Render("Keyboard Shortcuts"), ""}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%-7s%s", s.HelpKey.Render(e.key), e.desc))
	}
	lines = append(lines, "", s.TitleMuted.Render("Press any key to close"))

	centered := lipgloss.Place(contentWidth, height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
	return styles.CenterView(centered, width, height)
}

func renderConfirm(s *styles.Styles, width, height int, title string, details ...string) string {
	contentWidth := styles.ContentWidth(width)

	lines := []string{s.Title.Foreground(styles.Current.Overdue).Render(title), ""}
	for _, d := range details {
		lines = append(lines, s.TitleMuted.Render(d))
	}
	lines = append(lines, "",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Yes "),
			"  ",
			s.Button.Render(" N - No "),
		),
	)

	centered := lipgloss.Place(contentWidth, height,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, lines...),
	)
	return styles.CenterView(centered, width, height)
}

func renderEmpty(s *styles.Styles, width, height int, title, hint string) string {
	contentWidth := styles.ContentWidth(width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Render(title),
		"",
		s.TitleMuted.Render(hint),
	)

	centered := lipgloss.Place(contentWidth, height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, width, height)
}
