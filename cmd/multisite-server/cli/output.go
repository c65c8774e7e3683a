package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(18)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
)

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintln(w, labelStyle.Render(label)+value)
}

// printSecret shows a value that cannot be recovered later.
func printSecret(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	printField(w, label, value)
	fmt.Fprintln(w, warnStyle.Render("  Store this now, it is not shown again."))
}
