package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "2"}
	colorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "1"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "5", Dark: "5"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "8", Dark: "8"}
	colorWarning = lipgloss.AdaptiveColor{Light: "3", Dark: "3"}

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleHeader  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
)

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleSuccess.Render("✔ "+fmt.Sprintf(format, args...)))
}

func failure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleError.Render("✘ "+fmt.Sprintf(format, args...)))
}

func warning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleWarning.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// field prints one aligned "label: value" line
func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", styleMuted.Render(fmt.Sprintf("%-18s", label+":")), value)
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMuted).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}
