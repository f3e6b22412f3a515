package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
)

// printJSON pretty-prints v to stdout as JSON. It's the --json branch
// every query/admin/scheduler command shares.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderMarkdown renders md for a human terminal via glamour, falling
// back to the raw text if rendering fails (e.g. no terminal detected).
func renderMarkdown(md string) string {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		return md
	}
	return out
}

// styleForHealth maps an indexer/layer status word to its terminal color.
func styleForHealth(status string) lipgloss.Style {
	switch status {
	case "available":
		return okStyle
	case "unhealthy":
		return failStyle
	case "disabled":
		return mutedStyle
	default:
		return warnStyle
	}
}

func printf(format string, args ...any) {
	fmt.Printf(format, args...)
}
