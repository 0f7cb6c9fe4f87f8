package healthcheck

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	labelStyle = lipgloss.NewStyle().
			Faint(true).
			Width(14)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func sortedSampleNames() []string {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func statusIcon(status string) string {
	switch status {
	case StatusOK:
		return okStyle.Render("✓")
	case StatusWarning:
		return warnStyle.Render("!")
	case StatusError:
		return errStyle.Render("✗")
	default:
		return "?"
	}
}

func writeCheck(w io.Writer, c CheckStatus) {
	fmt.Fprintf(w, "  %s %s %s\n", statusIcon(c.Status), labelStyle.Render(c.Name), c.Detail)
}

// Display writes a human-readable report of r.
func Display(w io.Writer, r *HealthCheckResult) {
	if r.EffectivePath != "" {
		fmt.Fprintf(w, "Using config: %s (%s)\n\n", r.EffectivePath, r.EffectiveScope)
	} else {
		fmt.Fprintf(w, "Using built-in defaults\n\n")
	}

	fmt.Fprintln(w, headerStyle.Render("Configuration"))
	writeCheck(w, r.Config)

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Grammars"))
	for _, g := range r.Grammars {
		writeCheck(w, g)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Daemon"))
	writeCheck(w, r.Daemon)
}
