package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/pkg/models"
)

const defaultTermWidth = 80

var (
	summaryStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	summaryHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// progressPrinter prints the progress of a run as "[i/n] title" lines and
// a statistics box at the end.
type progressPrinter struct {
	out   io.Writer
	width int
}

func newProgressPrinter(out io.Writer, width int) *progressPrinter {
	if width <= 0 {
		width = defaultTermWidth
	}
	return &progressPrinter{out: out, width: width}
}

func (p *progressPrinter) PhaseChanged(phase core.Phase) {
	switch phase {
	case core.PhaseFetching:
		fmt.Fprintln(p.out, dimStyle.Render("Fetching saved items..."))
	case core.PhaseSubmitting:
		fmt.Fprintln(p.out, dimStyle.Render("Creating tasks..."))
	}
}

func (p *progressPrinter) ItemStarted(index, total int, title string) {
	prefix := fmt.Sprintf("[%d/%d] ", index, total)
	room := p.width - runewidth.StringWidth(prefix)
	if room < 10 {
		room = 10
	}
	fmt.Fprintf(p.out, "%s%s\n", prefix, runewidth.Truncate(title, room, "…"))
}

func (p *progressPrinter) ItemFinished(index int, ok bool) {
	if !ok {
		fmt.Fprintln(p.out, failedStyle.Render("      failed, see log for details"))
	}
}

func (p *progressPrinter) Report(stats models.RunStatistics) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, renderSummary(stats))
}

// renderSummary formats the run statistics as a bordered box.
func renderSummary(stats models.RunStatistics) string {
	header := "Import complete"
	if stats.DryRun {
		header += " (dry run)"
	}

	errs := fmt.Sprintf("%d", stats.Errors)
	if stats.Errors > 0 {
		errs = failedStyle.Render(errs)
	} else {
		errs = okStyle.Render(errs)
	}

	rows := []struct {
		label string
		value string
	}{
		{"Items seen", fmt.Sprintf("%d", stats.ItemsSeen)},
		{"Tasks created", fmt.Sprintf("%d", stats.TasksCreated)},
		{"Already imported", fmt.Sprintf("%d", stats.SkippedDuplicates)},
		{"Unsaved in Slack", fmt.Sprintf("%d", stats.ItemsRemoved)},
		{"API calls", fmt.Sprintf("%d", stats.RemoteCalls)},
		{"Errors", errs},
	}

	body := summaryHeaderStyle.Render(header) + "\n"
	for _, r := range rows {
		body += fmt.Sprintf("\n%-18s %s", r.label+":", r.value)
	}
	if stats.RunID != "" {
		body += "\n\n" + dimStyle.Render("run "+stats.RunID)
	}
	return summaryStyle.Render(body)
}

// terminalWidth returns the width of stdout, or the default when stdout is
// not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultTermWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return defaultTermWidth
	}
	return width
}

// stdinIsTerminal reports whether the interactive picker can read keys.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
