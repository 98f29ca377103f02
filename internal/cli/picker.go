package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

// ErrSelectionCancelled is returned when the picker is closed without
// confirming.
var ErrSelectionCancelled = errors.New("selection cancelled")

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("62")).
				Padding(0, 1)

	pickerCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	pickerKindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pickerHelpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type pickerModel struct {
	titles   []string
	kinds    []string
	selected []bool
	cursor   int
	offset   int
	width    int
	height   int

	confirmed bool
	cancelled bool
}

func newPickerModel(items []models.HarvestedItem, titles []string) pickerModel {
	m := pickerModel{
		titles:   titles,
		kinds:    make([]string, len(items)),
		selected: make([]bool, len(items)),
		width:    defaultTermWidth,
		height:   24,
	}
	for i, item := range items {
		m.kinds[i] = string(item.Kind())
		m.selected[i] = true
	}
	return m
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.titles)-1 {
				m.cursor++
			}
		case " ", "x":
			if len(m.selected) > 0 {
				m.selected[m.cursor] = !m.selected[m.cursor]
			}
		case "a":
			all := m.count() < len(m.selected)
			for i := range m.selected {
				m.selected[i] = all
			}
		}
		m.scroll()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scroll()
	}

	return m, nil
}

// visibleRows is the number of list rows that fit below the title and
// above the help line.
func (m pickerModel) visibleRows() int {
	rows := m.height - 4
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m *pickerModel) scroll() {
	rows := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

func (m pickerModel) count() int {
	n := 0
	for _, s := range m.selected {
		if s {
			n++
		}
	}
	return n
}

func (m pickerModel) View() string {
	if m.confirmed || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render(fmt.Sprintf(" Import %d of %d saved items ", m.count(), len(m.titles))))
	b.WriteString("\n\n")

	end := m.offset + m.visibleRows()
	if end > len(m.titles) {
		end = len(m.titles)
	}
	for i := m.offset; i < end; i++ {
		cursor := "  "
		if i == m.cursor {
			cursor = pickerCursorStyle.Render("> ")
		}
		check := "[ ]"
		if m.selected[i] {
			check = "[x]"
		}
		kind := pickerKindStyle.Render(fmt.Sprintf("%-12s", m.kinds[i]))
		room := m.width - 21
		if room < 10 {
			room = 10
		}
		fmt.Fprintf(&b, "%s%s %s %s\n", cursor, check, kind, runewidth.Truncate(m.titles[i], room, "…"))
	}

	b.WriteString("\n")
	b.WriteString(pickerHelpStyle.Render("space: toggle | a: all/none | enter: import | q: cancel"))
	return b.String()
}

// picked returns the items still selected.
func (m pickerModel) picked(items []models.HarvestedItem) []models.HarvestedItem {
	out := make([]models.HarvestedItem, 0, m.count())
	for i, item := range items {
		if m.selected[i] {
			out = append(out, item)
		}
	}
	return out
}

// teaSelector lets the user narrow the import list in a terminal UI.
type teaSelector struct {
	in  io.Reader
	out io.Writer
}

func (s *teaSelector) Select(items []models.HarvestedItem, titles []string) ([]models.HarvestedItem, error) {
	var opts []tea.ProgramOption
	if s.in != nil {
		opts = append(opts, tea.WithInput(s.in))
	}
	if s.out != nil {
		opts = append(opts, tea.WithOutput(s.out))
	}

	final, err := tea.NewProgram(newPickerModel(items, titles), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("running picker: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok || !m.confirmed {
		return nil, ErrSelectionCancelled
	}
	return m.picked(items), nil
}
