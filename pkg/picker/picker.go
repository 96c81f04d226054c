package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Options controls the selector behavior.
type Options struct {
	Prompt       string
	InitialQuery string
	MaxResults   int
}

// Pick runs the interactive selector and returns the chosen item.
// ok is false when the user cancelled (esc / ctrl+c) or the list is empty.
func Pick(items []Item, opts Options) (Item, bool, error) {
	if len(items) == 0 {
		return Item{}, false, nil
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}

	m := newModel(items, opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Item{}, false, err
	}
	fm, _ := final.(model)
	if !fm.chosen {
		return Item{}, false, nil
	}
	return fm.choice, true, nil
}

var (
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
)

type model struct {
	opts     Options
	input    textinput.Model
	items    []Item
	filtered []Item

	selected int
	scroll   int

	chosen bool
	choice Item
}

func newModel(items []Item, opts Options) model {
	ti := textinput.New()
	ti.Placeholder = "type to filter"
	ti.Prompt = "> "
	ti.SetValue(opts.InitialQuery)
	ti.Focus()

	m := model{
		opts:  opts,
		input: ti,
		items: items,
	}
	m.recomputeFilter()
	return m
}

func (m *model) recomputeFilter() {
	m.filtered = Rank(m.items, m.input.Value())
	if m.selected >= len(m.filtered) {
		m.selected = len(m.filtered) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	m.clampScroll()
}

func (m *model) clampScroll() {
	if m.selected < m.scroll {
		m.scroll = m.selected
	}
	if m.selected >= m.scroll+m.opts.MaxResults {
		m.scroll = m.selected - m.opts.MaxResults + 1
	}
	if m.scroll < 0 {
		m.scroll = 0
	}
}

// current returns the item under the cursor, or nil when the list is empty.
func (m *model) current() *Item {
	if m.selected < 0 || m.selected >= len(m.filtered) {
		return nil
	}
	return &m.filtered[m.selected]
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if cur := m.current(); cur != nil {
				m.chosen = true
				m.choice = *cur
			}
			return m, tea.Quit
		case "up", "ctrl+p":
			if m.selected > 0 {
				m.selected--
			}
			m.clampScroll()
			return m, nil
		case "down", "ctrl+n":
			if m.selected < len(m.filtered)-1 {
				m.selected++
			}
			m.clampScroll()
			return m, nil
		}
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.selected = 0
		m.scroll = 0
		m.recomputeFilter()
	}
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder

	if m.opts.Prompt != "" {
		b.WriteString(promptStyle.Render(m.opts.Prompt))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	end := m.scroll + m.opts.MaxResults
	if end > len(m.filtered) {
		end = len(m.filtered)
	}
	for i := m.scroll; i < end; i++ {
		line := m.filtered[i].Display
		if i == m.selected {
			b.WriteString(cursorStyle.Render("> "))
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString("  ")
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	if len(m.filtered) == 0 {
		b.WriteString(dimStyle.Render("  (no matches)"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d/%d  ↑/↓ move · enter select · esc cancel", len(m.filtered), len(m.items))))
	b.WriteString("\n")
	return b.String()
}
