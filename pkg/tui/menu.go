package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openfroyo/launchpad/pkg/engine"
)

// menuModel is a single or multiple choice list.
type menuModel struct {
	label   string
	choices []engine.Choice
	multi   bool

	cursor   int
	checked  map[int]bool
	done     bool
	canceled bool

	keys   KeyMap
	styles Styles
}

func newMenu(label string, choices []engine.Choice, multi bool, preselected []int, styles Styles) menuModel {
	m := menuModel{
		label:   label,
		choices: choices,
		multi:   multi,
		checked: make(map[int]bool),
		keys:    DefaultKeyMap(),
		styles:  styles,
	}
	for _, i := range preselected {
		if i >= 0 && i < len(choices) {
			m.checked[i] = true
		}
	}
	return m
}

// Init implements tea.Model.
func (m menuModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Cancel):
		m.canceled = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case m.multi && key.Matches(keyMsg, m.keys.Toggle):
		m.checked[m.cursor] = !m.checked[m.cursor]
	case m.multi && key.Matches(keyMsg, m.keys.All):
		all := len(m.selection()) < len(m.choices)
		for i := range m.choices {
			m.checked[i] = all
		}
	case key.Matches(keyMsg, m.keys.Select):
		if m.multi && len(m.selection()) == 0 {
			return m, nil
		}
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// selection returns the checked indexes in ascending order.
func (m menuModel) selection() []int {
	if !m.multi {
		return []int{m.cursor}
	}
	out := make([]int, 0, len(m.checked))
	for i, on := range m.checked {
		if on {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// View implements tea.Model.
func (m menuModel) View() string {
	if m.done || m.canceled {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Label.Render(m.label))
	b.WriteString("\n\n")

	for i, c := range m.choices {
		cursor := "  "
		if i == m.cursor {
			cursor = m.styles.Cursor.Render("> ")
		}
		box := ""
		if m.multi {
			box = "[ ] "
			if m.checked[i] {
				box = m.styles.Selected.Render("[x] ")
			}
		}
		line := c.Label
		if c.Detail != "" {
			line += " " + m.styles.Muted.Render(c.Detail)
		}
		fmt.Fprintf(&b, "%s%s%s\n", cursor, box, line)
	}

	help := []key.Binding{m.keys.Up, m.keys.Down, m.keys.Select, m.keys.Cancel}
	if m.multi {
		help = []key.Binding{m.keys.Up, m.keys.Down, m.keys.Toggle, m.keys.All, m.keys.Select, m.keys.Cancel}
	}
	parts := make([]string, len(help))
	for i, h := range help {
		parts[i] = h.Help().Key + " " + h.Help().Desc
	}
	b.WriteString(m.styles.Help.Render(strings.Join(parts, " • ")))
	b.WriteString("\n")
	return b.String()
}

// runMenu runs m as a Bubble Tea program and returns the selection.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, m menuModel) ([]int, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return nil, engine.ErrAborted
		}
		return nil, fmt.Errorf("menu failed: %w", err)
	}

	result, ok := final.(menuModel)
	if !ok {
		return nil, fmt.Errorf("unexpected model type %T", final)
	}
	if result.canceled || !result.done {
		return nil, engine.ErrAborted
	}
	return result.selection(), nil
}
