package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/canscript/canscript/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	effectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type scriptModel struct {
	filename string
	source   string
	initArg  string
	budget   time.Duration

	state   json.RawMessage
	ui      json.RawMessage
	effects json.RawMessage
	err     error
	fatal   error

	input textinput.Model
}

func newScriptModel(filename, source, initArg string, budgetMillis int64) *scriptModel {
	ti := textinput.New()
	ti.Placeholder = `{"type":"..."}`
	ti.Prompt = "msg: "
	ti.Width = 60
	ti.Focus()

	var budget time.Duration
	if budgetMillis > 0 {
		budget = time.Duration(budgetMillis) * time.Millisecond
	}

	return &scriptModel{
		filename: filename,
		source:   source,
		initArg:  initArg,
		budget:   budget,
		input:    ti,
	}
}

type transitionMsg struct {
	err     error
	fatal   bool
	state   json.RawMessage
	effects json.RawMessage
	ui      json.RawMessage
}

func (m *scriptModel) Init() tea.Cmd {
	return m.runInit
}

func (m *scriptModel) runInit() tea.Msg {
	tr, err := engine.Init(m.source, json.RawMessage(m.initArg), m.budget)
	if err != nil {
		return transitionMsg{err: err, fatal: true}
	}
	ui, err := engine.View(m.source, tr.State, m.budget)
	if err != nil {
		return transitionMsg{err: err, fatal: true}
	}
	return transitionMsg{state: tr.State, effects: tr.Effects, ui: ui}
}

func (m *scriptModel) runUpdate(msgJSON string) tea.Cmd {
	state := m.state
	return func() tea.Msg {
		tr, err := engine.Update(m.source, json.RawMessage(msgJSON), state, m.budget)
		if err != nil {
			return transitionMsg{err: err}
		}
		ui, err := engine.View(m.source, tr.State, m.budget)
		if err != nil {
			return transitionMsg{err: err}
		}
		return transitionMsg{state: tr.State, effects: tr.Effects, ui: ui}
	}
}

func (m *scriptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+r":
			m.err = nil
			m.fatal = nil
			return m, m.runInit

		case "enter":
			if m.fatal != nil {
				return m, tea.Quit
			}
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}
			m.input.Reset()
			m.err = nil
			return m, m.runUpdate(value)
		}

	case transitionMsg:
		if msg.err != nil {
			m.err = msg.err
			if msg.fatal {
				m.fatal = msg.err
			}
			return m, nil
		}
		m.state = msg.state
		m.effects = msg.effects
		m.ui = msg.ui
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *scriptModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Canscript"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	if m.fatal != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.fatal)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter quit • ctrl+r retry"))
		return b.String()
	}

	if m.ui == nil {
		return b.String() + "Loading script...\n"
	}

	b.WriteString(renderUI(m.ui, 0))
	b.WriteString("\n")

	if m.effects != nil && !emptyEffects(m.effects) {
		b.WriteString(effectStyle.Render("effects: " + string(m.effects)))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter send message • ctrl+r reset • esc quit"))
	return b.String()
}

// renderUI pretty-prints a view tree. Objects carrying a "type" field
// render as nodes with their remaining fields as attributes; arrays
// render as indented children.
func renderUI(raw json.RawMessage, depth int) string {
	indent := strings.Repeat("  ", depth)

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return indent + string(raw) + "\n"
	}

	switch v := v.(type) {
	case map[string]any:
		var b strings.Builder
		name := "node"
		if t, ok := v["type"].(string); ok {
			name = t
		}
		b.WriteString(indent + nodeStyle.Render(name))
		keys := make([]string, 0, len(v))
		for k := range v {
			if k != "type" && k != "children" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" " + keyStyle.Render(k) + "=" + fmt.Sprintf("%v", v[k]))
		}
		b.WriteString("\n")
		if children, ok := v["children"].([]any); ok {
			for _, c := range children {
				raw, err := json.Marshal(c)
				if err != nil {
					continue
				}
				b.WriteString(renderUI(raw, depth+1))
			}
		}
		return b.String()

	case []any:
		var b strings.Builder
		for _, c := range v {
			raw, err := json.Marshal(c)
			if err != nil {
				continue
			}
			b.WriteString(renderUI(raw, depth+1))
		}
		return b.String()

	default:
		return indent + fmt.Sprintf("%v", v) + "\n"
	}
}

func emptyEffects(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "{}" || s == "[]" || s == "null"
}

func runInteractive(filename, initArg string, budgetMillis int64) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	source, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newScriptModel(filename, string(source), initArg, budgetMillis), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
