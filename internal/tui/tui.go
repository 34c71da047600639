// Package tui is a terminal front end for the level meter, for machines
// without a menu bar or for watching levels over SSH.
package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/petems/lineout/internal/devices"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))
)

// Controller is what the terminal UI drives. *app.App satisfies it.
type Controller interface {
	Toggle()
	SelectInput(id string)
	Refresh()
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Toggle  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "use device")),
	Toggle:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/stop")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) help() string {
	parts := make([]string, 0, 6)
	for _, b := range []key.Binding{k.Up, k.Down, k.Select, k.Toggle, k.Refresh, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// Messages the app pushes in through View.
type (
	inputsMsg    struct{ list devices.List }
	outputsMsg   struct {
		list          devices.List
		followDefault bool
	}
	levelsMsg    struct{ left, right int }
	listeningMsg bool
	errMsg       struct{ err error }
)

// Model is the bubbletea model: the input list with a cursor, the output in
// use and a stereo meter.
type Model struct {
	ctl     Controller
	scale   int
	monitor bool

	inputs        devices.List
	outputs       devices.List
	followDefault bool
	cursor        int
	left          int
	right         int
	listening     bool
	err           error
}

// New builds the model. monitor reports whether captured audio is played
// back, which only changes the status line.
func New(ctl Controller, scale int, monitor bool) Model {
	return Model{
		ctl:     ctl,
		scale:   scale,
		monitor: monitor,
		inputs:  devices.List{Direction: devices.Input, Selected: devices.NoSelection},
		outputs: devices.List{Direction: devices.Output, Selected: devices.NoSelection},
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case inputsMsg:
		m.inputs = msg.list
		if m.inputs.Selected != devices.NoSelection {
			m.cursor = m.inputs.Selected
		}
		m.cursor = max(0, min(m.cursor, len(m.inputs.Entries)-1))

	case outputsMsg:
		m.outputs, m.followDefault = msg.list, msg.followDefault

	case levelsMsg:
		m.left, m.right = msg.left, msg.right

	case listeningMsg:
		m.listening = bool(msg)
		if m.listening {
			m.err = nil
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.inputs.Entries)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Select):
			if m.cursor < len(m.inputs.Entries) {
				id := m.inputs.Entries[m.cursor].ID
				return m, m.command(func(c Controller) { c.SelectInput(id) })
			}
		case key.Matches(msg, keys.Toggle):
			return m, m.command(Controller.Toggle)
		case key.Matches(msg, keys.Refresh):
			return m, m.command(Controller.Refresh)
		}
	}
	return m, nil
}

// command runs fn against the controller off the UI goroutine.
func (m Model) command(fn func(Controller)) tea.Cmd {
	ctl := m.ctl
	if ctl == nil {
		return nil
	}
	return func() tea.Msg {
		fn(ctl)
		return nil
	}
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("LineOut"))
	sb.WriteString("\n\n")
	sb.WriteString(meterLine(m.left, m.right, m.scale))
	sb.WriteString("\n\n")

	status := "Idle"
	if m.listening {
		status = "Listening"
	}
	sb.WriteString(infoStyle.Render(status))
	if text := m.monitorText(); text != "" {
		sb.WriteString(dimStyle.Render(" • " + text))
	}
	sb.WriteString("\n\n")

	sb.WriteString(m.renderInputs())

	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(keys.help()))
	return sb.String()
}

func (m Model) renderInputs() string {
	if m.inputs.Empty() {
		return dimStyle.Render(m.inputs.Placeholder()) + "\n"
	}

	var sb strings.Builder
	for i, e := range m.inputs.Entries {
		cursor := "  "
		if i == m.cursor {
			cursor = "▶ "
		}
		mark := "( )"
		if i == m.inputs.Selected {
			mark = "(•)"
		}

		line := fmt.Sprintf("%s%s %s", cursor, mark, e.Name)
		if label := e.Transport.Label(); label != "" {
			line += dimStyle.Render(" [" + label + "]")
		}
		if e.Default {
			line += dimStyle.Render(" default")
		}
		if i == m.cursor {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// monitorText names where audio is played back, or "" when nothing is.
func (m Model) monitorText() string {
	if !m.listening || !m.monitor {
		return ""
	}
	out, ok := m.outputs.SelectedDevice()
	switch {
	case !ok:
		return "monitoring on system default"
	case m.followDefault:
		return "monitoring on " + out.Name + " (default)"
	default:
		return "monitoring on " + out.Name
	}
}

// meterLine renders both channels around a divider, the left bar mirrored
// so levels grow outwards: " 3 ░█████|██░░░  2".
func meterLine(left, right, scale int) string {
	left = max(0, min(left, scale))
	right = max(0, min(right, scale))
	l := dimStyle.Render(strings.Repeat("░", scale-left)) + highlightStyle.Render(strings.Repeat("█", left))
	r := highlightStyle.Render(strings.Repeat("█", right)) + dimStyle.Render(strings.Repeat("░", scale-right))
	return fmt.Sprintf("L %2d %s│%s %2d R", left, l, r, right)
}

// View adapts a running tea.Program to the app's view interface. Calls made
// before Attach are dropped; the app re-sends full state on every change.
type View struct {
	mu sync.Mutex
	p  *tea.Program
}

func (v *View) Attach(p *tea.Program) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.p = p
}

func (v *View) send(msg tea.Msg) {
	v.mu.Lock()
	p := v.p
	v.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (v *View) ShowInputs(list devices.List) { v.send(inputsMsg{list}) }
func (v *View) ShowOutputs(list devices.List, followDefault bool) {
	v.send(outputsMsg{list, followDefault})
}
func (v *View) ShowLevels(left, right int)   { v.send(levelsMsg{left, right}) }
func (v *View) ShowListening(listening bool) { v.send(listeningMsg(listening)) }
func (v *View) ShowError(err error)          { v.send(errMsg{err}) }
