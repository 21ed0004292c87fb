package ui

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// InputModel is the single-line composer below the message view.
type InputModel struct {
	textinput textinput.Model
	focused   bool
	width     int
	height    int
}

func NewInputModel() InputModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 4000
	return InputModel{textinput: ti}
}

// Update sends on Enter. The line is cleared before the send completes.
// Edits are detected by the caller comparing Value before and after.
func (m InputModel) Update(msg tea.Msg) (InputModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		text := m.textinput.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.textinput.Reset()
		return m, func() tea.Msg { return sendMessageMsg{text: text} }
	}

	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	return m, cmd
}

// Restore puts back text whose send failed, unless the user has already
// started typing something else.
func (m InputModel) Restore(text string) InputModel {
	if m.textinput.Value() == "" {
		m.textinput.SetValue(text)
		m.textinput.CursorEnd()
	}
	return m
}

func (m InputModel) Value() string {
	return m.textinput.Value()
}

func (m InputModel) View() string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)
	return style.Render(m.textinput.View())
}

func (m InputModel) SetSize(w, h int) InputModel {
	m.width = w
	m.height = h
	inner := w - 2 - lipgloss.Width(m.textinput.Prompt) - 1
	if inner < 1 {
		inner = 1
	}
	m.textinput.SetWidth(inner)
	return m
}

func (m InputModel) SetFocused(f bool) InputModel {
	m.focused = f
	if f {
		m.textinput.Focus()
	} else {
		m.textinput.Blur()
	}
	return m
}
