package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/sfcrm/query"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	nullValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

func (m Model) detailEntry() (query.Entry, bool) {
	for _, e := range m.entries {
		if e.ID == m.selectedID {
			return e, true
		}
	}
	return query.Entry{}, false
}

func (m Model) renderDetailView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(strings.ToUpper(string(m.objectType)) + " DETAIL"))
	s.WriteString("\n\n")

	e, ok := m.detailEntry()
	if !ok {
		s.WriteString(fmt.Sprintf("Record %s is no longer listed", m.selectedID))
	} else {
		s.WriteString(fieldLabelStyle.Render("id"))
		s.WriteString(fieldValueStyle.Render(e.ID))
		s.WriteString("\n")
		for _, field := range e.Record.Fields() {
			v := e.Record.Get(field)
			s.WriteString(fieldLabelStyle.Render(field))
			if v.IsNull() {
				s.WriteString(nullValueStyle.Render("null"))
			} else {
				s.WriteString(fieldValueStyle.Render(v.Text()))
			}
			s.WriteString("\n")
		}
	}

	s.WriteString(m.renderStatus())
	s.WriteString(helpStyle.Render("Esc: Back • d: Delete • u: Undo • q: Quit"))
	return s.String()
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.viewMode = ViewList
		m.selectedID = ""
	case "d":
		if e, ok := m.detailEntry(); ok {
			m.viewMode = ViewList
			for i := range m.entries {
				if m.entries[i].ID == e.ID {
					m.table.SetCursor(i)
				}
			}
			return m.deleteSelected()
		}
	case "u":
		return m.undoDelete()
	}
	return m, nil
}
