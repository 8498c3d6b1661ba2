package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

type column struct {
	title string
	field string
	width int
}

var tableColumns = map[models.ObjectType][]column{
	models.TypeOpportunity: {
		{"Name", models.FieldName, 30},
		{"Account", models.FieldAccountName, 20},
		{"Stage", models.FieldStage, 15},
		{"Amount", models.FieldAmount, 12},
		{"Close", models.FieldCloseDate, 12},
	},
	models.TypeContact: {
		{"Name", models.FieldName, 25},
		{"Email", models.FieldEmail, 30},
		{"Phone", models.FieldPhone, 15},
		{"Title", models.FieldTitle, 20},
	},
	models.TypeLead: {
		{"Name", models.FieldName, 25},
		{"Email", models.FieldEmail, 30},
		{"Status", models.FieldStatus, 15},
	},
	models.TypeAccount: {
		{"Name", models.FieldName, 35},
		{"Owner", models.FieldOwnerName, 25},
	},
	models.TypeTask: {
		{"Subject", models.FieldName, 35},
		{"Status", models.FieldStatus, 15},
		{"Due", models.FieldDueDate, 12},
	},
}

func columnsFor(t models.ObjectType) []table.Column {
	cols := []table.Column{{Title: "ID", Width: 20}}
	for _, c := range tableColumns[t] {
		cols = append(cols, table.Column{Title: c.title, Width: c.width})
	}
	return cols
}

func rowFor(t models.ObjectType, e query.Entry) table.Row {
	row := table.Row{e.ID}
	for _, c := range tableColumns[t] {
		row = append(row, e.Record.Get(c.field).Text())
	}
	return row
}

// setEntries replaces the visible rows, keeping the cursor in range.
func (m *Model) setEntries(entries []query.Entry) {
	if !m.showAll {
		entries = query.Active(entries)
	}
	m.entries = entries

	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = rowFor(m.objectType, e)
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m Model) selected() (query.Entry, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.entries) {
		return query.Entry{}, false
	}
	return m.entries[i], true
}

func (m Model) renderListView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("SFCRM RECORDS"))
	s.WriteString("\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if len(m.entries) == 0 {
		s.WriteString(fmt.Sprintf("No %s records yet", m.objectType))
	} else {
		s.WriteString(m.table.View())
	}
	s.WriteString("\n")

	s.WriteString(m.renderStatus())
	s.WriteString(m.renderListHelp())
	return s.String()
}

func (m Model) renderTabs() string {
	var rendered []string
	for _, t := range models.ObjectTypes {
		label, _ := t.BucketKey()
		if t == m.objectType {
			rendered = append(rendered, tabActiveStyle.Render(label))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderStatus() string {
	var lines []string
	if m.err != nil {
		lines = append(lines, errorStyle.Render("Error: "+m.err.Error()))
	}
	if m.undo != nil {
		lines = append(lines, statusStyle.Render(fmt.Sprintf("Deleted %s. Press u to undo.", m.undo.id)))
	} else if m.status != "" {
		lines = append(lines, statusStyle.Render(m.status))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n" + strings.Join(lines, "\n")
}

func (m Model) renderListHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Tab: Switch type",
		"Enter: View details",
		"d: Delete",
		"u: Undo",
		"a: Toggle deleted",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) switchType(delta int) Model {
	n := len(models.ObjectTypes)
	for i, t := range models.ObjectTypes {
		if t == m.objectType {
			m.objectType = models.ObjectTypes[(i+delta+n)%n]
			break
		}
	}
	m.table.SetRows(nil)
	m.table.SetColumns(columnsFor(m.objectType))
	m.table.SetCursor(0)
	m.entries = nil
	return m
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		m = m.switchType(1)
		return m, m.loadRecords()
	case "shift+tab":
		m = m.switchType(-1)
		return m, m.loadRecords()
	case "a":
		m.showAll = !m.showAll
		return m, m.loadRecords()
	case "enter":
		if e, ok := m.selected(); ok {
			m.viewMode = ViewDetail
			m.selectedID = e.ID
		}
		return m, nil
	case "d":
		return m.deleteSelected()
	case "u":
		return m.undoDelete()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}
