// ABOUTME: Soft delete with a timed undo window for the TUI
// ABOUTME: The pre-delete record is held until the window closes so u can merge it back
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/sfcrm/models"
)

// pendingUndo is the last deletion, restorable until its window closes.
type pendingUndo struct {
	seq        int
	objectType models.ObjectType
	id         string
	previous   models.Record
}

type deletedMsg struct {
	objectType models.ObjectType
	id         string
	previous   models.Record
}

type undoneMsg struct{ id string }

type undoExpiredMsg struct{ seq int }

func (m Model) deleteSelected() (tea.Model, tea.Cmd) {
	e, ok := m.selected()
	if !ok {
		return m, nil
	}
	if e.Record.Deleted() {
		m.status = e.ID + " is already deleted"
		return m, nil
	}

	store, t := m.store, m.objectType
	previous := e.Record.Clone()
	return m, func() tea.Msg {
		if _, err := store.SoftDelete(context.Background(), t, e.ID); err != nil {
			return errMsg{err}
		}
		return deletedMsg{objectType: t, id: e.ID, previous: previous}
	}
}

func (m Model) handleDeleted(msg deletedMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	m.status = "Deleted " + msg.id
	if m.undoWindow <= 0 {
		m.undo = nil
		return m, m.loadRecords()
	}

	m.undoSeq++
	seq := m.undoSeq
	m.undo = &pendingUndo{seq: seq, objectType: msg.objectType, id: msg.id, previous: msg.previous}
	expire := tea.Tick(m.undoWindow, func(time.Time) tea.Msg { return undoExpiredMsg{seq: seq} })
	return m, tea.Batch(m.loadRecords(), expire)
}

func (m Model) undoDelete() (tea.Model, tea.Cmd) {
	if m.undo == nil {
		m.status = "Nothing to undo"
		return m, nil
	}

	u := m.undo
	store := m.store
	m.undo = nil
	return m, func() tea.Msg {
		if _, err := store.UndoDelete(context.Background(), u.objectType, u.previous); err != nil {
			return errMsg{err}
		}
		return undoneMsg{id: u.id}
	}
}
