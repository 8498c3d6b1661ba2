// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Live record table fed by store subscriptions, with soft delete and a timed undo
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
)

// Store is what the TUI reads and writes through.
type Store interface {
	ListRecords(ctx context.Context, t models.ObjectType) ([]query.Entry, error)
	SoftDelete(ctx context.Context, t models.ObjectType, key string) (merge.Result, error)
	UndoDelete(ctx context.Context, t models.ObjectType, record models.Record) (merge.Result, error)
	Subscribe(fn func(models.Root)) func()
}

// Model is the main bubbletea model
type Model struct {
	store      Store
	viewMode   ViewMode
	objectType models.ObjectType
	showAll    bool

	entries []query.Entry
	table   table.Model

	// Detail view state
	selectedID string

	undo       *pendingUndo
	undoWindow time.Duration
	undoSeq    int

	changes chan models.Root

	status string
	err    error

	width  int
	height int
}

// NewModel creates a new TUI model. undoWindow <= 0 disables undo.
func NewModel(store Store, undoWindow time.Duration) Model {
	m := Model{
		store:      store,
		viewMode:   ViewList,
		objectType: models.TypeOpportunity,
		undoWindow: undoWindow,
		changes:    make(chan models.Root, 1),
		width:      100,
		height:     24,
	}
	m.table = table.New(
		table.WithColumns(columnsFor(m.objectType)),
		table.WithFocused(true),
		table.WithHeight(m.height-8),
	)
	return m
}

// Run starts the program and blocks until the user quits.
func Run(store Store, undoWindow time.Duration) error {
	m := NewModel(store, undoWindow)
	unsubscribe := store.Subscribe(func(root models.Root) {
		select {
		case m.changes <- root:
		default:
			select {
			case <-m.changes:
			default:
			}
			m.changes <- root
		}
	})
	defer unsubscribe()

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type recordsMsg struct {
	objectType models.ObjectType
	entries    []query.Entry
}

type rootMsg struct{ root models.Root }

type errMsg struct{ err error }

func (m Model) loadRecords() tea.Cmd {
	store, t := m.store, m.objectType
	return func() tea.Msg {
		entries, err := store.ListRecords(context.Background(), t)
		if err != nil {
			return errMsg{err}
		}
		return recordsMsg{objectType: t, entries: entries}
	}
}

func waitForChange(ch <-chan models.Root) tea.Cmd {
	return func() tea.Msg {
		return rootMsg{<-ch}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadRecords(), waitForChange(m.changes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(m.height-8, 3))
		m.table.SetColumns(columnsFor(m.objectType))
		return m, nil
	case recordsMsg:
		if msg.objectType == m.objectType {
			m.setEntries(msg.entries)
		}
		return m, nil
	case rootMsg:
		entries, err := query.Entries(msg.root, m.objectType)
		if err != nil {
			m.err = err
		} else {
			m.setEntries(entries)
		}
		return m, waitForChange(m.changes)
	case deletedMsg:
		return m.handleDeleted(msg)
	case undoneMsg:
		m.status = "Restored " + msg.id
		return m, m.loadRecords()
	case undoExpiredMsg:
		if m.undo != nil && m.undo.seq == msg.seq {
			m.undo = nil
			m.status = ""
		}
		return m, nil
	case errMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewDetail:
		return m.renderDetailView()
	default:
		return m.renderListView()
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	}
	return m, nil
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
)
