package tui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/varalys/diego/internal/audit"
	"github.com/varalys/diego/internal/report"
	"github.com/varalys/diego/pkg/die"
)

const historyHelp = "q: quit | j/k: navigate | y: copy record | d: delete record"

// HistoryStore is the audit log as the history browser uses it.
type HistoryStore interface {
	LoadHistory() ([]audit.BuildRecord, error)
	DeleteRecord(index int) error
}

// HistoryModel browses build audit records, newest first, with the selected
// record in full below the table.
type HistoryModel struct {
	table    table.Model
	viewport viewport.Model
	store    HistoryStore
	records  []audit.BuildRecord
	color    bool
	quitting bool
	ready    bool
	height   int
	width    int

	confirmDelete bool
	statusMessage string
	statusTimeout *time.Time
}

// NewHistoryModel initializes a history browser over records loaded from
// store.
func NewHistoryModel(records []audit.BuildRecord, store HistoryStore, color bool) HistoryModel {
	m := HistoryModel{
		table: newTable([]table.Column{
			{Title: "Time", Width: 19},
			{Title: "Target", Width: 30},
			{Title: "Status", Width: 10},
			{Title: "Duration", Width: 12},
		}),
		store:         store,
		color:         color,
		statusMessage: historyHelp,
	}
	m.setRecords(records)
	return m
}

func (m *HistoryModel) setRecords(records []audit.BuildRecord) {
	m.records = records
	rows := make([]table.Row, len(records))
	for i, r := range records {
		status := r.Status
		if r.Interrupted {
			status += "*"
		}
		rows[i] = table.Row{r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Target, status, r.Duration}
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(records) && len(records) > 0 {
		m.table.SetCursor(len(records) - 1)
	}
	m.updateViewportContent()
}

func (m HistoryModel) selected() *audit.BuildRecord {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.records) {
		return nil
	}
	return &m.records[idx]
}

// recordText is the indented JSON form of a record, as copied to the
// clipboard.
func recordText(r audit.BuildRecord) string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", r)
	}
	return string(b)
}

func (m *HistoryModel) updateViewportContent() {
	r := m.selected()
	if r == nil || !m.ready {
		m.viewport.SetContent("")
		return
	}
	text := recordText(*r)
	if m.color {
		text = report.Highlight(text, die.ResultAsJSON)
	}
	header := titleStyle.Render(fmt.Sprintf("Build %s", r.BuildID))
	if r.Status == audit.StatusFailed {
		header += " " + failedStyle.Render(r.Error)
	}
	m.viewport.SetContent(header + "\n\n" + text)
	m.viewport.GotoTop()
}

func (m *HistoryModel) setStatus(msg string, d time.Duration) {
	timeout := time.Now().Add(d)
	m.statusTimeout = &timeout
	m.statusMessage = msg
}

// deleteSelected removes the record under the cursor from the store and
// reloads the table from it.
func (m *HistoryModel) deleteSelected() {
	idx := m.table.Cursor()
	if m.store == nil || idx < 0 || idx >= len(m.records) {
		return
	}
	if err := m.store.DeleteRecord(idx); err != nil {
		m.setStatus(fmt.Sprintf("Delete failed: %v", err), 5*time.Second)
		return
	}
	records, err := m.store.LoadHistory()
	if err != nil {
		m.setStatus(fmt.Sprintf("Reload failed: %v", err), 5*time.Second)
		return
	}
	m.setRecords(records)
	m.setStatus(fmt.Sprintf("Deleted record %d", idx), 3*time.Second)
}

func (m HistoryModel) Init() tea.Cmd { return nil }

func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmDelete {
			m.confirmDelete = false
			if msg.String() == "y" {
				m.deleteSelected()
			} else {
				m.setStatus("Delete cancelled", 3*time.Second)
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "y":
			if r := m.selected(); r != nil {
				return m, copyCmd(recordText(*r), "build "+r.BuildID)
			}
		case "d", "delete":
			if m.selected() != nil && m.store != nil {
				m.confirmDelete = true
				m.statusMessage = "Delete this record? (y/n)"
			}
			return m, nil
		case "down", "j", "up", "k", "g", "G", "home", "end":
			m.table, cmd = m.table.Update(msg)
			m.updateViewportContent()
			return m, cmd
		case "pgdown", "pgup", "ctrl+d", "ctrl+u":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		cols := m.table.Columns()
		if w := m.width - 10 - cols[0].Width - cols[2].Width - cols[3].Width; w > cols[1].Width {
			cols[1].Width = w
		}
		m.table.SetColumns(cols)

		tableHeight, viewportHeight := paneHeights(m.height)
		m.table.SetWidth(m.width)
		m.table.SetHeight(tableHeight)
		if m.viewport.Height == 0 {
			m.viewport = viewport.New(m.width, viewportHeight)
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.updateViewportContent()

	case statusMsg:
		m.setStatus(string(msg), 3*time.Second)
	}

	if m.statusTimeout != nil && time.Now().After(*m.statusTimeout) {
		m.statusTimeout = nil
		m.statusMessage = historyHelp
	}
	return m, nil
}

func (m HistoryModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	var failed int
	for _, r := range m.records {
		if r.Status == audit.StatusFailed {
			failed++
		}
	}
	stats := fmt.Sprintf("Builds: %-4d  |  %s %-4d", len(m.records), failedStyle.Render("Failed:"), failed)

	var detail string
	if len(m.records) == 0 {
		detail = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center,
			emptyTextStyle.Render("No builds recorded."))
	} else {
		detail = m.viewport.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		statsHeader(m.width, stats),
		tableBorderStyle.Width(m.width).Height(m.table.Height()).Render(m.table.View()),
		detailPaneBorderStyle.Width(m.width).Height(m.viewport.Height).Render(detail),
		statusBar(m.width, m.statusMessage, ""),
	)
}
