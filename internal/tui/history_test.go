package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/varalys/diego/internal/audit"
)

type memStore struct {
	records   []audit.BuildRecord
	deleteErr error
}

func (s *memStore) LoadHistory() ([]audit.BuildRecord, error) {
	return append([]audit.BuildRecord(nil), s.records...), nil
}

func (s *memStore) DeleteRecord(i int) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return nil
}

func sampleRecords() []audit.BuildRecord {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	return []audit.BuildRecord{
		{Timestamp: ts, BuildID: "b3", Target: "linux/amd64/release", Status: audit.StatusFailed,
			FailedStage: "cmake build", ExitCode: -1, Interrupted: true, Error: "cmake build: cmake was interrupted"},
		{Timestamp: ts.Add(-time.Hour), BuildID: "b2", Target: "linux/amd64/release", Status: audit.StatusUpToDate, Fingerprint: "abc123"},
		{Timestamp: ts.Add(-2 * time.Hour), BuildID: "b1", Target: "windows/amd64/debug", Status: audit.StatusBuilt, Fingerprint: "def456"},
	}
}

func historyPress(m HistoryModel, keys ...string) (HistoryModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(HistoryModel)
	}
	return m, cmd
}

func sizedHistory(m HistoryModel) HistoryModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 60})
	return next.(HistoryModel)
}

func TestHistoryModel_RowsAndDetail(t *testing.T) {
	store := &memStore{records: sampleRecords()}
	m := sizedHistory(NewHistoryModel(store.records, store, false))

	rows := m.table.Rows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][2] != "failed*" {
		t.Errorf("interrupted builds should be marked, got %q", rows[0][2])
	}
	view := m.viewport.View()
	for _, want := range []string{"Build b3", `"failed_stage": "cmake build"`, `"interrupted": true`} {
		if !strings.Contains(view, want) {
			t.Errorf("detail pane missing %q:\n%s", want, view)
		}
	}

	m, _ = historyPress(m, "j")
	if !strings.Contains(m.viewport.View(), `"fingerprint": "abc123"`) {
		t.Errorf("detail pane did not follow the cursor:\n%s", m.viewport.View())
	}
}

func TestHistoryModel_DeleteConfirm(t *testing.T) {
	store := &memStore{records: sampleRecords()}
	m := sizedHistory(NewHistoryModel(sampleRecords(), store, false))

	m, _ = historyPress(m, "j", "d")
	if !m.confirmDelete {
		t.Fatal("d should ask for confirmation")
	}
	m, _ = historyPress(m, "n")
	if len(store.records) != 3 || len(m.records) != 3 {
		t.Fatal("declined delete must keep the record")
	}

	m, _ = historyPress(m, "d", "y")
	if len(store.records) != 2 || len(m.records) != 2 {
		t.Fatalf("expected 2 records after delete, got store=%d model=%d", len(store.records), len(m.records))
	}
	for _, r := range m.records {
		if r.BuildID == "b2" {
			t.Fatal("b2 should be deleted")
		}
	}
	if !strings.Contains(m.statusMessage, "Deleted record 1") {
		t.Errorf("status = %q", m.statusMessage)
	}

	m, _ = historyPress(m, "G", "d", "y")
	if len(m.records) != 1 || m.table.Cursor() != 0 {
		t.Fatalf("cursor should clamp after deleting the last row: records=%d cursor=%d", len(m.records), m.table.Cursor())
	}
}

func TestHistoryModel_DeleteError(t *testing.T) {
	store := &memStore{records: sampleRecords(), deleteErr: errors.New("read-only")}
	m := sizedHistory(NewHistoryModel(sampleRecords(), store, false))

	m, _ = historyPress(m, "d", "y")
	if len(m.records) != 3 {
		t.Fatal("failed delete must keep the table")
	}
	if !strings.Contains(m.statusMessage, "Delete failed: read-only") {
		t.Errorf("status = %q", m.statusMessage)
	}
}

func TestHistoryModel_CopyRecord(t *testing.T) {
	got := stubClipboard(t, nil)
	m := sizedHistory(NewHistoryModel(sampleRecords(), nil, false))

	_, cmd := historyPress(m, "y")
	if cmd == nil {
		t.Fatal("expected a command")
	}
	cmd()
	if !strings.Contains(*got, `"build_id": "b3"`) || !strings.Contains(*got, `"exit_code": -1`) {
		t.Errorf("clipboard should hold the record JSON, got %s", *got)
	}

	m, _ = historyPress(m, "d")
	if m.confirmDelete {
		t.Error("delete needs a store")
	}
}

func TestHistoryModel_Empty(t *testing.T) {
	m := sizedHistory(NewHistoryModel(nil, &memStore{}, false))
	if !strings.Contains(m.View(), "No builds recorded.") {
		t.Error("empty history should say so")
	}
	m, cmd := historyPress(m, "q")
	if !m.quitting || cmd == nil {
		t.Fatal("q should quit")
	}
}
