// Package tui implements the interactive browsers behind scan --tui and
// history --tui.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/varalys/diego/internal/audit"
	"github.com/varalys/diego/internal/types"
)

// Run browses detections until the user quits. rescan may be nil.
func Run(dets []types.Detection, rescan RescanFunc, opts Options) error {
	m := NewModel(dets, rescan, opts)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// RunHistory browses the build audit log until the user quits.
func RunHistory(records []audit.BuildRecord, store HistoryStore, color bool) error {
	m := NewHistoryModel(records, store, color)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
