package tui

import (
	"fmt"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

// writeClipboard is replaced in tests; the real clipboard needs a display
// or pbcopy/xclip on PATH.
var writeClipboard = clipboard.WriteAll

func copyCmd(text, label string) tea.Cmd {
	if err := writeClipboard(text); err != nil {
		return func() tea.Msg { return statusMsg(fmt.Sprintf("Clipboard error: %v", err)) }
	}
	return func() tea.Msg { return statusMsg("Copied " + label) }
}

// copyResultToClipboard copies the selected file's full engine result, or
// its error when the scan failed.
func (m Model) copyResultToClipboard() tea.Cmd {
	d := m.selected()
	if d == nil {
		return func() tea.Msg { return statusMsg("No file selected") }
	}
	if d.Failed() {
		return copyCmd(d.Error, "error for "+d.Path)
	}
	return copyCmd(d.Result, "result for "+d.Path)
}

func (m Model) copyPathToClipboard() tea.Cmd {
	d := m.selected()
	if d == nil {
		return func() tea.Msg { return statusMsg("No file selected") }
	}
	return copyCmd(d.Path, d.Path)
}
