package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/varalys/diego/pkg/die"
)

func TestView_Rendering(t *testing.T) {
	m := NewModel(sampleDetections(), nil, Options{Root: "/srv/samples"})
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View before sizing = %q", got)
	}
	m = sized(m)

	// 1. Basic view
	output := m.View()
	for _, want := range []string{"/srv/samples", "Files: 4", "app/broken.bin"} {
		if !strings.Contains(output, want) {
			t.Errorf("view missing %q", want)
		}
	}

	// 2. Help overlay, closed by any key
	m, _ = press(m, "?")
	if !strings.Contains(m.View(), "copy the full engine result") {
		t.Error("help overlay not shown")
	}
	m, _ = press(m, "x")
	if m.showHelp {
		t.Error("any key should close help")
	}

	// 3. Search bar
	m, _ = press(m, "/", "e", "l", "f")
	if !strings.Contains(m.View(), "(1 matches)") {
		t.Error("search bar should count matches")
	}

	// 4. Empty
	empty := sized(NewModel(nil, nil, Options{}))
	if !strings.Contains(empty.View(), "No files were scanned.") {
		t.Error("empty view should say so")
	}
}

func TestView_HighlightsStructuredResults(t *testing.T) {
	dets := sampleDetections()[:1]
	dets[0].Result = `{"detects":[{"filetype":"PE64"}]}`
	dets[0].Flags = die.ResultAsJSON
	m := sized(NewModel(dets, nil, Options{Color: true}))
	if !strings.Contains(m.viewport.View(), "\x1b[") {
		t.Error("JSON results should be highlighted when color is on")
	}

	plain := sized(NewModel(dets, nil, Options{}))
	if strings.Contains(plain.viewport.View(), "\x1b[") {
		t.Error("no escape codes expected without color")
	}
}

func TestInit(t *testing.T) {
	m := NewModel(nil, nil, Options{})
	if m.Init() == nil {
		t.Error("Init returned nil command")
	}
	if NewHistoryModel(nil, nil, false).Init() != nil {
		t.Error("history Init should not start a command")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{48 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.expected)
		}
	}
}
