package report

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/varalys/diego/internal/types"
	"github.com/varalys/diego/pkg/die"
)

func TestPrintText_NoDetections_ShowsFooter(t *testing.T) {
	var buf bytes.Buffer
	PrintText(&buf, nil, PrintOptions{NoColor: true, Duration: 1200 * time.Millisecond, FilesScanned: 10})
	out := buf.String()
	if !strings.Contains(out, "No files scanned") {
		t.Fatalf("expected empty message; got: %q", out)
	}
	if !strings.Contains(out, "Files scanned: 10") {
		t.Fatalf("expected footer with files scanned; got: %q", out)
	}
}

func TestPrintText_WithDetections(t *testing.T) {
	var buf bytes.Buffer
	dets := []types.Detection{
		{Path: "z.so", Result: "ELF64\n    Library: glibc"},
		{Path: "a.exe", Error: "die: engine returned no result"},
	}
	PrintText(&buf, dets, PrintOptions{NoColor: true})
	out := buf.String()
	if strings.Index(out, "a.exe") > strings.Index(out, "z.so") {
		t.Fatalf("expected sorted output; got: %q", out)
	}
	if !strings.Contains(out, "\n      Library: glibc\n") {
		t.Fatalf("expected indented result body; got: %q", out)
	}
	if !strings.Contains(out, "error: die: engine returned no result") {
		t.Fatalf("expected error line; got: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("no-color output contains escapes: %q", out)
	}
}

func TestPrintTable_WithDetections(t *testing.T) {
	var buf bytes.Buffer
	dets := []types.Detection{{Path: "bin/app.exe", Mode: types.ModeFile, FileType: "PE64", Cached: true}}
	if err := PrintTable(&buf, dets, PrintOptions{NoColor: true, FilesScanned: 1}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"bin/app.exe", "PE64", "yes", "Files scanned: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table; got: %q", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	dets := []types.Detection{{Path: "b"}, {Path: "a", Mode: types.ModeMemory, Flags: die.DeepScan}}
	if err := WriteJSON(&buf, "v1.2.3", "/src", dets, Stats{FilesScanned: 2}, 1500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	var env Envelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if env.SchemaVersion != SchemaVersion || env.Tool != "diego" || env.Version != "v1.2.3" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if len(env.Detections) != 2 || env.Detections[0].Path != "a" {
		t.Fatalf("expected sorted detections; got %+v", env.Detections)
	}
	if env.Stats.DurationSec != 1.5 {
		t.Fatalf("unexpected duration %v", env.Stats.DurationSec)
	}
}

func TestWriteJSON_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, "", "", nil, Stats{}, 0); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"detections": []`) {
		t.Fatalf("expected empty array; got %s", buf.String())
	}
}

func TestHighlight(t *testing.T) {
	plain := "PE64\n    Compiler: MSVC"
	if got := Highlight(plain, die.DeepScan); got != plain {
		t.Fatalf("plain results must pass through unchanged")
	}
	js := `{"detects": [{"filetype": "PE64"}]}`
	got := Highlight(js, die.ResultAsJSON)
	if got == js || !strings.Contains(got, "\x1b[") {
		t.Fatalf("expected highlighted JSON; got %q", got)
	}
}

func TestIsTerminal_NonFile(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatalf("buffer is not a terminal")
	}
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Fatalf("regular file is not a terminal")
	}
}
