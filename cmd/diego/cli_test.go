package diego

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/diego/internal/audit"
	"github.com/varalys/diego/internal/report"
	"github.com/varalys/diego/internal/tui"
	"github.com/varalys/diego/internal/types"
	"github.com/varalys/diego/pkg/die/dietest"
)

// resetFlags restores every flag of every command to its default so
// in-process runs do not leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI in-process with a private state dir.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Setenv("DIE_DB_PATH", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--no-update-check", "--no-color"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func withStub(t *testing.T, respond dietest.Responder) *dietest.Native {
	t.Helper()
	stub := dietest.New()
	stub.Respond = respond
	scanNative = stub
	t.Cleanup(func() { scanNative = nil })
	return stub
}

func classify(content []byte, _ uint32) string {
	if bytes.HasPrefix(content, []byte("MZ")) {
		return "PE32\n    Linker: stub"
	}
	return "Binary"
}

func sampleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.exe"), []byte("MZ\x90\x00"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0, 1, 2, 3}, 0644))
	return dir
}

func TestScan_JSONReport(t *testing.T) {
	stub := withStub(t, dietest.ByContent(classify))
	dir := sampleDir(t)
	state := t.TempDir()

	out, err := execute(t, "--state-dir", state, "scan", dir, "-o", "json", "--flags", "deep")
	require.NoError(t, err)

	var env report.Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	assert.Equal(t, "diego", env.Tool)
	require.Len(t, env.Detections, 2)
	assert.Equal(t, "app.exe", env.Detections[0].Path)
	assert.Equal(t, "PE32", env.Detections[0].FileType)
	assert.Equal(t, "Binary", env.Detections[1].FileType)
	assert.Equal(t, 2, env.Stats.FilesScanned)
	assert.Equal(t, 0, stub.Live())

	_, err = os.Stat(filepath.Join(state, "last_scan.json"))
	assert.NoError(t, err)
}

func TestScan_LastReplaysPreviousResults(t *testing.T) {
	stub := withStub(t, dietest.ByContent(classify))
	dir := sampleDir(t)
	state := t.TempDir()

	_, err := execute(t, "--state-dir", state, "scan", dir, "--no-cache")
	require.NoError(t, err)
	calls := len(stub.Calls())

	out, err := execute(t, "--state-dir", state, "scan", "--last", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, calls, len(stub.Calls()), "replay must not call the engine")
	assert.Contains(t, out, `"app.exe"`)
}

func TestScan_FailOnErrorExitCode(t *testing.T) {
	withStub(t, func(c dietest.Call) []byte {
		if strings.HasSuffix(c.Path, "blob.bin") {
			return nil
		}
		return []byte("PE32")
	})
	dir := sampleDir(t)

	_, err := execute(t, "--state-dir", t.TempDir(), "scan", dir, "--no-cache", "--fail-on-error", "-o", "json")
	var ee *exitError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, 1, ee.code)
}

func stubTUI(t *testing.T) (*[]types.Detection, *tui.RescanFunc, *tui.Options) {
	t.Helper()
	var (
		dets   []types.Detection
		rescan tui.RescanFunc
		opts   tui.Options
	)
	orig := runTUI
	runTUI = func(d []types.Detection, r tui.RescanFunc, o tui.Options) error {
		dets, rescan, opts = d, r, o
		return nil
	}
	t.Cleanup(func() { runTUI = orig })
	return &dets, &rescan, &opts
}

func TestScan_TUIBrowsesResults(t *testing.T) {
	stub := withStub(t, dietest.ByContent(classify))
	dets, rescan, opts := stubTUI(t)
	dir := sampleDir(t)

	out, err := execute(t, "--state-dir", t.TempDir(), "scan", dir, "--no-cache", "--tui")
	require.NoError(t, err)
	assert.Empty(t, out, "the text report is replaced by the browser")
	require.Len(t, *dets, 2)
	assert.Contains(t, (*dets)[0].Result, "Linker: stub")
	assert.Equal(t, dir, opts.Root)
	assert.False(t, opts.Color)

	require.NotNil(t, *rescan)
	calls := len(stub.Calls())
	again, err := (*rescan)()
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Greater(t, len(stub.Calls()), calls, "rescan must call the engine again")
}

func TestScan_TUILastHasNoRescan(t *testing.T) {
	withStub(t, dietest.ByContent(classify))
	dir := sampleDir(t)
	state := t.TempDir()
	_, err := execute(t, "--state-dir", state, "scan", dir, "--no-cache")
	require.NoError(t, err)

	dets, rescan, opts := stubTUI(t)
	_, err = execute(t, "--state-dir", state, "scan", "--last", "--tui")
	require.NoError(t, err)
	assert.Len(t, *dets, 2)
	assert.Nil(t, *rescan)
	assert.False(t, opts.ScannedAt.IsZero())
}

func TestHistory_TUIGetsAuditLog(t *testing.T) {
	state := t.TempDir()
	log := audit.NewAuditLog(filepath.Join(state, "build_audit.jsonl"))
	require.NoError(t, log.LogBuild(audit.BuildRecord{BuildID: "b1", Target: "linux/amd64/release", Status: audit.StatusBuilt}))
	require.NoError(t, log.LogBuild(audit.BuildRecord{BuildID: "b2", Target: "linux/amd64/release", Status: audit.StatusUpToDate}))

	var (
		got   []audit.BuildRecord
		store tui.HistoryStore
	)
	orig := runHistoryTUI
	runHistoryTUI = func(r []audit.BuildRecord, s tui.HistoryStore, _ bool) error {
		got, store = r, s
		return nil
	}
	t.Cleanup(func() { runHistoryTUI = orig })

	_, err := execute(t, "--state-dir", state, "history", "--tui")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b2", got[0].BuildID)

	require.NoError(t, store.DeleteRecord(0))
	left, err := log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b1", left[0].BuildID)
}

func TestScan_ConflictingFormats(t *testing.T) {
	withStub(t, dietest.Echo)
	_, err := execute(t, "--state-dir", t.TempDir(), "scan", sampleDir(t), "--flags", "json,xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting result formats")
}

func TestScanFlags_FormatReplacesFlagFormat(t *testing.T) {
	f, err := scanFlags("deep,json", "xml")
	require.NoError(t, err)
	assert.Equal(t, "deep|xml", f.String())

	_, err = scanFlags("deep", "yaml")
	assert.Error(t, err)
}

func TestPlan_JSON(t *testing.T) {
	out, err := execute(t, "--state-dir", t.TempDir(), "plan", "--target", "x86_64-unknown-linux-gnu", "-o", "json")
	require.NoError(t, err)

	var p struct {
		Target      string `json:"target"`
		OS          string `json:"os"`
		Fingerprint string `json:"fingerprint"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &p), out)
	assert.Equal(t, "linux", p.OS)
	assert.NotEmpty(t, p.Fingerprint)
}

func TestPlan_WindowsKitLib(t *testing.T) {
	base := []string{"--state-dir", t.TempDir(), "plan", "--target", "x86_64-pc-windows-msvc", "--build-type", "debug", "-o", "ldflags"}

	out, err := execute(t, base...)
	require.NoError(t, err)
	assert.Contains(t, out, "10.0.22000.0/ucrt/x64")

	out, err = execute(t, append(base, "--windows-kit-lib", `C:\kits\10\Lib\10.0.26100.0`)...)
	require.NoError(t, err)
	assert.Contains(t, out, "C:/kits/10/Lib/10.0.26100.0/ucrt/x64")
	assert.NotContains(t, out, "10.0.22000.0")
}

func TestPlanAndBuildHelp_MentionWindowsKit(t *testing.T) {
	for _, name := range []string{"plan", "build"} {
		out, err := execute(t, name, "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "10.0.22000.0", name)
		assert.Contains(t, out, "--windows-kit-lib", name)
		assert.Contains(t, out, "engine.windows_kit_lib", name)
	}
}

func TestPlan_RejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "--state-dir", t.TempDir(), "plan", "-o", "yaml")
	require.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".diego.yml")
	_, err := execute(t, "config", "init", "--output", path, "--flags", "deep,heuristic", "--db", "/opt/die/db")
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "deep,heuristic")
	assert.Contains(t, string(b), "/opt/die/db")
	gi, err := os.ReadFile(filepath.Join(filepath.Dir(path), ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".diego/\n", string(gi))

	_, err = execute(t, "config", "init", "--output", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestHistory_Empty(t *testing.T) {
	out, err := execute(t, "--state-dir", t.TempDir(), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No builds recorded.")
}

func TestDBCheck_ReportsEngineStatus(t *testing.T) {
	stub := withStub(t, dietest.Echo)
	stub.LoadStatus = 2
	_, err := execute(t, "db", "check", "/nowhere")
	require.Error(t, err)

	stub.LoadStatus = 0
	out, err := execute(t, "db", "check", "/opt/die/db")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded /opt/die/db")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "diego "+version)
	assert.Contains(t, out, "engine: ")
}

func TestReplaceSection(t *testing.T) {
	in := []byte("intro\n" + flagsBegin + "\nold\n" + flagsEnd + "\ntail\n")
	out, err := replaceSection(in, flagsBegin, flagsEnd, flagsTable())
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "old")
	assert.Contains(t, s, "| `deep` | `0x1` |")
	assert.Contains(t, s, "| `json` | `0x20000` |")
	assert.True(t, strings.HasSuffix(s, flagsEnd+"\ntail\n"))

	_, err = replaceSection([]byte("no markers"), flagsBegin, flagsEnd, "x")
	assert.Error(t, err)
}
