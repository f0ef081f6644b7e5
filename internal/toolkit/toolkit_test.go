package toolkit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/diego/internal/procexec"
	"github.com/varalys/diego/internal/procexec/proctest"
	"github.com/varalys/diego/internal/target"
)

// fakeAqt simulates aqt by creating <out>/<version>/<archdir>/lib.
func fakeAqt(t target.BuildTarget) func(context.Context, procexec.Command) error {
	return func(_ context.Context, c procexec.Command) error {
		if c.Stage != "aqt install-qt" {
			return nil
		}
		out := c.Args[4]
		return os.MkdirAll(filepath.Join(out, t.ToolkitVersion, t.ToolkitArchDir(), "lib"), 0o755)
	}
}

func setup(t *testing.T, goos, goarch string) (target.Layout, target.BuildTarget) {
	t.Helper()
	l, err := target.NewLayout(t.TempDir(), "", "")
	require.NoError(t, err)
	bt, err := target.New("6.10.0", goos, goarch, target.Release)
	require.NoError(t, err)
	return l, bt
}

func TestCommands(t *testing.T) {
	tests := []struct {
		os, arch string
		tail     []string
	}{
		{"linux", "amd64", []string{"linux", "desktop", "6.10.0"}},
		{"darwin", "arm64", []string{"mac", "desktop", "6.10.0", "clang_64"}},
		{"windows", "amd64", []string{"windows", "desktop", "6.10.0", "win64_msvc2022_64"}},
	}
	for _, tt := range tests {
		bt, err := target.New("6.10.0", tt.os, tt.arch, target.Release)
		require.NoError(t, err)
		cmds := Commands("python", false, "/out", bt)
		require.Len(t, cmds, 2)
		assert.Equal(t, []string{"-m", "pip", "install", "--user", "--upgrade", "aqtinstall"}, cmds[0].Args)
		want := append([]string{"-m", "aqt", "install-qt", "-O", "/out"}, tt.tail...)
		assert.Equal(t, want, cmds[1].Args)
	}

	bt, _ := target.New("6.10.0", "linux", "amd64", target.Release)
	assert.Len(t, Commands("python", true, "/out", bt), 1)
}

func TestEnsureInstalled_InstallsThenSkips(t *testing.T) {
	l, bt := setup(t, "linux", "amd64")
	rec := &proctest.Recorder{Handle: fakeAqt(bt)}
	in := NewInstaller(l, rec, nil)

	inst, err := in.EnsureInstalled(context.Background(), bt)
	require.NoError(t, err)
	assert.True(t, inst.Installed)
	assert.DirExists(t, inst.LibDir)
	assert.Equal(t, l.ToolkitLibDir(bt), inst.LibDir)
	assert.Equal(t, []string{"pip install aqtinstall", "aqt install-qt"}, rec.Stages())

	rec.Reset()
	inst, err = in.EnsureInstalled(context.Background(), bt)
	require.NoError(t, err)
	assert.False(t, inst.Installed)
	assert.Zero(t, rec.Count(), "present toolkit must not spawn processes")
}

func TestEnsureInstalled_FailureLeavesNoLibDir(t *testing.T) {
	l, bt := setup(t, "darwin", "arm64")
	rec := &proctest.Recorder{Handle: func(ctx context.Context, c procexec.Command) error {
		if c.Stage == "aqt install-qt" {
			// Partial output, then failure.
			_ = fakeAqt(bt)(ctx, c)
			return proctest.Fail(c, 1, "network error")
		}
		return nil
	}}
	in := NewInstaller(l, rec, nil)

	_, err := in.EnsureInstalled(context.Background(), bt)
	require.Error(t, err)
	var se *procexec.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "aqt install-qt", se.Stage)
	assert.NoDirExists(t, l.ToolkitLibDir(bt))

	entries, err := os.ReadDir(l.ToolkitRoot())
	require.NoError(t, err)
	assert.Empty(t, entries, "staging must be cleaned up")
}

func TestEnsureInstalled_PipFailureStopsBeforeAqt(t *testing.T) {
	l, bt := setup(t, "windows", "amd64")
	rec := &proctest.Recorder{Handle: func(_ context.Context, c procexec.Command) error {
		return proctest.Fail(c, 2, "")
	}}
	_, err := NewInstaller(l, rec, nil).EnsureInstalled(context.Background(), bt)
	require.Error(t, err)
	assert.Equal(t, []string{"pip install aqtinstall"}, rec.Stages())
}

func TestEnsureInstalled_MissingOutputIsError(t *testing.T) {
	l, bt := setup(t, "linux", "amd64")
	rec := &proctest.Recorder{}
	_, err := NewInstaller(l, rec, nil).EnsureInstalled(context.Background(), bt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no lib directory")
	assert.NoDirExists(t, l.ToolkitLibDir(bt))
}

func TestEnsureInstalled_ReplacesIncompleteInstall(t *testing.T) {
	l, bt := setup(t, "linux", "amd64")
	require.NoError(t, os.MkdirAll(filepath.Join(l.ToolkitDir(bt), "bin"), 0o755))

	rec := &proctest.Recorder{Handle: fakeAqt(bt)}
	inst, err := NewInstaller(l, rec, nil).EnsureInstalled(context.Background(), bt)
	require.NoError(t, err)
	assert.DirExists(t, inst.LibDir)
	assert.NoDirExists(t, filepath.Join(inst.Root, "bin"))
}
