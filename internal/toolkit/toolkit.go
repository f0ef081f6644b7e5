// Package toolkit installs the Qt distribution the engine links against,
// using pip and aqtinstall.
package toolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/varalys/diego/internal/procexec"
	"github.com/varalys/diego/internal/target"
)

// Installation is a complete toolkit install for one target.
type Installation struct {
	Root   string
	LibDir string
	// Installed is true when this call performed the install.
	Installed bool
}

// Installer ensures the toolkit exists under the layout's toolkit root.
type Installer struct {
	Layout target.Layout
	Runner procexec.Runner
	Logger *zap.Logger
	// Python is the interpreter used for pip and aqt.
	Python string
	// SkipPip skips upgrading aqtinstall.
	SkipPip bool
}

// DefaultPython is the interpreter name used when none is configured.
func DefaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// NewInstaller returns an Installer with the default interpreter.
func NewInstaller(layout target.Layout, runner procexec.Runner, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{Layout: layout, Runner: runner, Logger: logger, Python: DefaultPython()}
}

// EnsureInstalled returns the toolkit installation for t, installing it when
// its lib directory is absent. aqt writes into a staging directory which is
// renamed into place only after both processes succeed; a failed attempt
// leaves no lib directory behind.
func (i *Installer) EnsureInstalled(ctx context.Context, t target.BuildTarget) (Installation, error) {
	inst := Installation{Root: i.Layout.ToolkitDir(t), LibDir: i.Layout.ToolkitLibDir(t)}
	if isDir(inst.LibDir) {
		i.Logger.Debug("Toolkit present.", zap.String("lib_dir", inst.LibDir))
		return inst, nil
	}

	i.Logger.Info("Installing toolkit.", zap.String("version", t.ToolkitVersion), zap.String("target", t.Key()))

	parent := i.Layout.ToolkitRoot()
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Installation{}, fmt.Errorf("create toolkit root: %w", err)
	}
	staging, err := os.MkdirTemp(parent, ".staging-")
	if err != nil {
		return Installation{}, fmt.Errorf("create toolkit staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, cmd := range Commands(i.python(), i.SkipPip, staging, t) {
		if err := i.Runner.Run(ctx, cmd); err != nil {
			return Installation{}, fmt.Errorf("install toolkit %s: %w", t.ToolkitVersion, err)
		}
	}

	produced := filepath.Join(staging, t.ToolkitVersion, t.ToolkitArchDir())
	if !isDir(filepath.Join(produced, "lib")) {
		return Installation{}, fmt.Errorf("install toolkit %s: aqt produced no lib directory under %s", t.ToolkitVersion, produced)
	}
	if err := os.MkdirAll(filepath.Dir(inst.Root), 0o755); err != nil {
		return Installation{}, fmt.Errorf("create toolkit version dir: %w", err)
	}
	// A leftover directory without lib/ is an earlier incomplete install.
	if err := os.RemoveAll(inst.Root); err != nil {
		return Installation{}, fmt.Errorf("remove incomplete toolkit: %w", err)
	}
	if err := os.Rename(produced, inst.Root); err != nil {
		return Installation{}, fmt.Errorf("move toolkit into place: %w", err)
	}

	i.Logger.Info("Toolkit installed.", zap.String("lib_dir", inst.LibDir))
	inst.Installed = true
	return inst, nil
}

func (i *Installer) python() string {
	if i.Python != "" {
		return i.Python
	}
	return DefaultPython()
}

// Commands returns the processes that install the toolkit for t into outDir.
func Commands(python string, skipPip bool, outDir string, t target.BuildTarget) []procexec.Command {
	var cmds []procexec.Command
	if !skipPip {
		cmds = append(cmds, procexec.Command{
			Stage: "pip install aqtinstall",
			Name:  python,
			Args:  []string{"-m", "pip", "install", "--user", "--upgrade", "aqtinstall"},
		})
	}
	args := []string{"-m", "aqt", "install-qt", "-O", outDir, t.AqtHost(), "desktop", t.ToolkitVersion}
	if arch := t.AqtArch(); arch != "" {
		args = append(args, arch)
	}
	return append(cmds, procexec.Command{Stage: "aqt install-qt", Name: python, Args: args})
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
