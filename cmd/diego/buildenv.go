package diego

import (
	"github.com/spf13/cobra"

	"github.com/varalys/diego/internal/linkplan"
	"github.com/varalys/diego/internal/observability"
	"github.com/varalys/diego/internal/orchestrator"
	"github.com/varalys/diego/internal/procexec"
	"github.com/varalys/diego/internal/target"
)

// targetFlags are shared by every command that resolves a BuildTarget.
type targetFlags struct {
	Triple    string
	BuildType string
	Version   string
	QtLibPath string
	// WindowsKitLib overrides the Windows SDK lib root used by debug MSVC plans.
	WindowsKitLib string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Triple, "target", "", "target triple or os/arch (default: host)")
	cmd.Flags().StringVar(&f.BuildType, "build-type", "", "debug or release (default release)")
	cmd.Flags().StringVar(&f.Version, "qt-version", "", "Qt toolkit version (default "+target.DefaultToolkitVersion+")")
	cmd.Flags().StringVar(&f.QtLibPath, "qt-lib-path", "", "existing Qt lib directory (env QT6_LIB_PATH)")
	cmd.Flags().StringVar(&f.WindowsKitLib, "windows-kit-lib", "",
		"Windows SDK lib root for debug MSVC builds (config engine.windows_kit_lib, default "+linkplan.DefaultWindowsKitLib+")")
}

// resolve merges flags, environment and config files into a BuildTarget.
func (f *targetFlags) resolve() (target.BuildTarget, error) {
	ltk, gtk := cur.Local.GetToolkit(), cur.Global.GetToolkit()
	bt, err := target.ParseBuildType(pickString(f.BuildType, strPtrOrNil(cur.Env.BuildType), pickPtr(cur.Local.BuildType, cur.Global.BuildType)))
	if err != nil {
		return target.BuildTarget{}, err
	}
	version := pickString(f.Version, ltk.Version, gtk.Version)
	triple := pickString(f.Triple, strPtrOrNil(cur.Env.Target), pickPtr(cur.Local.Target, cur.Global.Target))
	if triple == "" {
		return target.Host(version, bt)
	}
	goos, goarch, err := target.ParseTriple(triple)
	if err != nil {
		return target.BuildTarget{}, err
	}
	return target.New(version, goos, goarch, bt)
}

func (f *targetFlags) qtLibPath() string {
	ltk, gtk := cur.Local.GetToolkit(), cur.Global.GetToolkit()
	return pickString(f.QtLibPath, strPtrOrNil(cur.Env.QtLibPath), pickPtr(ltk.LibPath, gtk.LibPath))
}

// layout resolves the state and source directories against the config root.
func layout() (target.Layout, error) {
	le, ge := cur.Local.GetEngine(), cur.Global.GetEngine()
	stateDir := pickString(flagStateDir, strPtrOrNil(cur.Env.StateDir), pickPtr(cur.Local.StateDir, cur.Global.StateDir))
	return target.NewLayout(cur.Root, stateDir, pickString("", le.SourceDir, ge.SourceDir))
}

// newOrchestrator wires an orchestrator for the current settings without
// touching the filesystem.
func newOrchestrator(l target.Layout, tf *targetFlags) *orchestrator.Orchestrator {
	logger := observability.GetLogger()
	o := orchestrator.New(l, procexec.NewExecRunner(logger.Named("exec")), logger.Named("build"))
	le, ge := cur.Local.GetEngine(), cur.Global.GetEngine()
	ltk, gtk := cur.Local.GetToolkit(), cur.Global.GetToolkit()
	o.ToolkitLibDir = tf.qtLibPath()
	o.SkipToolkit = pickBool(false, ltk.SkipInstall, gtk.SkipInstall)
	o.WindowsKitLib = pickString(tf.WindowsKitLib, le.WindowsKitLib, ge.WindowsKitLib)
	return o
}

// windowsKitHelp is appended to the long help of commands that print plans.
const windowsKitHelp = "\n\nDebug builds for windows/msvc link the debug UCRT from " + linkplan.DefaultWindowsKitLib +
	`\ucrt\x64. Machines with another Windows SDK release set --windows-kit-lib or engine.windows_kit_lib in .diego.yml.`
