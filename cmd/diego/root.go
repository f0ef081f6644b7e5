package diego

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/varalys/diego/internal/config"
	"github.com/varalys/diego/internal/observability"
	"github.com/varalys/diego/internal/report"
	"github.com/varalys/diego/internal/update"
)

var (
	flagConfig        string
	flagStateDir      string
	flagLogLevel      string
	flagLogFormat     string
	flagNoColor       bool
	flagNoUpdateCheck bool

	version = "0.1.0"
)

// rootCmd is the base Cobra command for the diego CLI.
var rootCmd = &cobra.Command{
	Use:   "diego",
	Short: "Build and drive the Detect-It-Easy engine from Go",
	Long: "diego installs the Qt toolkit, builds the Detect-It-Easy engine, emits the cgo link plan " +
		"for it, and scans files, directories and container images with the linked engine.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: notifyUpdate,
}

// exitError carries a specific process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the diego CLI. It should be called by the main package.
func Execute() {
	err := rootCmd.Execute()
	observability.Sync()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "error:", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(2)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .diego.yml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "directory for toolkit, builds and caches (default .diego)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console|json")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().BoolVar(&flagNoUpdateCheck, "no-update-check", false, "disable update check")
}

// settings is the merged configuration for one invocation.
type settings struct {
	Root   string
	Local  config.FileConfig
	Global config.FileConfig
	Env    config.Env
}

var cur settings

func setup(cmd *cobra.Command, _ []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cur = settings{Root: wd, Env: config.LoadEnv()}
	if c, err := config.LoadGlobal(); err == nil {
		cur.Global = c
	}
	if flagConfig != "" {
		c, err := config.LoadFile(flagConfig)
		if err != nil {
			return fmt.Errorf("load config %s: %w", flagConfig, err)
		}
		cur.Local = c
		cur.Root = filepath.Dir(mustAbs(flagConfig))
	} else if c, err := config.LoadLocal(wd); err == nil {
		cur.Local = c
	}

	llog, glog := cur.Local.GetLog(), cur.Global.GetLog()
	lc := observability.DefaultConfig()
	lc.Level = pickString(flagLogLevel, strPtrOrNil(cur.Env.LogLevel), pickPtr(llog.Level, glog.Level))
	if lc.Level == "" {
		lc.Level = observability.DefaultConfig().Level
	}
	if f := pickString(flagLogFormat, strPtrOrNil(cur.Env.LogFormat), pickPtr(llog.Format, glog.Format)); f != "" {
		lc.Format = f
	}
	lc.NoColor = noColor()
	lc.File = pickString("", llog.File, glog.File)
	lc.AddSource = pickBool(false, llog.AddSource, glog.AddSource)
	lc.Compress = pickBool(false, llog.Compress, glog.Compress)
	if v := pickInt(0, llog.MaxSize, glog.MaxSize); v > 0 {
		lc.MaxSize = v
	}
	if v := pickInt(0, llog.MaxBackups, glog.MaxBackups); v > 0 {
		lc.MaxBackups = v
	}
	if v := pickInt(0, llog.MaxAge, glog.MaxAge); v > 0 {
		lc.MaxAge = v
	}
	observability.InitializeLogger(lc)
	observability.GetLogger().Debug("Configuration loaded.")
	return nil
}

func noColor() bool {
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		return true
	}
	if pickBool(false, cur.Local.NoColor, cur.Global.NoColor) {
		return true
	}
	return !report.IsTerminal(os.Stdout)
}

func notifyUpdate(cmd *cobra.Command, _ []string) {
	if flagNoUpdateCheck || cmd.Name() == "update" || !report.IsTerminal(os.Stderr) {
		return
	}
	if latest, newer, _ := update.Check(version, false); newer && latest != "" {
		_, _ = fmt.Fprintf(os.Stderr, "(new version available: v%s)  run 'diego update' to upgrade\n", latest)
	}
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
