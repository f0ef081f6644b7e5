package diego

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/varalys/diego/internal/audit"
	"github.com/varalys/diego/internal/linkplan"
	"github.com/varalys/diego/internal/nativebuild"
	"github.com/varalys/diego/internal/observability"
	"github.com/varalys/diego/internal/orchestrator"
	"github.com/varalys/diego/internal/procexec"
	"github.com/varalys/diego/internal/toolkit"
)

var buildOpts struct {
	target    targetFlags
	skipTK    bool
	python    string
	skipPip   bool
	sourceURL string
	sourceRef string
	cmake     string
	generator string
	jobs      int
	strip     bool
	defines   []string
	output    string
	writeEnv  string
	clean     bool
}

func init() {
	cmd := &cobra.Command{
		Use:   "build [-- command args...]",
		Short: "Install the Qt toolkit, build the engine and print the link plan",
		Long: "build installs the Qt toolkit with aqt, configures, builds and installs the engine with CMake, " +
			"and prints the cgo link plan. Steps whose output already exists are skipped. " +
			"Arguments after -- are run as a command with the plan's environment, e.g.\n\n" +
			"  diego build -- go build -tags die ./..." + windowsKitHelp,
		RunE: runBuild,
	}
	rootCmd.AddCommand(cmd)

	f := cmd.Flags()
	buildOpts.target.register(cmd)
	f.BoolVar(&buildOpts.skipTK, "skip-toolkit", false, "do not install the toolkit; requires --qt-lib-path")
	f.StringVar(&buildOpts.python, "python", "", "python interpreter for pip and aqt (default "+toolkit.DefaultPython()+")")
	f.BoolVar(&buildOpts.skipPip, "skip-pip", false, "do not upgrade aqtinstall before installing")
	f.StringVar(&buildOpts.sourceURL, "source-url", "", "git URL to clone when the engine source tree is missing")
	f.StringVar(&buildOpts.sourceRef, "source-ref", "", "branch or tag to check out with --source-url")
	f.StringVar(&buildOpts.cmake, "cmake", "", "cmake binary (default cmake)")
	f.StringVar(&buildOpts.generator, "generator", "", "CMake generator, e.g. Ninja")
	f.IntVar(&buildOpts.jobs, "jobs", 0, fmt.Sprintf("parallel build jobs (default %d)", nativebuild.DefaultJobs))
	f.BoolVar(&buildOpts.strip, "strip", false, "install stripped binaries")
	f.StringArrayVarP(&buildOpts.defines, "define", "D", nil, "extra CMake definition NAME=VALUE (repeatable)")
	f.StringVarP(&buildOpts.output, "output", "o", "env", "plan output: env|powershell|json|table|ldflags|none")
	f.StringVar(&buildOpts.writeEnv, "write-env", "", "also write the plan as POSIX shell exports to this file")
	f.BoolVar(&buildOpts.clean, "clean", false, "remove the build and install trees first")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := checkPlanOutput(buildOpts.output); err != nil {
		return err
	}
	t, err := buildOpts.target.resolve()
	if err != nil {
		return err
	}
	l, err := layout()
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := newOrchestrator(l, &buildOpts.target)
	o.Audit = audit.NewAuditLog(l.AuditLog())
	if buildOpts.skipTK {
		o.SkipToolkit = true
	}

	ltk, gtk := cur.Local.GetToolkit(), cur.Global.GetToolkit()
	if inst, ok := o.Toolkit.(*toolkit.Installer); ok {
		if py := pickString(buildOpts.python, ltk.Python, gtk.Python); py != "" {
			inst.Python = py
		}
		inst.SkipPip = pickBool(buildOpts.skipPip, ltk.SkipPip, gtk.SkipPip)
	}

	le, ge := cur.Local.GetEngine(), cur.Global.GetEngine()
	b, ok := o.Engine.(*nativebuild.Builder)
	if ok {
		if c := pickString(buildOpts.cmake, le.CMake, ge.CMake); c != "" {
			b.CMake = c
		}
		if j := pickInt(buildOpts.jobs, le.Jobs, ge.Jobs); j > 0 {
			b.Jobs = j
		}
		b.Strip = pickBool(buildOpts.strip, le.Strip, ge.Strip)
		b.Generator = pickString(buildOpts.generator, le.Generator, ge.Generator)
		b.Defines = pickStrings(buildOpts.defines, le.Defines, ge.Defines)
		b.Source = nativebuild.Source{
			URL: pickString(buildOpts.sourceURL, le.SourceURL, ge.SourceURL),
			Ref: pickString(buildOpts.sourceRef, le.SourceRef, ge.SourceRef),
		}
		if buildOpts.clean {
			if err := b.Clean(t); err != nil {
				return fmt.Errorf("clean: %w", err)
			}
		}
	}

	res, err := o.Run(ctx, t)
	if err != nil {
		return describeBuildError(cmd.ErrOrStderr(), err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), orchestrator.Describe(res))
	if res.Changed() {
		if err := os.Remove(l.ScanCache()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to drop scan cache after rebuild.", zap.String("path", l.ScanCache()), zap.Error(err))
		}
	}

	if buildOpts.writeEnv != "" {
		if err := writeEnvFile(buildOpts.writeEnv, res.Plan); err != nil {
			return err
		}
		logger.Info("Wrote link environment.", zap.String("path", buildOpts.writeEnv))
	}

	if len(args) > 0 {
		return runWithPlan(ctx, res.Plan, args)
	}
	return writePlan(cmd.OutOrStdout(), res.Plan, buildOpts.output)
}

// describeBuildError prints the failed stage and the tail of its output.
func describeBuildError(w io.Writer, err error) error {
	var se *procexec.StageError
	if errors.As(err, &se) {
		fmt.Fprintf(w, "stage %q failed: %s\n", se.Stage, se.Command)
		if tail := procexec.LastLines(se.Output, 20); tail != "" {
			fmt.Fprintln(w, tail)
		}
	}
	return err
}

func checkPlanOutput(format string) error {
	switch format {
	case "env", "powershell", "json", "table", "ldflags", "none":
		return nil
	}
	return fmt.Errorf("invalid --output %q (want env|powershell|json|table|ldflags|none)", format)
}

func writePlan(w io.Writer, p linkplan.Plan, format string) error {
	switch format {
	case "none":
		return nil
	case "powershell":
		return p.WriteEnv(w, linkplan.PowerShell)
	case "json":
		return p.WriteJSON(w)
	case "table":
		return p.WriteTable(w)
	case "ldflags":
		_, err := fmt.Fprintln(w, p.CGOLDFLAGS())
		return err
	default:
		return p.WriteEnv(w, linkplan.POSIX)
	}
}

func writeEnvFile(path string, p linkplan.Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	if err := p.WriteEnv(f, linkplan.POSIX); err != nil {
		_ = f.Close()
		return fmt.Errorf("write env file: %w", err)
	}
	return f.Close()
}

// runWithPlan runs args with the plan's variables added to the environment
// and forwards the child's exit code.
func runWithPlan(ctx context.Context, p linkplan.Plan, args []string) error {
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Env = append(os.Environ(), p.Env()...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	err := c.Run()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &exitError{code: ee.ExitCode()}
	}
	return err
}
