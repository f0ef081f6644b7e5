// Package orchestrator sequences toolkit installation, the engine build and
// link plan computation. Each step is skipped when its output is already
// present, so a repeated run spawns no processes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/varalys/diego/internal/audit"
	"github.com/varalys/diego/internal/linkplan"
	"github.com/varalys/diego/internal/nativebuild"
	"github.com/varalys/diego/internal/procexec"
	"github.com/varalys/diego/internal/target"
	"github.com/varalys/diego/internal/toolkit"
)

// ToolkitInstaller is satisfied by *toolkit.Installer.
type ToolkitInstaller interface {
	EnsureInstalled(ctx context.Context, t target.BuildTarget) (toolkit.Installation, error)
}

// EngineBuilder is satisfied by *nativebuild.Builder.
type EngineBuilder interface {
	EnsureBuilt(ctx context.Context, t target.BuildTarget, tk toolkit.Installation) (nativebuild.Artifact, error)
}

// Orchestrator runs the whole build for one layout.
type Orchestrator struct {
	Layout  target.Layout
	Toolkit ToolkitInstaller
	Engine  EngineBuilder
	Logger  *zap.Logger
	// Audit, when set, receives one record per Run.
	Audit *audit.AuditLog

	// ToolkitLibDir overrides the installed toolkit's lib dir in the plan.
	ToolkitLibDir string
	// SkipToolkit uses ToolkitLibDir as is and never installs the toolkit.
	SkipToolkit   bool
	WindowsKitLib string
}

// Result describes a completed run.
type Result struct {
	Target   target.BuildTarget
	Toolkit  toolkit.Installation
	Artifact nativebuild.Artifact
	Plan     linkplan.Plan
	Duration time.Duration
}

// Changed reports whether the run installed or built anything.
func (r Result) Changed() bool {
	return r.Toolkit.Installed || r.Artifact.Built
}

// New wires the default installer and builder around runner.
func New(layout target.Layout, runner procexec.Runner, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Layout:  layout,
		Toolkit: toolkit.NewInstaller(layout, runner, logger.Named("toolkit")),
		Engine:  nativebuild.NewBuilder(layout, runner, logger.Named("engine")),
		Logger:  logger,
	}
}

// Run installs the toolkit, builds the engine and computes the link plan for
// t, in that order. The first failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, t target.BuildTarget) (Result, error) {
	start := time.Now()
	res, err := o.run(ctx, t)
	res.Duration = time.Since(start)
	o.record(t, res, err, start)
	if err != nil {
		return res, err
	}
	o.Logger.Info("Build ready.",
		zap.String("target", t.Key()),
		zap.Bool("changed", res.Changed()),
		zap.String("fingerprint", res.Plan.Fingerprint()),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, t target.BuildTarget) (Result, error) {
	res := Result{Target: t}

	if o.SkipToolkit {
		if o.ToolkitLibDir == "" {
			return res, errors.New("toolkit install skipped but no toolkit lib path given (set QT6_LIB_PATH)")
		}
		res.Toolkit = toolkit.Installation{LibDir: o.ToolkitLibDir}
	} else {
		tk, err := o.Toolkit.EnsureInstalled(ctx, t)
		if err != nil {
			return res, err
		}
		res.Toolkit = tk
	}

	art, err := o.Engine.EnsureBuilt(ctx, t, res.Toolkit)
	if err != nil {
		return res, err
	}
	res.Artifact = art

	libDir := res.Toolkit.LibDir
	if o.ToolkitLibDir != "" {
		libDir = o.ToolkitLibDir
	}
	res.Plan = linkplan.Compute(linkplan.Inputs{
		Target:        t,
		InstallPrefix: art.InstallPrefix,
		BuildDir:      art.BuildDir,
		ToolkitLibDir: libDir,
		WindowsKitLib: o.WindowsKitLib,
	})
	return res, nil
}

// Plan computes the link plan for t without installing or building.
func (o *Orchestrator) Plan(t target.BuildTarget) linkplan.Plan {
	libDir := o.ToolkitLibDir
	if libDir == "" {
		libDir = o.Layout.ToolkitLibDir(t)
	}
	return linkplan.Compute(linkplan.Inputs{
		Target:        t,
		InstallPrefix: o.Layout.InstallPrefix(t),
		BuildDir:      o.Layout.BuildDir(t),
		ToolkitLibDir: libDir,
		WindowsKitLib: o.WindowsKitLib,
	})
}

func (o *Orchestrator) record(t target.BuildTarget, res Result, runErr error, start time.Time) {
	if o.Audit == nil {
		return
	}
	rec := audit.BuildRecord{
		Timestamp:        start,
		Target:           t.Key(),
		ToolkitVersion:   t.ToolkitVersion,
		ToolkitInstalled: res.Toolkit.Installed,
		EngineBuilt:      res.Artifact.Built,
		Duration:         res.Duration.String(),
	}
	switch {
	case runErr != nil:
		rec.Status = audit.StatusFailed
		rec.Error = runErr.Error()
		var se *procexec.StageError
		if errors.As(runErr, &se) {
			rec.FailedStage = se.Stage
			rec.ExitCode = se.ExitCode
			rec.Interrupted = se.Interrupted
		}
	case res.Changed():
		rec.Status = audit.StatusBuilt
	default:
		rec.Status = audit.StatusUpToDate
	}
	if runErr == nil {
		rec.Fingerprint = res.Plan.Fingerprint()
		rec.Directives = len(res.Plan.Directives)
	}
	if err := o.Audit.LogBuild(rec); err != nil {
		o.Logger.Warn("Could not write build audit record.", zap.Error(err))
	}
}

// Describe renders a one-line summary of res for humans.
func Describe(res Result) string {
	state := "up to date"
	if res.Changed() {
		state = "built"
	}
	return fmt.Sprintf("%s: %s in %s (plan %s, %d directives)",
		res.Target.Key(), state, res.Duration.Round(time.Millisecond), res.Plan.Fingerprint(), len(res.Plan.Directives))
}
