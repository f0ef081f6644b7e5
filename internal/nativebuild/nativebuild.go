// Package nativebuild builds and installs the engine's native libraries with
// CMake. An install prefix is only ever produced by renaming a fully
// installed staging directory, so the presence of its marker means the
// build completed.
package nativebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/varalys/diego/internal/procexec"
	"github.com/varalys/diego/internal/target"
	"github.com/varalys/diego/internal/toolkit"
)

// DefaultJobs is the parallelism passed to "cmake --build".
const DefaultJobs = 4

// ErrNoSource is returned when the engine source tree is missing and no
// source URL is configured.
var ErrNoSource = errors.New("engine source not found")

// Artifact is a completed engine install.
type Artifact struct {
	InstallPrefix string
	BuildDir      string
	Marker        string
	// Built is true when this call ran the build.
	Built bool
}

// Builder drives configure, build and install.
type Builder struct {
	Layout target.Layout
	Runner procexec.Runner
	Logger *zap.Logger

	CMake     string
	Jobs      int
	Strip     bool
	Generator string
	// Defines are extra -D arguments for the configure stage.
	Defines []string

	Source Source
	// Fetch acquires the source tree; nil means FetchSource.
	Fetch func(ctx context.Context, src Source, dest string) error
}

// NewBuilder returns a Builder with default cmake binary and parallelism.
func NewBuilder(layout target.Layout, runner procexec.Runner, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Layout: layout, Runner: runner, Logger: logger, CMake: "cmake", Jobs: DefaultJobs}
}

// Installed reports whether the install marker for t exists.
func (b *Builder) Installed(t target.BuildTarget) bool {
	_, err := os.Stat(b.Layout.Marker(t))
	return err == nil
}

// EnsureBuilt returns the engine install for t, building it when the marker
// is absent. The stages run strictly in order and the first failure aborts
// the build, leaving any previous install prefix untouched.
func (b *Builder) EnsureBuilt(ctx context.Context, t target.BuildTarget, tk toolkit.Installation) (Artifact, error) {
	art := Artifact{
		InstallPrefix: b.Layout.InstallPrefix(t),
		BuildDir:      b.Layout.BuildDir(t),
		Marker:        b.Layout.Marker(t),
	}
	if b.Installed(t) {
		b.Logger.Debug("Engine install present.", zap.String("marker", art.Marker))
		return art, nil
	}

	if err := b.ensureSource(ctx); err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(art.BuildDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create build dir: %w", err)
	}
	parent := filepath.Dir(art.InstallPrefix)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create install root: %w", err)
	}
	staging, err := os.MkdirTemp(parent, ".staging-"+filepath.Base(art.InstallPrefix)+"-")
	if err != nil {
		return Artifact{}, fmt.Errorf("create install staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	b.Logger.Info("Building engine.", zap.String("target", t.Key()), zap.String("source", b.Layout.SourceDir))
	for _, cmd := range b.Commands(t, tk, staging) {
		if err := b.Runner.Run(ctx, cmd); err != nil {
			return Artifact{}, fmt.Errorf("build engine: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(staging, filepath.FromSlash(t.MarkerRel()))); err != nil {
		return Artifact{}, fmt.Errorf("build engine: install did not produce %s", t.MarkerRel())
	}
	if err := os.RemoveAll(art.InstallPrefix); err != nil {
		return Artifact{}, fmt.Errorf("remove incomplete install: %w", err)
	}
	if err := os.Rename(staging, art.InstallPrefix); err != nil {
		return Artifact{}, fmt.Errorf("move install into place: %w", err)
	}

	b.Logger.Info("Engine installed.", zap.String("prefix", art.InstallPrefix))
	art.Built = true
	return art, nil
}

// Commands returns the configure, build and install invocations for t. The
// install stage targets prefix.
func (b *Builder) Commands(t target.BuildTarget, tk toolkit.Installation, prefix string) []procexec.Command {
	cmake := b.CMake
	if cmake == "" {
		cmake = "cmake"
	}
	jobs := b.Jobs
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	cfg := string(t.BuildType)
	build := b.Layout.BuildDir(t)

	configure := []string{"-S", b.Layout.SourceDir, "-B", build, "-DCMAKE_BUILD_TYPE=" + cfg}
	if tk.Root != "" {
		configure = append(configure, "-DCMAKE_PREFIX_PATH="+tk.Root)
	}
	if b.Generator != "" {
		configure = append(configure, "-G", b.Generator)
	}
	for _, d := range b.Defines {
		configure = append(configure, "-D"+d)
	}

	var env []string
	if tk.LibDir != "" {
		env = []string{"QT6_LIB_PATH=" + tk.LibDir, "Qt6_DIR=" + tk.LibDir}
	}

	install := []string{"--install", build, "--config", cfg, "--prefix", prefix}
	if b.Strip {
		install = append(install, "--strip")
	}

	return []procexec.Command{
		{Stage: "cmake configure", Name: cmake, Args: configure, Dir: b.Layout.Root, Env: env},
		{Stage: "cmake build", Name: cmake, Args: []string{"--build", build, "--parallel", strconv.Itoa(jobs), "--config", cfg}, Dir: b.Layout.Root, Env: env},
		{Stage: "cmake install", Name: cmake, Args: install, Dir: b.Layout.Root, Env: env},
	}
}

// Clean removes the build directory and install prefix for t.
func (b *Builder) Clean(t target.BuildTarget) error {
	for _, p := range []string{b.Layout.InstallPrefix(t), b.Layout.BuildDir(t)} {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("clean %s: %w", p, err)
		}
	}
	return nil
}

func (b *Builder) ensureSource(ctx context.Context) error {
	dir := b.Layout.SourceDir
	if _, err := os.Stat(filepath.Join(dir, "CMakeLists.txt")); err == nil {
		return nil
	}
	if b.Source.URL == "" {
		return fmt.Errorf("%w: %s has no CMakeLists.txt (set engine.source_url to clone it)", ErrNoSource, dir)
	}
	fetch := b.Fetch
	if fetch == nil {
		fetch = FetchSource
	}
	b.Logger.Info("Fetching engine source.", zap.String("url", b.Source.URL), zap.String("ref", b.Source.Ref))
	if err := fetchInto(ctx, fetch, b.Source, dir); err != nil {
		return fmt.Errorf("fetch engine source: %w", err)
	}
	return nil
}
