package target

import (
	"fmt"
	"path/filepath"
)

// DefaultStateDir holds toolkit, build and install trees, relative to Root.
const DefaultStateDir = ".diego"

// DefaultSourceDir is the engine source tree, relative to Root.
const DefaultSourceDir = "libdie++"

// Layout fixes every path the orchestrator reads or writes.
type Layout struct {
	Root      string
	StateDir  string
	SourceDir string
}

// NewLayout resolves stateDir and sourceDir against root and makes all three
// absolute. Empty values take the defaults.
func NewLayout(root, stateDir, sourceDir string) (Layout, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve root: %w", err)
	}
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	if sourceDir == "" {
		sourceDir = DefaultSourceDir
	}
	return Layout{
		Root:      absRoot,
		StateDir:  resolve(absRoot, stateDir),
		SourceDir: resolve(absRoot, sourceDir),
	}, nil
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// ToolkitRoot is the output directory handed to aqt.
func (l Layout) ToolkitRoot() string {
	return filepath.Join(l.StateDir, "toolkit")
}

// ToolkitDir is the toolkit installation for t.
func (l Layout) ToolkitDir(t BuildTarget) string {
	return filepath.Join(l.ToolkitRoot(), t.ToolkitVersion, t.ToolkitArchDir())
}

// ToolkitLibDir is the toolkit library directory; its presence marks a
// complete toolkit installation.
func (l Layout) ToolkitLibDir(t BuildTarget) string {
	return filepath.Join(l.ToolkitDir(t), "lib")
}

// BuildDir is the CMake binary directory for t.
func (l Layout) BuildDir(t BuildTarget) string {
	return filepath.Join(l.StateDir, "build", t.Key())
}

// InstallPrefix is the CMake install prefix for t.
func (l Layout) InstallPrefix(t BuildTarget) string {
	return filepath.Join(l.StateDir, "install", t.Key())
}

// Marker is the absolute path of the install marker for t.
func (l Layout) Marker(t BuildTarget) string {
	return filepath.Join(l.InstallPrefix(t), filepath.FromSlash(t.MarkerRel()))
}

// AuditLog is the JSONL build history.
func (l Layout) AuditLog() string {
	return filepath.Join(l.StateDir, "build_audit.jsonl")
}

// ScanCache is the batch scan result cache.
func (l Layout) ScanCache() string {
	return filepath.Join(l.StateDir, "scancache.json")
}

// LastScan holds the detections of the most recent batch scan.
func (l Layout) LastScan() string {
	return filepath.Join(l.StateDir, "last_scan.json")
}
