package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML configuration shape for diego. Every field
// is a pointer so an unset value can fall through to the next source.
type FileConfig struct {
	StateDir  *string `yaml:"state_dir"`
	Target    *string `yaml:"target"`
	BuildType *string `yaml:"build_type"`
	NoColor   *bool   `yaml:"no_color"`

	Toolkit *ToolkitConfig `yaml:"toolkit"`
	Engine  *EngineConfig  `yaml:"engine"`
	Scan    *ScanConfig    `yaml:"scan"`
	Log     *LogConfig     `yaml:"log"`
}

// ToolkitConfig controls the Qt installation.
type ToolkitConfig struct {
	// Version is the Qt release, e.g. "6.10.0".
	Version *string `yaml:"version"`
	// Python is the interpreter used to run pip and aqt.
	Python *string `yaml:"python"`
	// LibPath points at an existing Qt lib directory. It is added to the
	// link plan in place of the installed one.
	LibPath *string `yaml:"lib_path"`
	// SkipInstall never runs aqt; LibPath must then be set.
	SkipInstall *bool `yaml:"skip_install"`
	// SkipPip does not upgrade aqtinstall before installing.
	SkipPip *bool `yaml:"skip_pip"`
}

// EngineConfig controls the CMake build of the engine.
type EngineConfig struct {
	SourceDir     *string  `yaml:"source_dir"`
	SourceURL     *string  `yaml:"source_url"`
	SourceRef     *string  `yaml:"source_ref"`
	CMake         *string  `yaml:"cmake"`
	Generator     *string  `yaml:"generator"`
	Jobs          *int     `yaml:"jobs"`
	Strip         *bool    `yaml:"strip"`
	Defines       []string `yaml:"defines"`
	WindowsKitLib *string  `yaml:"windows_kit_lib"`
}

// ScanConfig mirrors the scan command's flags.
type ScanConfig struct {
	Flags           *string `yaml:"flags"`
	Database        *string `yaml:"database"`
	Include         *string `yaml:"include"`
	Exclude         *string `yaml:"exclude"`
	MaxBytes        *int64  `yaml:"max_bytes"`
	Threads         *int    `yaml:"threads"`
	Memory          *bool   `yaml:"memory"`
	NoCache         *bool   `yaml:"no_cache"`
	DefaultExcludes *bool   `yaml:"default_excludes"`
	Output          *string `yaml:"output"`

	// Archive and image entry scanning.
	Archives         *bool    `yaml:"archives"`
	Images           []string `yaml:"images"`
	MaxArtifactBytes *int64   `yaml:"max_artifact_bytes"`
	MaxEntries       *int     `yaml:"max_entries"`
	TimeBudget       *string  `yaml:"time_budget"`
}

// LogConfig configures the zap logger and optional rotated log file.
type LogConfig struct {
	Level      *string `yaml:"level"`
	Format     *string `yaml:"format"`
	File       *string `yaml:"file"`
	MaxSize    *int    `yaml:"max_size"`
	MaxBackups *int    `yaml:"max_backups"`
	MaxAge     *int    `yaml:"max_age"`
	Compress   *bool   `yaml:"compress"`
	AddSource  *bool   `yaml:"add_source"`
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LocalNames are the repo-local config file names, in search order.
var LocalNames = []string{".diego.yml", ".diego.yaml", "diego.yml", "diego.yaml"}

// LoadLocal searches for a repo-local config file in the given root.
func LoadLocal(repoRoot string) (FileConfig, error) {
	var cfg FileConfig
	for _, name := range LocalNames {
		p := filepath.Join(repoRoot, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return cfg, errors.New("no local config")
}

// GlobalPath returns the global config location under XDG_CONFIG_HOME or
// ~/.config.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return "", errors.New("no config dir")
	}
	return filepath.Join(base, "diego", "config.yml"), nil
}

// LoadGlobal loads the global config file.
func LoadGlobal() (FileConfig, error) {
	var cfg FileConfig
	p, err := GlobalPath()
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(p); err == nil {
		return LoadFile(p)
	}
	return cfg, errors.New("no global config")
}

// GetToolkit returns the toolkit section, never nil.
func (fc FileConfig) GetToolkit() ToolkitConfig {
	if fc.Toolkit == nil {
		return ToolkitConfig{}
	}
	return *fc.Toolkit
}

// GetEngine returns the engine section, never nil.
func (fc FileConfig) GetEngine() EngineConfig {
	if fc.Engine == nil {
		return EngineConfig{}
	}
	return *fc.Engine
}

// GetScan returns the scan section, never nil.
func (fc FileConfig) GetScan() ScanConfig {
	if fc.Scan == nil {
		return ScanConfig{}
	}
	return *fc.Scan
}

// GetLog returns the log section, never nil.
func (fc FileConfig) GetLog() LogConfig {
	if fc.Log == nil {
		return LogConfig{}
	}
	return *fc.Log
}
