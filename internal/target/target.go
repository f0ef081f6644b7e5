// Package target describes what the orchestrator builds for: the toolkit
// version, the operating system and architecture, and the build type.
package target

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/blang/semver/v4"
)

// DefaultToolkitVersion is the Qt release the engine is built against.
const DefaultToolkitVersion = "6.10.0"

// ErrUnsupportedTarget is returned for OS/arch pairs outside the build matrix.
var ErrUnsupportedTarget = errors.New("unsupported target")

// BuildType selects debug or release engine artifacts.
type BuildType string

const (
	Debug   BuildType = "Debug"
	Release BuildType = "Release"
)

// ParseBuildType accepts "debug" or "release" in any case. Empty means Release.
func ParseBuildType(s string) (BuildType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "release":
		return Release, nil
	case "debug":
		return Debug, nil
	}
	return "", fmt.Errorf("invalid build type %q (want debug or release)", s)
}

// BuildTarget is immutable once created with New.
type BuildTarget struct {
	ToolkitVersion string
	OS             string
	Arch           string
	BuildType      BuildType
}

type platform struct {
	aqtHost string
	aqtArch string
	archDir string
	marker  string
	multi   string
}

// The install marker is the file (or directory) whose presence means the
// engine install prefix is complete.
var platforms = map[string]platform{
	"linux/amd64":   {aqtHost: "linux", archDir: "gcc_64", marker: "lib/libdie.a", multi: "x86_64"},
	"linux/arm64":   {aqtHost: "linux_arm64", aqtArch: "linux_gcc_arm64", archDir: "gcc_arm64", marker: "lib/libdie.a", multi: "aarch64"},
	"darwin/amd64":  {aqtHost: "mac", aqtArch: "clang_64", archDir: "clang_64", marker: "lib"},
	"darwin/arm64":  {aqtHost: "mac", aqtArch: "clang_64", archDir: "clang_64", marker: "lib"},
	"windows/amd64": {aqtHost: "windows", aqtArch: "win64_msvc2022_64", archDir: "msvc2022_64", marker: "die.lib"},
}

// New validates the inputs and returns a BuildTarget. The toolkit version
// must be a semantic version; "6.10" is normalized to "6.10.0".
func New(version, goos, goarch string, bt BuildType) (BuildTarget, error) {
	if version == "" {
		version = DefaultToolkitVersion
	}
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return BuildTarget{}, fmt.Errorf("invalid toolkit version %q: %w", version, err)
	}
	if _, ok := platforms[goos+"/"+goarch]; !ok {
		return BuildTarget{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedTarget, goos, goarch)
	}
	if bt == "" {
		bt = Release
	}
	if bt != Debug && bt != Release {
		return BuildTarget{}, fmt.Errorf("invalid build type %q", bt)
	}
	return BuildTarget{ToolkitVersion: v.String(), OS: goos, Arch: goarch, BuildType: bt}, nil
}

// Host returns the BuildTarget for the running machine.
func Host(version string, bt BuildType) (BuildTarget, error) {
	return New(version, runtime.GOOS, runtime.GOARCH, bt)
}

// ParseTriple maps a target string to a Go OS/arch pair. It accepts Go's
// "os/arch" form and LLVM-style triples such as "x86_64-unknown-linux-gnu",
// "aarch64-apple-darwin" or "x86_64-pc-windows-msvc".
func ParseTriple(s string) (goos, goarch string, err error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i > 0 {
		return s[:i], s[i+1:], nil
	}
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid target triple %q", s)
	}
	switch parts[0] {
	case "x86_64", "amd64":
		goarch = "amd64"
	case "aarch64", "arm64":
		goarch = "arm64"
	case "i686", "i386", "x86":
		goarch = "386"
	default:
		goarch = parts[0]
	}
	for _, p := range parts[1:] {
		switch p {
		case "linux":
			goos = "linux"
		case "darwin", "macos", "apple":
			goos = "darwin"
		case "windows":
			goos = "windows"
		}
	}
	if goos == "" {
		return "", "", fmt.Errorf("invalid target triple %q: no known operating system", s)
	}
	return goos, goarch, nil
}

func (t BuildTarget) platform() platform {
	return platforms[t.OS+"/"+t.Arch]
}

// Key identifies the target in on-disk paths, e.g. "linux-amd64-Release".
func (t BuildTarget) Key() string {
	return fmt.Sprintf("%s-%s-%s", t.OS, t.Arch, t.BuildType)
}

func (t BuildTarget) String() string {
	return fmt.Sprintf("%s/%s %s (Qt %s)", t.OS, t.Arch, t.BuildType, t.ToolkitVersion)
}

// IsDebug reports whether debug artifacts are requested.
func (t BuildTarget) IsDebug() bool { return t.BuildType == Debug }

// AqtHost is the host argument of "aqt install-qt".
func (t BuildTarget) AqtHost() string { return t.platform().aqtHost }

// AqtArch is the optional arch argument of "aqt install-qt".
func (t BuildTarget) AqtArch() string { return t.platform().aqtArch }

// ToolkitArchDir is the directory aqt creates under the version directory.
func (t BuildTarget) ToolkitArchDir() string { return t.platform().archDir }

// MarkerRel is the install marker relative to the install prefix.
func (t BuildTarget) MarkerRel() string { return t.platform().marker }

// Multiarch is the Debian multiarch prefix for linux system libraries.
func (t BuildTarget) Multiarch() string { return t.platform().multi }
