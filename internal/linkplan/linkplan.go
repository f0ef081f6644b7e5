// Package linkplan computes the linker directives a consumer needs to link
// the engine's static libraries and the toolkit's shared libraries. Compute
// is a pure function of its inputs; nothing here touches the filesystem.
package linkplan

import (
	"path"
	"strings"

	"github.com/varalys/diego/internal/target"
)

// Kind is the directive category.
type Kind string

const (
	Search Kind = "search"
	Lib    Kind = "lib"
	Arg    Kind = "arg"
)

// Link qualifies a search path or library.
type Link string

const (
	Native    Link = "native"
	Framework Link = "framework"
	Static    Link = "static"
	Dylib     Link = "dylib"
)

// Directive is one linker instruction.
type Directive struct {
	Kind  Kind   `json:"kind"`
	Link  Link   `json:"link,omitempty"`
	Value string `json:"value"`
}

func (d Directive) String() string {
	if d.Link == "" {
		return string(d.Kind) + " " + d.Value
	}
	return string(d.Kind) + " " + string(d.Link) + "=" + d.Value
}

// DefaultWindowsKitLib is the Windows SDK library root holding the debug UCRT.
const DefaultWindowsKitLib = `C:\Program Files (x86)\Windows Kits\10\Lib\10.0.22000.0`

// Inputs are everything Compute depends on.
type Inputs struct {
	Target        target.BuildTarget
	InstallPrefix string
	BuildDir      string
	// ToolkitLibDir is added as a search path when non-empty.
	ToolkitLibDir string
	// WindowsKitLib overrides DefaultWindowsKitLib.
	WindowsKitLib string
}

// Plan is an ordered list of directives for one target.
type Plan struct {
	Target        string      `json:"target"`
	OS            string      `json:"os"`
	ToolkitLibDir string      `json:"toolkit_lib_dir,omitempty"`
	Directives    []Directive `json:"directives"`
}

var (
	engineLibs  = []string{"die++", "die"}
	vendorLibs  = []string{"bzip2", "lzma", "zlib"}
	toolkitLibs = []string{"Qt6Core", "Qt6Qml", "Qt6Network"}
)

// Compute returns the plan for in.
func Compute(in Inputs) Plan {
	p := Plan{Target: in.Target.Key(), OS: in.Target.OS, ToolkitLibDir: in.ToolkitLibDir}
	p.common(in)
	switch in.Target.OS {
	case "linux":
		p.linux(in)
	case "darwin":
		p.darwin(in)
	case "windows":
		p.windows(in)
	}
	return p
}

func (p *Plan) add(k Kind, l Link, v string) {
	p.Directives = append(p.Directives, Directive{Kind: k, Link: l, Value: v})
}

func (p *Plan) libs(l Link, names ...string) {
	for _, n := range names {
		p.add(Lib, l, n)
	}
}

// join builds directive paths with forward slashes so plans are identical
// regardless of the host that computed them.
func join(elem ...string) string {
	for i, e := range elem {
		elem[i] = strings.ReplaceAll(e, `\`, "/")
	}
	return path.Join(elem...)
}

func depsDir(in Inputs) string {
	return join(in.BuildDir, "_deps", "dielibrary-build", "src")
}

func (p *Plan) common(in Inputs) {
	p.libs(Static, engineLibs...)
	p.libs(Static, vendorLibs...)
	p.libs(Static, "capstone_x86")
	if in.ToolkitLibDir != "" {
		p.add(Search, Native, in.ToolkitLibDir)
	}
	if in.Target.BuildType == target.Release {
		p.libs(Static, toolkitLibs...)
		p.libs(Dylib, toolkitLibs...)
	}
}

func (p *Plan) engineSearch(in Inputs) {
	p.add(Search, Native, join(in.InstallPrefix, "die"))
	p.add(Search, Native, join(in.InstallPrefix, "die", "lib"))
	p.add(Search, Native, join(in.InstallPrefix, "lib"))
}

func (p *Plan) vendorSearch(in Inputs) {
	p.add(Search, Native, join(depsDir(in), "XCapstone"))
	for _, m := range vendorLibs {
		p.add(Search, Native, join(depsDir(in), "XArchive", "3rdparty", m))
	}
}

func (p *Plan) linux(in Inputs) {
	p.engineSearch(in)
	p.libs(Dylib, "stdc++")
	p.libs(Dylib, toolkitLibs...)
	p.add(Search, Native, "/usr/lib/"+in.Target.Multiarch()+"-linux-gnu")
	p.vendorSearch(in)
}

func (p *Plan) darwin(in Inputs) {
	p.engineSearch(in)
	p.libs(Dylib, "c++")
	if in.ToolkitLibDir != "" {
		p.add(Search, Framework, in.ToolkitLibDir)
		p.add(Arg, "", "-Wl,-rpath,"+in.ToolkitLibDir)
	}
	p.libs(Framework, "QtCore", "QtQml", "QtNetwork")
	p.vendorSearch(in)
}

func (p *Plan) windows(in Inputs) {
	cfg := string(in.Target.BuildType)
	p.add(Search, Native, join(in.InstallPrefix, "die", "dielib"))
	p.add(Search, Native, join(in.BuildDir, cfg))
	p.add(Search, Native, join(in.BuildDir, "_deps", "dielibrary-build", "src", "dielib", cfg))
	for _, m := range vendorLibs {
		p.add(Search, Native, join(depsDir(in), "XArchive", "3rdparty", m, cfg))
	}
	p.add(Search, Native, join(depsDir(in), "XCapstone", cfg))
	p.libs(Dylib, "Crypt32", "Wintrust")

	if in.Target.IsDebug() {
		debugLibs := []string{"Qt6Cored", "Qt6Qmld", "Qt6Networkd"}
		p.libs(Static, debugLibs...)
		p.libs(Dylib, debugLibs...)
		kit := in.WindowsKitLib
		if kit == "" {
			kit = DefaultWindowsKitLib
		}
		p.add(Search, Native, join(kit, "ucrt", "x64"))
		p.libs(Static, "ucrtd")
	}
}

// Filter returns the directives of kind k.
func (p Plan) Filter(k Kind) []Directive {
	var out []Directive
	for _, d := range p.Directives {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}
