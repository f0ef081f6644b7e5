package linkplan

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/olekukonko/tablewriter"
)

// LDFlags renders the plan as linker arguments in directive order. Library
// names repeated with another link kind are emitted once.
func (p Plan) LDFlags() []string {
	var out []string
	seen := map[string]bool{}
	emit := func(args ...string) {
		key := strings.Join(args, "\x00")
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, args...)
	}
	for _, d := range p.Directives {
		switch {
		case d.Kind == Search && d.Link == Framework:
			emit("-F" + d.Value)
		case d.Kind == Search:
			emit("-L" + d.Value)
		case d.Kind == Lib && d.Link == Framework:
			emit("-framework", d.Value)
		case d.Kind == Lib:
			emit("-l" + d.Value)
		case d.Kind == Arg:
			emit(d.Value)
		}
	}
	return out
}

// CGOLDFLAGS is the value for the CGO_LDFLAGS environment variable. Fields
// containing spaces are single-quoted, which the go command understands.
func (p Plan) CGOLDFLAGS() string {
	flags := p.LDFlags()
	for i, f := range flags {
		if strings.ContainsAny(f, " \t'\"") {
			flags[i] = "'" + strings.ReplaceAll(f, "'", `'\''`) + "'"
		}
	}
	return strings.Join(flags, " ")
}

// Env returns the environment a consumer build needs, as KEY=VALUE pairs in
// a stable order.
func (p Plan) Env() []string {
	env := []string{
		"CGO_ENABLED=1",
		"CGO_LDFLAGS=" + p.CGOLDFLAGS(),
	}
	if p.ToolkitLibDir != "" {
		env = append(env, "QT6_LIB_PATH="+p.ToolkitLibDir)
		if p.OS == "linux" {
			env = append(env, "LD_LIBRARY_PATH="+p.ToolkitLibDir)
		}
	}
	return env
}

// Shell selects the syntax of WriteEnv.
type Shell string

const (
	POSIX      Shell = "sh"
	PowerShell Shell = "powershell"
)

// WriteEnv writes Env as shell assignments suitable for eval.
func (p Plan) WriteEnv(w io.Writer, sh Shell) error {
	for _, kv := range p.Env() {
		k, v, _ := strings.Cut(kv, "=")
		var err error
		switch sh {
		case PowerShell:
			_, err = fmt.Fprintf(w, "$env:%s = '%s'\n", k, strings.ReplaceAll(v, "'", "''"))
		default:
			_, err = fmt.Fprintf(w, "export %s='%s'\n", k, strings.ReplaceAll(v, "'", `'\''`))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type jsonPlan struct {
	Plan
	Fingerprint string   `json:"fingerprint"`
	LDFlags     []string `json:"ldflags"`
}

// WriteJSON writes the plan with its fingerprint and rendered flags.
func (p Plan) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonPlan{Plan: p, Fingerprint: p.Fingerprint(), LDFlags: p.LDFlags()})
}

// WriteTable writes one row per directive.
func (p Plan) WriteTable(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Kind", "Link", "Value")
	for i, d := range p.Directives {
		if err := table.Append([]string{fmt.Sprint(i + 1), string(d.Kind), string(d.Link), d.Value}); err != nil {
			return err
		}
	}
	return table.Render()
}

// Fingerprint is a stable hash of the directive list. Two plans with the
// same fingerprint link identically.
func (p Plan) Fingerprint() string {
	h := xxhash.New()
	_, _ = h.WriteString(p.Target)
	for _, d := range p.Directives {
		_, _ = h.WriteString("\n")
		_, _ = h.WriteString(d.String())
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Summary counts directives by kind, sorted by kind name.
func (p Plan) Summary() string {
	counts := map[Kind]int{}
	for _, d := range p.Directives {
		counts[d.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[Kind(k)])
	}
	return strings.Join(parts, " ")
}
