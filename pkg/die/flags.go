package die

import (
	"fmt"
	"sort"
	"strings"
)

// ScanFlags is a set of scan capabilities. Values combine with Union or |.
type ScanFlags uint32

const (
	// DeepScan examines the whole file rather than its headers only.
	DeepScan ScanFlags = 0x00000001
	// HeuristicScan enables heuristic signatures.
	HeuristicScan ScanFlags = 0x00000002
	// AllTypesScan scans every file type the engine knows about.
	AllTypesScan ScanFlags = 0x00000004
	// RecursiveScan descends into overlays, resources and embedded files.
	RecursiveScan ScanFlags = 0x00000008
	// Verbose adds informational detections to the result.
	Verbose ScanFlags = 0x00000010
	// ResultAsXML selects XML result serialization.
	ResultAsXML ScanFlags = 0x00010000
	// ResultAsJSON selects JSON result serialization.
	ResultAsJSON ScanFlags = 0x00020000
	// ResultAsTSV selects tab-separated result serialization.
	ResultAsTSV ScanFlags = 0x00040000
	// ResultAsCSV selects comma-separated result serialization.
	ResultAsCSV ScanFlags = 0x00080000
)

// FormatFlags is the subset of bits selecting the result serialization.
const FormatFlags = ResultAsXML | ResultAsJSON | ResultAsTSV | ResultAsCSV

// AllFlags is every bit the engine understands.
const AllFlags = DeepScan | HeuristicScan | AllTypesScan | RecursiveScan | Verbose | FormatFlags

var flagNames = []struct {
	flag ScanFlags
	name string
}{
	{DeepScan, "deep"},
	{HeuristicScan, "heuristic"},
	{AllTypesScan, "alltypes"},
	{RecursiveScan, "recursive"},
	{Verbose, "verbose"},
	{ResultAsXML, "xml"},
	{ResultAsJSON, "json"},
	{ResultAsTSV, "tsv"},
	{ResultAsCSV, "csv"},
}

// Union returns f combined with every flag in others.
func (f ScanFlags) Union(others ...ScanFlags) ScanFlags {
	for _, o := range others {
		f |= o
	}
	return f
}

// Has reports whether every bit of o is set in f.
func (f ScanFlags) Has(o ScanFlags) bool {
	return f&o == o
}

// Without returns f with the bits of o cleared.
func (f ScanFlags) Without(o ScanFlags) ScanFlags {
	return f &^ o
}

// Formats returns only the output-format bits of f.
func (f ScanFlags) Formats() ScanFlags {
	return f & FormatFlags
}

// Bits returns the value passed to the engine. Unknown bits are dropped.
func (f ScanFlags) Bits() uint32 {
	return uint32(f & AllFlags)
}

// CheckExclusiveFormat returns an error when more than one output-format bit
// is set. The engine itself accepts any combination; callers that print a
// single serialization use this to reject ambiguous requests.
func (f ScanFlags) CheckExclusiveFormat() error {
	formats := f.Formats()
	if formats&(formats-1) != 0 {
		return fmt.Errorf("die: conflicting result formats %s", formats)
	}
	return nil
}

// String renders the set as names joined by "|", e.g. "deep|json".
func (f ScanFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseFlags builds a set from names such as "deep", "heuristic" or "json".
// Each argument may itself be a comma- or pipe-separated list.
func ParseFlags(names ...string) (ScanFlags, error) {
	var f ScanFlags
	for _, arg := range names {
		for _, raw := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == '|' }) {
			name := strings.ToLower(strings.TrimSpace(raw))
			if name == "" {
				continue
			}
			flag, ok := lookupFlag(name)
			if !ok {
				return 0, fmt.Errorf("die: unknown scan flag %q (known: %s)", name, strings.Join(FlagNames(), ", "))
			}
			f |= flag
		}
	}
	return f, nil
}

// FlagNames lists the names accepted by ParseFlags, sorted.
func FlagNames() []string {
	out := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		out = append(out, fn.name)
	}
	sort.Strings(out)
	return out
}

func lookupFlag(name string) (ScanFlags, bool) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	switch name {
	case "all-types", "all_types":
		return AllTypesScan, true
	case "deep-scan", "deep_scan":
		return DeepScan, true
	case "heuristic-scan", "heuristic_scan":
		return HeuristicScan, true
	}
	return 0, false
}
