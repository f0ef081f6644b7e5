package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/varalys/diego/internal/types"
)

type PrintOptions struct {
	NoColor      bool
	Duration     time.Duration
	FilesScanned int
	Cached       int
	Skipped      int
}

func sortDetections(dets []types.Detection) {
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Path < dets[j].Path })
}

// PrintText writes each detection's full engine output under its path.
// Structured results (JSON, XML) are highlighted unless NoColor is set.
func PrintText(w io.Writer, dets []types.Detection, opts PrintOptions) {
	sortDetections(dets)
	if len(dets) == 0 {
		fmt.Fprintln(w, "No files scanned")
	}
	for _, d := range dets {
		header := d.Path
		if d.Cached {
			header += " (cached)"
		}
		if !opts.NoColor {
			header = "\x1b[1m" + header + "\x1b[0m"
		}
		fmt.Fprintln(w, header)
		if d.Failed() {
			fmt.Fprintf(w, "  %s\n", colorError("error: "+d.Error, opts.NoColor))
			continue
		}
		body := d.Result
		if !opts.NoColor {
			body = Highlight(body, d.Flags)
		}
		for _, line := range strings.Split(strings.TrimRight(body, "\r\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	printFooter(w, dets, opts)
}

// PrintTable writes one row per detection with the leading file type.
func PrintTable(w io.Writer, dets []types.Detection, opts PrintOptions) error {
	sortDetections(dets)
	if len(dets) == 0 {
		fmt.Fprintln(w, "No files scanned")
		printFooter(w, dets, opts)
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Path", "Mode", "Type", "Cached")
	for _, d := range dets {
		ft := d.FileType
		if d.Failed() {
			ft = colorError("error: "+d.Error, opts.NoColor)
		}
		cached := ""
		if d.Cached {
			cached = "yes"
		}
		if err := table.Append([]string{d.Path, string(d.Mode), ft, cached}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	printFooter(w, dets, opts)
	return nil
}

func printFooter(w io.Writer, dets []types.Detection, opts PrintOptions) {
	if opts.Duration <= 0 && opts.FilesScanned <= 0 && opts.Cached <= 0 {
		return
	}
	failed := 0
	for _, d := range dets {
		if d.Failed() {
			failed++
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Detections: %d (failed: %d)\n", len(dets), failed)
	if opts.Duration > 0 {
		fmt.Fprintf(w, "Scan duration: %.2fs\n", opts.Duration.Seconds())
	}
	fmt.Fprintf(w, "Files scanned: %d\n", opts.FilesScanned)
	if opts.Cached > 0 {
		fmt.Fprintf(w, "Served from cache: %d\n", opts.Cached)
	}
	if opts.Skipped > 0 {
		fmt.Fprintf(w, "Skipped (size limit): %d\n", opts.Skipped)
	}
}

func colorError(s string, noColor bool) string {
	if noColor {
		return s
	}
	return "\x1b[31m" + s + "\x1b[0m" // red
}
