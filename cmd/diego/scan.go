package diego

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/varalys/diego/internal/cache"
	"github.com/varalys/diego/internal/engine"
	"github.com/varalys/diego/internal/observability"
	"github.com/varalys/diego/internal/report"
	"github.com/varalys/diego/internal/scanner/factory"
	"github.com/varalys/diego/internal/tui"
	"github.com/varalys/diego/internal/types"
	"github.com/varalys/diego/pkg/die"
)

var scanOpts struct {
	flags           string
	format          string
	db              string
	include         string
	exclude         string
	maxBytes        int64
	threads         int
	memory          bool
	noCache         bool
	defaultExcludes bool
	dryRun          bool
	archives        bool
	images          []string
	imageTars       []string
	maxArtifact     int64
	maxEntries      int
	timeBudget      time.Duration
	output          string
	last            bool
	failOnError     bool
	tui             bool
}

// scanNative replaces the linked engine; tests set it to a stub.
var scanNative die.Native

// runTUI and runHistoryTUI start the interactive browsers; tests replace them.
var (
	runTUI        = tui.Run
	runHistoryTUI = tui.RunHistory
)

func init() {
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Identify files, archive entries and image layers with the engine",
		Long: "scan walks path (a file or directory, default \".\") and reports the engine's identification " +
			"for every file. Results are cached by content, engine flags and database.",
		Args: cobra.MaximumNArgs(1),
		RunE: runScan,
	}
	rootCmd.AddCommand(cmd)

	f := cmd.Flags()
	f.StringVar(&scanOpts.flags, "flags", "", "engine scan flags, comma separated: "+strings.Join(die.FlagNames(), ", "))
	f.StringVar(&scanOpts.format, "format", "", "engine result format: plain|json|xml|csv|tsv")
	f.StringVar(&scanOpts.db, "db", "", "signature database directory (env DIE_DB_PATH)")
	f.StringVar(&scanOpts.include, "include", "", "comma-separated include globs")
	f.StringVar(&scanOpts.exclude, "exclude", "", "comma-separated exclude globs")
	f.Int64Var(&scanOpts.maxBytes, "max-bytes", 256<<20, "skip files larger than this")
	f.IntVar(&scanOpts.threads, "threads", 0, "worker count (default: GOMAXPROCS)")
	f.BoolVar(&scanOpts.memory, "memory", false, "read files and scan buffers instead of paths")
	f.BoolVar(&scanOpts.noCache, "no-cache", false, "disable the result cache")
	f.BoolVar(&scanOpts.defaultExcludes, "default-excludes", true, "skip VCS, dependency and text files")
	f.BoolVar(&scanOpts.dryRun, "dry-run", false, "list what would be scanned without calling the engine")
	f.BoolVar(&scanOpts.archives, "archives", false, "scan entries of zip, jar, apk and tar archives")
	f.StringArrayVar(&scanOpts.images, "image", nil, "scan the layers of a registry image (repeatable)")
	f.StringArrayVar(&scanOpts.imageTars, "image-tar", nil, "scan the layers of a saved image tarball (repeatable)")
	f.Int64Var(&scanOpts.maxArtifact, "max-artifact-bytes", 512<<20, "max decompressed bytes per archive or image")
	f.IntVar(&scanOpts.maxEntries, "max-entries", 10000, "max entries per archive or image")
	f.DurationVar(&scanOpts.timeBudget, "scan-time-budget", 0, "time budget per archive or image (e.g. 30s)")
	f.StringVarP(&scanOpts.output, "output", "o", "", "report output: text|table|json (default text)")
	f.BoolVar(&scanOpts.last, "last", false, "print the results of the previous scan without scanning")
	f.BoolVar(&scanOpts.failOnError, "fail-on-error", false, "exit 1 when any file failed to scan")
	f.BoolVar(&scanOpts.tui, "tui", false, "browse the results interactively; y copies the selected result")
}

// scanFlags combines --flags and --format into engine flags.
func scanFlags(names, format string) (die.ScanFlags, error) {
	f, err := die.ParseFlags(names)
	if err != nil {
		return 0, err
	}
	switch format {
	case "", "plain":
	case "json", "xml", "csv", "tsv":
		ff, _ := die.ParseFlags(format)
		f = f.Without(die.FormatFlags) | ff
	default:
		return 0, fmt.Errorf("invalid --format %q (want plain|json|xml|csv|tsv)", format)
	}
	return f, f.CheckExclusiveFormat()
}

func runScan(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	l, err := layout()
	if err != nil {
		return err
	}
	ls, gs := cur.Local.GetScan(), cur.Global.GetScan()
	output := pickString(scanOpts.output, ls.Output, gs.Output)
	if output == "" {
		output = "text"
	}
	if output != "text" && output != "table" && output != "json" {
		return fmt.Errorf("invalid --output %q (want text|table|json)", output)
	}

	if scanOpts.last {
		prev, err := cache.LoadResults(l.LastScan())
		if err != nil {
			return fmt.Errorf("no previous scan: %w", err)
		}
		if scanOpts.tui {
			return runTUI(prev.Detections, nil, tui.Options{Root: prev.Root, Color: !noColor(), ScannedAt: prev.Timestamp})
		}
		return writeReport(cmd.OutOrStdout(), output, prev.Root, prev.Detections, engine.Result{FilesScanned: prev.Count})
	}

	flags, err := scanFlags(pickString(scanOpts.flags, ls.Flags, gs.Flags), scanOpts.format)
	if err != nil {
		return err
	}
	cfg := engine.Config{
		Root:             abs,
		IncludeGlobs:     pickString(scanOpts.include, ls.Include, gs.Include),
		ExcludeGlobs:     pickString(scanOpts.exclude, ls.Exclude, gs.Exclude),
		MaxBytes:         pickInt64(scanOpts.maxBytes, ls.MaxBytes, gs.MaxBytes),
		Threads:          pickInt(scanOpts.threads, ls.Threads, gs.Threads),
		Flags:            flags,
		Database:         pickString(scanOpts.db, strPtrOrNil(cur.Env.DBPath), pickPtr(ls.Database, gs.Database)),
		Memory:           pickBool(scanOpts.memory, ls.Memory, gs.Memory),
		DefaultExcludes:  scanOpts.defaultExcludes,
		NoCache:          pickBool(scanOpts.noCache, ls.NoCache, gs.NoCache),
		CachePath:        l.ScanCache(),
		DryRun:           scanOpts.dryRun,
		ScanArchives:     pickBool(scanOpts.archives, ls.Archives, gs.Archives),
		RegistryImages:   pickStrings(scanOpts.images, ls.Images, gs.Images),
		ImageTarballs:    scanOpts.imageTars,
		MaxArtifactBytes: pickInt64(scanOpts.maxArtifact, ls.MaxArtifactBytes, gs.MaxArtifactBytes),
		MaxEntries:       pickInt(scanOpts.maxEntries, ls.MaxEntries, gs.MaxEntries),
		ScanTimeBudget:   pickDuration(scanOpts.timeBudget, ls.TimeBudget, gs.TimeBudget),
	}
	if !cmd.Flags().Changed("default-excludes") && ls.DefaultExcludes != nil {
		cfg.DefaultExcludes = *ls.DefaultExcludes
	}
	if !cfg.DryRun {
		s, err := factory.New(factory.Config{Database: cfg.Database, Native: scanNative})
		if err != nil {
			return err
		}
		cfg.Scanner = s
	}

	stderr := cmd.ErrOrStderr()
	showProgress := output != "json" && !scanOpts.tui && report.IsTerminal(stderr)
	total := 0
	if showProgress {
		total, _ = engine.CountTargets(cfg)
		_, _ = fmt.Fprintf(stderr, "Scanning %s (%s)...\n", abs, flags)
	}
	progressed := 0
	if total > 0 {
		cfg.Progress = func() {
			progressed++
			if progressed%10 == 0 || progressed == total {
				pct := float64(progressed) / float64(total) * 100
				_, _ = fmt.Fprintf(stderr, "\r[%d/%d] %.0f%%", progressed, total, pct)
			}
		}
	}

	res, err := engine.ScanWithStats(cmd.Context(), cfg)
	if total > 0 {
		_, _ = fmt.Fprintln(stderr)
	}
	if err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	for _, aerr := range res.ArtifactErrors {
		_, _ = fmt.Fprintln(stderr, "warning:", aerr)
	}

	saveLast := func(dets []types.Detection) {
		if cfg.DryRun {
			return
		}
		if err := cache.SaveResults(l.LastScan(), abs, dets); err != nil {
			observability.GetLogger().Warn("Could not save scan results.", zap.Error(err))
		}
	}
	saveLast(res.Detections)

	if scanOpts.tui {
		ctx := cmd.Context()
		cfg.Progress = nil
		rescan := func() ([]types.Detection, error) {
			again, err := engine.ScanWithStats(ctx, cfg)
			if err != nil {
				return nil, err
			}
			saveLast(again.Detections)
			return again.Detections, nil
		}
		if err := runTUI(res.Detections, rescan, tui.Options{Root: abs, Color: !noColor()}); err != nil {
			return err
		}
	} else if err := writeReport(cmd.OutOrStdout(), output, abs, res.Detections, res); err != nil {
		return err
	}
	if scanOpts.failOnError && res.Failed > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d files failed to scan", res.Failed, len(res.Detections))}
	}
	return nil
}

func writeReport(w io.Writer, output, root string, dets []types.Detection, res engine.Result) error {
	switch output {
	case "json":
		stats := report.Stats{FilesScanned: res.FilesScanned, Cached: res.Cached, Skipped: res.Skipped, Failed: res.Failed}
		return report.WriteJSON(w, version, root, dets, stats, res.Duration)
	case "table":
		return report.PrintTable(w, dets, printOptions(res))
	default:
		report.PrintText(w, dets, printOptions(res))
		return nil
	}
}

func printOptions(res engine.Result) report.PrintOptions {
	return report.PrintOptions{
		NoColor:      noColor(),
		Duration:     res.Duration,
		FilesScanned: res.FilesScanned,
		Cached:       res.Cached,
		Skipped:      res.Skipped,
	}
}

// engineLinked reports whether this binary carries the engine.
func engineLinked() bool {
	_, err := die.DefaultNative()
	return !errors.Is(err, die.ErrNotLinked)
}

