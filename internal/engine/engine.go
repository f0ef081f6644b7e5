package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/varalys/diego/internal/artifacts"
	"github.com/varalys/diego/internal/cache"
	"github.com/varalys/diego/internal/ignore"
	"github.com/varalys/diego/internal/observability"
	"github.com/varalys/diego/internal/scanner"
	"github.com/varalys/diego/internal/scanner/factory"
	"github.com/varalys/diego/internal/types"
	"github.com/varalys/diego/pkg/die"
)

// Config controls batch scanning: scope, engine flags, performance and
// filters.
type Config struct {
	Root            string
	IncludeGlobs    string
	ExcludeGlobs    string
	MaxBytes        int64
	Threads         int
	Flags           die.ScanFlags
	Database        string
	Memory          bool
	DefaultExcludes bool
	NoCache         bool
	CachePath       string
	// EngineID identifies the engine build in cache keys. Empty means the
	// running executable's stamp.
	EngineID string
	DryRun          bool
	// Progress is called once per finished item, never concurrently.
	Progress func()

	// Scanner overrides the engine scanner. When nil one is built from
	// Database with the linked engine.
	Scanner scanner.Scanner

	// Deep artifact scanning (optional)
	ScanArchives     bool
	RegistryImages   []string
	ImageTarballs    []string
	MaxArtifactBytes int64
	MaxEntryBytes    int64
	MaxEntries       int
	ScanTimeBudget   time.Duration
}

// Result contains detections and basic scan statistics.
type Result struct {
	Detections     []types.Detection
	FilesScanned   int
	Cached         int
	Skipped        int
	Failed         int
	Duration       time.Duration
	ArtifactStats  map[string]int
	ArtifactErrors []error
}

// Scan runs a scan and returns only detections (without stats).
func Scan(ctx context.Context, cfg Config) ([]types.Detection, error) {
	res, err := ScanWithStats(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return res.Detections, nil
}

type item struct {
	sc     scanner.ScanContext
	abs    string
	data   []byte
	size   int64
	memory bool
}

type run struct {
	cfg      Config
	scnr     scanner.Scanner
	db       cache.DB
	database string
	id       cache.Identity
	useCache bool
	log      *zap.Logger

	mu      sync.Mutex
	out     []types.Detection
	updated map[string]cache.Entry
	res     *Result
}

// ScanWithStats runs a scan and returns detections along with timing and
// counts. Per-file engine failures are recorded on the detection and do not
// stop the batch; walk errors and cancellation do.
func ScanWithStats(ctx context.Context, cfg Config) (Result, error) {
	var result Result
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Flags.CheckExclusiveFormat(); err != nil {
		return result, err
	}

	scnr := cfg.Scanner
	if scnr == nil && !cfg.DryRun {
		s, err := factory.New(factory.Config{Database: cfg.Database})
		if err != nil {
			return result, fmt.Errorf("failed to initialize scanner: %w", err)
		}
		scnr = s
	}

	r := &run{
		cfg:     cfg,
		scnr:    scnr,
		log:     observability.GetLogger().Named("engine"),
		updated: map[string]cache.Entry{},
		res:     &result,
	}
	if scnr != nil {
		r.database = scnr.Database()
	}
	r.useCache = !cfg.NoCache && !cfg.DryRun && cfg.CachePath != ""
	if r.useCache {
		r.id = cache.Identity{Database: r.database, Engine: cfg.EngineID}
		if r.id.Engine == "" {
			r.id.Engine = cache.EngineStamp()
		}
		stamp, err := cache.DatabaseStamp(r.database)
		if err != nil {
			r.log.Warn("Scan cache disabled: database not readable.", zap.String("database", r.database), zap.Error(err))
			r.useCache = false
		}
		r.id.DatabaseStamp = stamp
	}
	if r.useCache {
		db, err := cache.Load(cfg.CachePath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("Ignoring unreadable scan cache.", zap.String("path", cfg.CachePath), zap.Error(err))
		}
		r.db = db
	} else {
		r.db.Entries = map[string]cache.Entry{}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	ign, err := loadIgnore(cfg)
	if err != nil {
		return result, fmt.Errorf("failed to load %s: %w", ignore.FileName, err)
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	schedule := func(it item) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.scanOne(it)
			return nil
		})
	}

	walkErr := Walk(gctx, cfg, ign, func(t Target) error {
		schedule(item{
			sc:   scanner.ScanContext{VirtualPath: t.Rel, RealPath: t.Abs},
			abs:  t.Abs,
			size: t.Size,
		})
		if cfg.ScanArchives && artifacts.IsArchivePath(t.Rel) {
			r.scanArtifact(gctx, schedule, func(lim artifacts.Limits, emit artifacts.Emit, stats *artifacts.Stats) error {
				return artifacts.ScanArchive(gctx, t.Abs, t.Rel, lim, emit, stats)
			})
		}
		return nil
	}, func(Target) {
		r.mu.Lock()
		result.Skipped++
		r.mu.Unlock()
	})

	if walkErr == nil {
		for _, img := range cfg.RegistryImages {
			r.scanArtifact(gctx, schedule, func(lim artifacts.Limits, emit artifacts.Emit, stats *artifacts.Stats) error {
				return artifacts.ScanRegistryImage(gctx, img, lim, emit, stats)
			})
		}
		for _, p := range cfg.ImageTarballs {
			r.scanArtifact(gctx, schedule, func(lim artifacts.Limits, emit artifacts.Emit, stats *artifacts.Stats) error {
				return artifacts.ScanImageTarball(gctx, p, p, lim, emit, stats)
			})
		}
	}

	groupErr := g.Wait()
	if walkErr != nil {
		return result, walkErr
	}
	if groupErr != nil {
		return result, groupErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	sort.SliceStable(r.out, func(i, j int) bool { return r.out[i].Path < r.out[j].Path })
	result.Detections = r.out
	result.Duration = time.Since(started)

	if r.useCache && len(r.updated) > 0 {
		for k, v := range r.updated {
			r.db.Entries[k] = v
		}
		if err := cache.Save(cfg.CachePath, r.db); err != nil {
			r.log.Warn("Failed to save scan cache.", zap.String("path", cfg.CachePath), zap.Error(err))
		}
	}
	r.log.Debug("Batch scan complete.",
		zap.Int("scanned", result.FilesScanned),
		zap.Int("cached", result.Cached),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// scanArtifact streams one archive or image, scheduling a memory scan per
// entry. Artifact failures are collected, not fatal.
func (r *run) scanArtifact(ctx context.Context, schedule func(item), stream func(artifacts.Limits, artifacts.Emit, *artifacts.Stats) error) {
	lim := artifacts.Limits{
		MaxArtifactBytes: r.cfg.MaxArtifactBytes,
		MaxEntryBytes:    r.cfg.MaxEntryBytes,
		MaxEntries:       r.cfg.MaxEntries,
		TimeBudget:       r.cfg.ScanTimeBudget,
	}
	if lim.MaxEntryBytes == 0 {
		lim.MaxEntryBytes = r.cfg.MaxBytes
	}
	var stats artifacts.Stats
	err := stream(lim, func(sc scanner.ScanContext, data []byte) {
		schedule(item{sc: sc, data: data, size: int64(len(data)), memory: true})
	}, &stats)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil && ctx.Err() == nil {
		r.res.ArtifactErrors = append(r.res.ArtifactErrors, err)
		r.log.Warn("Artifact scan failed.", zap.Error(err))
	}
	for reason, n := range stats.Reasons {
		if r.res.ArtifactStats == nil {
			r.res.ArtifactStats = map[string]int{}
		}
		r.res.ArtifactStats[reason] += n
	}
}

// scanOne scans a single item and records its detection. Artifact entries
// always go through memory scanning; plain files follow cfg.Memory.
func (r *run) scanOne(it item) {
	cfg := r.cfg
	det := types.Detection{
		Path:     it.sc.VirtualPath,
		Mode:     types.ModeFile,
		Size:     it.size,
		Flags:    cfg.Flags,
		FlagSet:  cfg.Flags.String(),
		Database: r.database,
		Metadata: it.sc.Metadata,
	}

	inMemory := it.memory || cfg.Memory
	if inMemory {
		det.Mode = types.ModeMemory
	}
	if cfg.DryRun {
		r.record(det, "", cache.Entry{}, false)
		return
	}

	data := it.data
	if !it.memory && (inMemory || r.useCache) {
		b, err := os.ReadFile(it.abs)
		if err != nil {
			det.Error = err.Error()
			r.record(det, "", cache.Entry{}, false)
			return
		}
		data = b
	}

	var key string
	if r.useCache {
		key = cache.Key(data, cfg.Flags, r.id)
		if hit, ok := r.db.Entries[key]; ok {
			det.Result = hit.Result
			det.FileType = hit.FileType
			det.Cached = true
			r.record(det, "", cache.Entry{}, false)
			return
		}
	}

	req := die.ScanRequest{Flags: cfg.Flags}
	if inMemory {
		req.Data = data
		if req.Data == nil {
			req.Data = []byte{}
		}
	} else {
		req.Path = it.abs
	}
	out, err := r.scnr.Scan(req)
	if err != nil {
		det.Error = err.Error()
		r.record(det, "", cache.Entry{}, true)
		return
	}
	det.Result = out
	det.FileType = die.FileType(out)
	r.record(det, key, cache.Entry{Result: out, FileType: det.FileType}, true)
}

func (r *run) record(det types.Detection, key string, entry cache.Entry, scanned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, det)
	if scanned {
		r.res.FilesScanned++
	}
	if det.Cached {
		r.res.Cached++
	}
	if det.Failed() {
		r.res.Failed++
	}
	if key != "" {
		r.updated[key] = entry
	}
	if r.cfg.Progress != nil {
		r.cfg.Progress()
	}
}
