package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/varalys/diego/internal/ignore"
)

// Target is one file selected for scanning.
type Target struct {
	// Rel is the slash-separated path relative to the scan root.
	Rel string
	// Abs is the path handed to the engine in file mode.
	Abs  string
	Size int64
}

// Walk traverses cfg.Root and invokes handle for each eligible regular file,
// in lexical order. Files over cfg.MaxBytes are reported through skipped.
// A non-nil error from handle stops the walk.
func Walk(ctx context.Context, cfg Config, ign ignore.Matcher, handle func(Target) error, skipped func(Target)) error {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}
	st, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		t := Target{Rel: filepath.Base(root), Abs: root, Size: st.Size()}
		if cfg.MaxBytes > 0 && t.Size > cfg.MaxBytes {
			if skipped != nil {
				skipped(t)
			}
			return nil
		}
		return handle(t)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctx != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
		}
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if p == root {
				return nil
			}
			if cfg.DefaultExcludes && isDefaultDirExcluded(d.Name()) {
				return filepath.SkipDir
			}
			if ign.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !allowedByGlobs(rel, cfg) || ign.Match(rel) {
			return nil
		}
		if cfg.DefaultExcludes && isDefaultFileExcluded(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		t := Target{Rel: rel, Abs: p, Size: info.Size()}
		if cfg.MaxBytes > 0 && t.Size > cfg.MaxBytes {
			if skipped != nil {
				skipped(t)
			}
			return nil
		}
		return handle(t)
	})
}

// CountTargets returns how many files a scan of cfg would hand to the
// engine, without reading any of them.
func CountTargets(cfg Config) (int, error) {
	ign, err := loadIgnore(cfg)
	if err != nil {
		return 0, err
	}
	n := 0
	err = Walk(context.Background(), cfg, ign, func(Target) error {
		n++
		return nil
	}, nil)
	return n, err
}

func loadIgnore(cfg Config) (ignore.Matcher, error) {
	root := cfg.Root
	if st, err := os.Stat(root); err == nil && !st.IsDir() {
		return ignore.Matcher{}, nil
	}
	return ignore.Load(filepath.Join(root, ignore.FileName))
}
