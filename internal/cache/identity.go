package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Identity is everything besides the scanned bytes and flags that decides an
// engine result: the loaded database and the engine build.
type Identity struct {
	Database string
	// DatabaseStamp changes whenever a file under Database changes.
	DatabaseStamp string
	// Engine changes whenever the engine linked into the scanning binary
	// changes.
	Engine string
}

func (id Identity) String() string {
	return id.Database + "|" + id.DatabaseStamp + "|" + id.Engine
}

// DatabaseStamp hashes the path, size and modification time of every regular
// file under path (or of path itself when it is a file). An empty path
// yields "".
func DatabaseStamp(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	type entry struct {
		rel   string
		size  int64
		mtime int64
	}
	var entries []entry
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(path, p)
		entries = append(entries, entry{filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("stamp database %s: %w", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })
	h := xxhash.New()
	for _, e := range entries {
		_, _ = fmt.Fprintf(h, "%s\x00%d\x00%d\n", e.rel, e.size, e.mtime)
	}
	return fmt.Sprintf("%d:%016x", len(entries), h.Sum64()), nil
}

var (
	engineOnce  sync.Once
	engineStamp string
)

// EngineStamp identifies the running executable by size and modification
// time. The engine is linked statically, so relinking against a rebuilt
// engine changes the stamp.
func EngineStamp() string {
	engineOnce.Do(func() {
		exe, err := os.Executable()
		if err != nil {
			return
		}
		info, err := os.Stat(exe)
		if err != nil {
			return
		}
		engineStamp = fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())
	})
	return engineStamp
}
