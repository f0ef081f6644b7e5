// Package cache persists batch scan results keyed by content, flags,
// database contents and engine build, so unchanged files are not handed to the engine again.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/varalys/diego/pkg/die"
)

// Entry is one cached engine answer.
type Entry struct {
	Result   string `json:"result"`
	FileType string `json:"file_type,omitempty"`
}

// DB maps a content key (see Key) to the engine's answer.
type DB struct {
	Entries map[string]Entry `json:"entries"`
}

// Key identifies a scan outcome: the same bytes scanned with the same flags
// by the same engine build against the same database contents always
// produce the same result.
func Key(data []byte, flags die.ScanFlags, id Identity) string {
	return fmt.Sprintf("%016x:%08x:%016x", xxhash.Sum64(data), flags.Bits(), xxhash.Sum64String(id.String()))
}

// Load reads the cache at path. A missing or corrupt file returns an empty
// DB together with the error, so callers can log and continue.
func Load(path string) (DB, error) {
	var db DB
	f, err := os.ReadFile(path)
	if err != nil {
		return DB{Entries: map[string]Entry{}}, err
	}
	if err := json.Unmarshal(f, &db); err != nil {
		return DB{Entries: map[string]Entry{}}, err
	}
	if db.Entries == nil {
		db.Entries = map[string]Entry{}
	}
	return db, nil
}

// Save writes db to path, creating the parent directory.
func Save(path string, db DB) error {
	if db.Entries == nil {
		return errors.New("empty cache")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
