package die

import (
	"strings"
	"sync"
)

// Scanner issues scans against one Native boundary.
//
// The loaded signature database is engine-global. Scanner serializes
// LoadDatabase against its own in-flight scans (write lock vs read lock), but
// cannot protect against other Scanners sharing the same engine; load the
// database once before scanning concurrently.
type Scanner struct {
	native Native

	mu       sync.RWMutex
	database string
}

// NewScanner wraps an explicit boundary, typically a test stub.
func NewScanner(n Native) *Scanner {
	return &Scanner{native: n}
}

// New returns a Scanner over the linked engine, or ErrNotLinked.
func New() (*Scanner, error) {
	n, err := DefaultNative()
	if err != nil {
		return nil, err
	}
	return NewScanner(n), nil
}

// ScanFile scans the file at path using the engine's built-in database state.
func (s *Scanner) ScanFile(path string, flags ScanFlags) (string, error) {
	if err := checkCString("path", path); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeResult(s.native, "scan file", s.native.ScanFile(path, flags.Bits()))
}

// ScanFileWithDB scans the file at path against the database at db.
func (s *Scanner) ScanFileWithDB(path string, flags ScanFlags, db string) (string, error) {
	if err := checkCString("path", path); err != nil {
		return "", err
	}
	if err := checkCString("database", db); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeResult(s.native, "scan file", s.native.ScanFileWithDB(path, flags.Bits(), db))
}

// ScanMemory scans buf. The engine only sees buf for the duration of the
// call; callers must not mutate it concurrently.
func (s *Scanner) ScanMemory(buf []byte, flags ScanFlags) (string, error) {
	if err := checkBufferLen(buf); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeResult(s.native, "scan memory", s.native.ScanMemory(buf, flags.Bits()))
}

// ScanMemoryWithDB scans buf against the database at db.
func (s *Scanner) ScanMemoryWithDB(buf []byte, flags ScanFlags, db string) (string, error) {
	if err := checkBufferLen(buf); err != nil {
		return "", err
	}
	if err := checkCString("database", db); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeResult(s.native, "scan memory", s.native.ScanMemoryWithDB(buf, flags.Bits(), db))
}

// LoadDatabase loads the signature database at path into the engine.
// A zero status is success; anything else is an *EngineError with the code.
func (s *Scanner) LoadDatabase(path string) error {
	if err := checkCString("database", path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.native.LoadDatabase(path); code != 0 {
		return &EngineError{Op: "load database", Code: code}
	}
	s.database = path
	return nil
}

// Database returns the path of the last successfully loaded database.
func (s *Scanner) Database() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.database
}

// ScanRequest describes one scan. Exactly one of Path or Data must be set;
// a non-nil empty Data scans an empty buffer.
type ScanRequest struct {
	Path     string
	Data     []byte
	Flags    ScanFlags
	Database string
}

// InMemory reports whether the request targets a buffer.
func (r ScanRequest) InMemory() bool {
	return r.Data != nil
}

// Scan dispatches req to the matching entry point.
func (s *Scanner) Scan(req ScanRequest) (string, error) {
	if (req.Path == "") == (req.Data == nil) {
		return "", ErrInvalidRequest
	}
	switch {
	case req.InMemory() && req.Database != "":
		return s.ScanMemoryWithDB(req.Data, req.Flags, req.Database)
	case req.InMemory():
		return s.ScanMemory(req.Data, req.Flags)
	case req.Database != "":
		return s.ScanFileWithDB(req.Path, req.Flags, req.Database)
	default:
		return s.ScanFile(req.Path, req.Flags)
	}
}

// FileType returns the leading format tag of a plain-text result, e.g.
// "ELF64" for "ELF64\n    Compiler: ...". Structured results are returned
// unchanged up to the first line break.
func FileType(result string) string {
	line := result
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

var (
	defaultOnce    sync.Once
	defaultScanner *Scanner
	defaultErr     error
)

// Default returns the process-wide Scanner over the linked engine.
func Default() (*Scanner, error) {
	defaultOnce.Do(func() {
		defaultScanner, defaultErr = New()
	})
	return defaultScanner, defaultErr
}

// ScanFile scans path with the default Scanner.
func ScanFile(path string, flags ScanFlags) (string, error) {
	s, err := Default()
	if err != nil {
		return "", err
	}
	return s.ScanFile(path, flags)
}

// ScanFileWithDB scans path against db with the default Scanner.
func ScanFileWithDB(path string, flags ScanFlags, db string) (string, error) {
	s, err := Default()
	if err != nil {
		return "", err
	}
	return s.ScanFileWithDB(path, flags, db)
}

// ScanMemory scans buf with the default Scanner.
func ScanMemory(buf []byte, flags ScanFlags) (string, error) {
	s, err := Default()
	if err != nil {
		return "", err
	}
	return s.ScanMemory(buf, flags)
}

// ScanMemoryWithDB scans buf against db with the default Scanner.
func ScanMemoryWithDB(buf []byte, flags ScanFlags, db string) (string, error) {
	s, err := Default()
	if err != nil {
		return "", err
	}
	return s.ScanMemoryWithDB(buf, flags, db)
}

// LoadDatabase loads path into the engine through the default Scanner.
func LoadDatabase(path string) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.LoadDatabase(path)
}
