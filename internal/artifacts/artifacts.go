// Package artifacts streams the entries of archives and container images to
// the engine without extracting them to disk. Every entry is emitted as an
// in-memory buffer under a virtual path such as "pkg.zip::bin/app".
package artifacts

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/varalys/diego/internal/scanner"
)

// Limits bounds how much of one artifact is read.
type Limits struct {
	// MaxArtifactBytes caps decompressed bytes per archive or image.
	MaxArtifactBytes int64
	// MaxEntryBytes skips single entries larger than this.
	MaxEntryBytes int64
	// MaxEntries caps emitted entries per artifact.
	MaxEntries int
	// TimeBudget caps wall time per artifact.
	TimeBudget time.Duration
}

// Emit receives one entry. The buffer is owned by the callee.
type Emit func(sc scanner.ScanContext, data []byte)

// Skip reasons recorded in Stats.
const (
	ReasonBytes     = "bytes"
	ReasonEntries   = "entries"
	ReasonTime      = "time"
	ReasonEntrySize = "entry_size"
)

// Stats counts why artifacts were cut short.
type Stats struct {
	mu      sync.Mutex
	Reasons map[string]int
}

func (s *Stats) add(reason string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reasons == nil {
		s.Reasons = map[string]int{}
	}
	s.Reasons[reason]++
}

// Count returns how often reason was recorded.
func (s *Stats) Count(reason string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Reasons[reason]
}

// IsArchivePath reports whether name has an archive extension this package
// can open.
func IsArchivePath(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".zip", ".jar", ".apk", ".tar", ".tar.gz", ".tgz"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// budget tracks one artifact's consumption against its Limits.
type budget struct {
	limits       Limits
	decompressed int64
	entries      int
	deadline     time.Time
	stats        *Stats
}

func newBudget(l Limits, stats *Stats) *budget {
	b := &budget{limits: l, stats: stats}
	if l.TimeBudget > 0 {
		b.deadline = time.Now().Add(l.TimeBudget)
	}
	return b
}

// exceeded returns the first limit hit, or "".
func (b *budget) exceeded() string {
	if b.limits.MaxEntries > 0 && b.entries >= b.limits.MaxEntries {
		return ReasonEntries
	}
	if b.limits.MaxArtifactBytes > 0 && b.decompressed >= b.limits.MaxArtifactBytes {
		return ReasonBytes
	}
	if !b.deadline.IsZero() && time.Now().After(b.deadline) {
		return ReasonTime
	}
	return ""
}

// stop records the reason when a limit is hit and reports whether to stop.
func (b *budget) stop(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if r := b.exceeded(); r != "" {
		b.stats.add(r)
		return true, nil
	}
	return false, nil
}

var errEntryTooLarge = errors.New("entry exceeds size limit")

// readEntry reads one entry, bounded by the remaining artifact budget and the
// per-entry cap.
func (b *budget) readEntry(r io.Reader, size int64) ([]byte, error) {
	if b.limits.MaxEntryBytes > 0 && size > b.limits.MaxEntryBytes {
		b.stats.add(ReasonEntrySize)
		return nil, errEntryTooLarge
	}
	remain := int64(1 << 62)
	if b.limits.MaxArtifactBytes > 0 {
		remain = b.limits.MaxArtifactBytes - b.decompressed
		if remain <= 0 {
			return nil, errors.New("byte budget exceeded")
		}
	}
	var buf bytes.Buffer
	chunk := int64(32 * 1024)
	for remain > 0 {
		if !b.deadline.IsZero() && time.Now().After(b.deadline) {
			return nil, errors.New("time budget exceeded")
		}
		sz := chunk
		if sz > remain {
			sz = remain
		}
		n, err := io.CopyN(&buf, r, sz)
		b.decompressed += n
		remain -= n
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (b *budget) emit(emit Emit, sc scanner.ScanContext, data []byte) {
	emit(sc, data)
	b.entries++
}

// ScanArchive emits every regular file inside the archive at fullPath. rel
// is the display path used as the first virtual path component.
func ScanArchive(ctx context.Context, fullPath, rel string, limits Limits, emit Emit, stats *Stats) error {
	f, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer f.Close()

	b := newBudget(limits, stats)
	lower := strings.ToLower(rel)
	switch {
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".jar"), strings.HasSuffix(lower, ".apk"):
		fi, err := f.Stat()
		if err != nil {
			return err
		}
		zr, err := zip.NewReader(f, fi.Size())
		if err != nil {
			return fmt.Errorf("open zip %s: %w", rel, err)
		}
		return scanZip(ctx, rel, fullPath, zr, b, emit)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip %s: %w", rel, err)
		}
		defer gz.Close()
		return scanTar(ctx, rel, fullPath, nil, gz, b, emit)
	case strings.HasSuffix(lower, ".tar"):
		return scanTar(ctx, rel, fullPath, nil, f, b, emit)
	default:
		return fmt.Errorf("not an archive: %s", rel)
	}
}

func scanZip(ctx context.Context, prefix, realPath string, zr *zip.Reader, b *budget, emit Emit) error {
	for _, zf := range zr.File {
		if stop, err := b.stop(ctx); stop {
			return err
		}
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			continue
		}
		data, readErr := b.readEntry(rc, int64(zf.UncompressedSize64))
		_ = rc.Close()
		if readErr != nil {
			continue
		}
		b.emit(emit, scanner.ScanContext{
			VirtualPath: scanner.BuildVirtualPath(prefix, zf.Name),
			RealPath:    realPath,
			Metadata:    map[string]string{"archive": prefix},
		}, data)
	}
	return nil
}

// scanTar emits regular files from a tar stream. Layer whiteout markers are
// skipped since they carry no content.
func scanTar(ctx context.Context, prefix, realPath string, meta map[string]string, r io.Reader, b *budget, emit Emit) error {
	tr := tar.NewReader(r)
	for {
		if stop, err := b.stop(ctx); stop {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", prefix, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if base := name[strings.LastIndex(name, "/")+1:]; strings.HasPrefix(base, ".wh.") {
			continue
		}
		data, readErr := b.readEntry(tr, hdr.Size)
		if readErr != nil {
			continue
		}
		md := map[string]string{}
		for k, v := range meta {
			md[k] = v
		}
		if len(md) == 0 {
			md["archive"] = prefix
		}
		b.emit(emit, scanner.ScanContext{
			VirtualPath: scanner.BuildVirtualPath(prefix, name),
			RealPath:    realPath,
			Metadata:    md,
		}, data)
	}
}
