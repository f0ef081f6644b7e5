package die

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
	"unsafe"
)

// MaxBufferLen is the largest buffer the engine's 32-bit length can describe.
const MaxBufferLen = math.MaxUint32

// maxBufferLen is the enforced limit. Tests lower it to exercise the overflow
// path without allocating 4 GiB.
var maxBufferLen uint64 = MaxBufferLen

// Native is the raw engine boundary. Implementations only marshal: they
// receive arguments the Scanner has already validated (no NUL bytes, valid
// UTF-8, buffer length within MaxBufferLen) and return engine-owned pointers
// untouched. Ownership rules live in takeResult, not here.
type Native interface {
	// ScanFile calls DIE_ScanFileExA.
	ScanFile(path string, flags uint32) unsafe.Pointer
	// ScanFileWithDB calls DIE_ScanFileA.
	ScanFileWithDB(path string, flags uint32, db string) unsafe.Pointer
	// ScanMemory calls DIE_ScanMemoryExA. buf is only valid for the call.
	ScanMemory(buf []byte, flags uint32) unsafe.Pointer
	// ScanMemoryWithDB calls DIE_ScanMemoryA. buf is only valid for the call.
	ScanMemoryWithDB(buf []byte, flags uint32, db string) unsafe.Pointer
	// LoadDatabase calls DIE_LoadDatabaseA and returns its status.
	LoadDatabase(path string) int32
	// CopyResult copies the NUL-terminated result into Go memory.
	CopyResult(p unsafe.Pointer) []byte
	// FreeResult calls DIE_FreeMemoryA.
	FreeResult(p unsafe.Pointer)
}

// takeResult is the only place engine results are consumed. It copies the
// buffer, releases it exactly once (even if copying panics or the text is
// not UTF-8) and only then reports decoding problems.
func takeResult(n Native, op string, p unsafe.Pointer) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%s: %w", op, ErrNoResult)
	}
	raw := func() []byte {
		defer n.FreeResult(p)
		return n.CopyResult(p)
	}()
	if !utf8.Valid(raw) {
		return "", &EncodingError{Op: op, Offset: invalidUTF8Offset(raw)}
	}
	return string(raw), nil
}

// checkCString validates that s survives conversion to a C string unchanged.
func checkCString(arg, s string) error {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return &ConversionError{Arg: arg, Reason: fmt.Sprintf("NUL byte at offset %d", i)}
	}
	if !utf8.ValidString(s) {
		return &ConversionError{Arg: arg, Reason: fmt.Sprintf("invalid UTF-8 at byte %d", invalidUTF8Offset([]byte(s)))}
	}
	return nil
}

func checkBufferLen(buf []byte) error {
	if n := uint64(len(buf)); n > maxBufferLen {
		return &OverflowError{Len: n, Max: maxBufferLen}
	}
	return nil
}

func invalidUTF8Offset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
