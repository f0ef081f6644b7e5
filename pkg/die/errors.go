package die

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to one of them so callers
// can match with errors.Is and still recover detail with errors.As.
var (
	// ErrConversion reports a Go string that has no C string representation.
	ErrConversion = errors.New("die: value not representable as a C string")
	// ErrOverflow reports a buffer longer than the engine's 32-bit length.
	ErrOverflow = errors.New("die: buffer too large for engine")
	// ErrEngine reports a non-zero status returned by the engine.
	ErrEngine = errors.New("die: engine call failed")
	// ErrEncoding reports an engine result that is not valid UTF-8.
	ErrEncoding = errors.New("die: engine result is not valid UTF-8")
	// ErrNoResult reports a scan entry point that returned NULL.
	ErrNoResult = errors.New("die: engine returned no result")
	// ErrNotLinked reports a binary built without the engine (no "die" tag).
	ErrNotLinked = errors.New("die: engine not linked; build with cgo and -tags die")
	// ErrInvalidRequest reports a ScanRequest with no target or two targets.
	ErrInvalidRequest = errors.New("die: scan request needs exactly one of path or data")
)

// ConversionError names the argument that could not be converted.
type ConversionError struct {
	Arg    string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("die: %s is not representable as a C string: %s", e.Arg, e.Reason)
}

func (e *ConversionError) Unwrap() error { return ErrConversion }

// OverflowError carries the rejected length and the engine limit.
type OverflowError struct {
	Len uint64
	Max uint64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("die: buffer of %d bytes exceeds engine limit of %d", e.Len, e.Max)
}

func (e *OverflowError) Unwrap() error { return ErrOverflow }

// EngineError carries the numeric status returned by the engine.
type EngineError struct {
	Op   string
	Code int32
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("die: %s failed with engine code %d", e.Op, e.Code)
}

func (e *EngineError) Unwrap() error { return ErrEngine }

// EncodingError reports where the engine result stopped being valid UTF-8.
type EncodingError struct {
	Op     string
	Offset int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("die: %s returned invalid UTF-8 at byte %d", e.Op, e.Offset)
}

func (e *EncodingError) Unwrap() error { return ErrEncoding }
