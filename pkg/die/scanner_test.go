package die

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varalys/diego/pkg/die/dietest"
)

var _ Native = (*dietest.Native)(nil)

func assertBalanced(t *testing.T, n *dietest.Native) {
	t.Helper()
	assert.Equal(t, n.Allocs(), n.Frees(), "every engine result must be freed")
	assert.Zero(t, n.Live(), "no engine result may outlive its call")
	assert.Zero(t, n.BadFrees(), "no double or foreign frees")
	assert.Zero(t, n.UseAfterFree(), "no reads after free")
}

func TestScanFile_CopiesThenFreesOnce(t *testing.T) {
	n := dietest.New()
	n.Respond = dietest.Const([]byte("ELF64\n    Library: GLIBC(2.35)"))
	s := NewScanner(n)

	out, err := s.ScanFile("/bin/ls", DeepScan)
	require.NoError(t, err)
	assert.Equal(t, "ELF64\n    Library: GLIBC(2.35)", out)
	assert.Equal(t, "ELF64", FileType(out))

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "scan file", calls[0].Op)
	assert.Equal(t, "/bin/ls", calls[0].Path)
	assert.Equal(t, uint32(DeepScan), calls[0].Flags)
	assert.Equal(t, 1, n.Allocs())
	assertBalanced(t, n)
}

func TestScanFileWithDB_PassesBothPaths(t *testing.T) {
	n := dietest.New()
	s := NewScanner(n)

	_, err := s.ScanFileWithDB("sample.exe", DeepScan|ResultAsJSON, "/opt/die/db")
	require.NoError(t, err)

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "scan file db", calls[0].Op)
	assert.Equal(t, "sample.exe", calls[0].Path)
	assert.Equal(t, "/opt/die/db", calls[0].Database)
	assert.Equal(t, uint32(0x00020001), calls[0].Flags)
	assertBalanced(t, n)
}

func TestScanMemory_PassesBufferAndLength(t *testing.T) {
	n := dietest.New()
	s := NewScanner(n)

	data := []byte("MZ\x90\x00")
	out, err := s.ScanMemory(data, HeuristicScan)
	require.NoError(t, err)
	assert.Equal(t, "Stub: scan memory 4 bytes flags=0x2", out)

	out, err = s.ScanMemoryWithDB(data, HeuristicScan, "db")
	require.NoError(t, err)
	assert.Equal(t, "Stub: scan memory db 4 bytes flags=0x2", out)
	assert.Equal(t, "db", n.Calls()[1].Database)
	assertBalanced(t, n)
}

func TestScanMemory_EmptyBuffer(t *testing.T) {
	n := dietest.New()
	s := NewScanner(n)

	out, err := s.ScanMemory([]byte{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Stub: scan memory 0 bytes flags=0x0", out)
	assertBalanced(t, n)
}

func withMaxBufferLen(t *testing.T, n uint64) {
	t.Helper()
	prev := maxBufferLen
	maxBufferLen = n
	t.Cleanup(func() { maxBufferLen = prev })
}

func TestScanMemory_OverflowRejectedBeforeEngine(t *testing.T) {
	withMaxBufferLen(t, 4)
	n := dietest.New()
	s := NewScanner(n)

	_, err := s.ScanMemory([]byte("12345"), DeepScan)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverflow)
	var oe *OverflowError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, uint64(5), oe.Len)
	assert.Equal(t, uint64(4), oe.Max)

	_, err = s.ScanMemoryWithDB([]byte("12345"), DeepScan, "db")
	assert.ErrorIs(t, err, ErrOverflow)

	assert.Empty(t, n.Calls(), "engine must not be invoked")
	assert.Zero(t, n.Allocs())
}

func TestScanMemory_AtLimitIsAccepted(t *testing.T) {
	withMaxBufferLen(t, 4)
	n := dietest.New()
	s := NewScanner(n)

	_, err := s.ScanMemory([]byte("1234"), DeepScan)
	require.NoError(t, err)
	assert.Len(t, n.Calls(), 1)
	assertBalanced(t, n)
}

func TestMaxBufferLenIs32Bit(t *testing.T) {
	assert.Equal(t, uint64(1<<32-1), uint64(MaxBufferLen))
	assert.Equal(t, uint64(MaxBufferLen), maxBufferLen)
}

func TestConversionErrors_NeverReachEngine(t *testing.T) {
	tests := []struct {
		name string
		call func(s *Scanner) error
		arg  string
	}{
		{"nul in path", func(s *Scanner) error { _, err := s.ScanFile("a\x00b", 0); return err }, "path"},
		{"invalid utf8 path", func(s *Scanner) error { _, err := s.ScanFile("a\xffb", 0); return err }, "path"},
		{"nul in db with file", func(s *Scanner) error { _, err := s.ScanFileWithDB("a", 0, "d\x00b"); return err }, "database"},
		{"invalid utf8 db with memory", func(s *Scanner) error { _, err := s.ScanMemoryWithDB([]byte("x"), 0, "\xc3\x28"); return err }, "database"},
		{"nul in load path", func(s *Scanner) error { return s.LoadDatabase("\x00") }, "database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := dietest.New()
			err := tt.call(NewScanner(n))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConversion)
			var ce *ConversionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.arg, ce.Arg)
			assert.Empty(t, n.Calls())
		})
	}
}

func TestEncodingError_StillFreesResult(t *testing.T) {
	n := dietest.New()
	n.Respond = dietest.Const([]byte("PE32\xff\xfe"))
	s := NewScanner(n)

	_, err := s.ScanFile("x.exe", DeepScan)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
	var ee *EncodingError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 4, ee.Offset)
	assert.Equal(t, 1, n.Frees())
	assertBalanced(t, n)
}

func TestNullResult(t *testing.T) {
	n := dietest.New()
	n.Respond = func(dietest.Call) []byte { return nil }
	s := NewScanner(n)

	_, err := s.ScanMemory([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Zero(t, n.Allocs())
	assert.Zero(t, n.Frees())
}

type panickingCopy struct {
	*dietest.Native
}

func (panickingCopy) CopyResult(unsafe.Pointer) []byte { panic("copy failed") }

func TestTakeResult_FreesWhenCopyPanics(t *testing.T) {
	n := dietest.New()
	s := NewScanner(panickingCopy{n})

	assert.Panics(t, func() { _, _ = s.ScanFile("x", 0) })
	assert.Equal(t, 1, n.Frees())
	assertBalanced(t, n)
}

func TestLoadDatabase_StatusMapping(t *testing.T) {
	for _, code := range []int32{0, 1, -1, 42, -2147483648} {
		n := dietest.New()
		n.LoadStatus = code
		s := NewScanner(n)

		err := s.LoadDatabase("/opt/die/db")
		if code == 0 {
			require.NoError(t, err)
			assert.Equal(t, "/opt/die/db", s.Database())
			continue
		}
		require.Error(t, err, "code %d", code)
		assert.ErrorIs(t, err, ErrEngine)
		var ee *EngineError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, code, ee.Code)
		assert.Empty(t, s.Database())
	}
}

func TestLeakFreedom_MixedCalls(t *testing.T) {
	withMaxBufferLen(t, 8)
	n := dietest.New()
	n.Respond = func(c dietest.Call) []byte {
		if c.Path == "bad-encoding" {
			return []byte{0xc0}
		}
		return dietest.Echo(c)
	}
	s := NewScanner(n)

	_, _ = s.ScanFile("ok", DeepScan)
	_, _ = s.ScanFile("bad-encoding", DeepScan)
	_, _ = s.ScanFileWithDB("ok", DeepScan, "db")
	_, _ = s.ScanFileWithDB("bad-encoding", DeepScan, "db")
	_, _ = s.ScanMemory([]byte("small"), 0)
	_, _ = s.ScanMemory([]byte("far too large"), 0)
	_, _ = s.ScanMemoryWithDB([]byte("small"), 0, "db")
	_, _ = s.ScanFile("nul\x00", 0)

	assert.Equal(t, 6, n.Allocs())
	assertBalanced(t, n)
}

func TestLeakFreedom_Concurrent(t *testing.T) {
	n := dietest.New()
	s := NewScanner(n)
	require.NoError(t, s.LoadDatabase("db"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					_, _ = s.ScanMemory([]byte{byte(i), byte(j)}, DeepScan)
				} else {
					_, _ = s.ScanFile("f", DeepScan)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 800, n.Allocs())
	assertBalanced(t, n)
}

func TestMemoryFileEquivalence(t *testing.T) {
	classify := func(content []byte, flags uint32) string {
		switch {
		case len(content) >= 4 && string(content[:4]) == "\x7fELF":
			return "ELF64"
		case len(content) >= 2 && string(content[:2]) == "MZ":
			return "PE64"
		default:
			return "Binary"
		}
	}
	n := dietest.New()
	n.Respond = dietest.ByContent(classify)
	s := NewScanner(n)

	dir := t.TempDir()
	for name, content := range map[string][]byte{
		"elf":  []byte("\x7fELF\x02\x01\x01"),
		"pe":   []byte("MZ\x90\x00\x03"),
		"blob": []byte("hello"),
	} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, content, 0o644))

		fromFile, err := s.ScanFile(p, DeepScan)
		require.NoError(t, err)
		fromMem, err := s.ScanMemory(content, DeepScan)
		require.NoError(t, err)
		assert.Equal(t, fromFile, fromMem, name)

		fromFileDB, err := s.ScanFileWithDB(p, DeepScan, "db")
		require.NoError(t, err)
		fromMemDB, err := s.ScanMemoryWithDB(content, DeepScan, "db")
		require.NoError(t, err)
		assert.Equal(t, fromFileDB, fromMemDB, name)
	}
	assertBalanced(t, n)
}

func TestScan_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		req  ScanRequest
		op   string
	}{
		{"file", ScanRequest{Path: "a"}, "scan file"},
		{"file db", ScanRequest{Path: "a", Database: "db"}, "scan file db"},
		{"memory", ScanRequest{Data: []byte("x")}, "scan memory"},
		{"empty memory", ScanRequest{Data: []byte{}}, "scan memory"},
		{"memory db", ScanRequest{Data: []byte("x"), Database: "db"}, "scan memory db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := dietest.New()
			_, err := NewScanner(n).Scan(tt.req)
			require.NoError(t, err)
			require.Len(t, n.Calls(), 1)
			assert.Equal(t, tt.op, n.Calls()[0].Op)
		})
	}
}

func TestScan_InvalidRequest(t *testing.T) {
	n := dietest.New()
	s := NewScanner(n)

	_, err := s.Scan(ScanRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = s.Scan(ScanRequest{Path: "a", Data: []byte("b")})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, n.Calls())
}

func TestUnknownFlagBitsAreMasked(t *testing.T) {
	n := dietest.New()
	_, err := NewScanner(n).ScanFile("a", DeepScan|ScanFlags(0x80000000))
	require.NoError(t, err)
	assert.Equal(t, uint32(DeepScan), n.Calls()[0].Flags)
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "ELF64", FileType("ELF64\n    Library: GLIBC"))
	assert.Equal(t, "PE64", FileType("PE64\r\n    Linker: Microsoft"))
	assert.Equal(t, "Mach-O64", FileType("  Mach-O64  "))
	assert.Equal(t, "", FileType(""))
}
