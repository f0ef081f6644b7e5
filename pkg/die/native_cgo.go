//go:build cgo && die

package die

/*
#include <stdlib.h>
#include <string.h>

// Prototypes from die.h. Linker flags come from `diego build`.
extern void DIE_FreeMemoryA(char *pszString);
extern char *DIE_ScanFileA(char *pszFileName, unsigned int nFlags, char *pszDatabase);
extern char *DIE_ScanFileExA(char *pszFileName, unsigned int nFlags);
extern char *DIE_ScanMemoryA(char *pMemory, unsigned int nMemorySize, unsigned int nFlags, char *pszDatabase);
extern char *DIE_ScanMemoryExA(char *pMemory, unsigned int nMemorySize, unsigned int nFlags);
extern int DIE_LoadDatabaseA(char *pszDatabase);
*/
import "C"

import "unsafe"

type cgoNative struct{}

// DefaultNative returns the cgo binding to the linked engine.
func DefaultNative() (Native, error) {
	return cgoNative{}, nil
}

func (cgoNative) ScanFile(path string, flags uint32) unsafe.Pointer {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return unsafe.Pointer(C.DIE_ScanFileExA(cpath, C.uint(flags)))
}

func (cgoNative) ScanFileWithDB(path string, flags uint32, db string) unsafe.Pointer {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	cdb := C.CString(db)
	defer C.free(unsafe.Pointer(cdb))
	return unsafe.Pointer(C.DIE_ScanFileA(cpath, C.uint(flags), cdb))
}

func (cgoNative) ScanMemory(buf []byte, flags uint32) unsafe.Pointer {
	return unsafe.Pointer(C.DIE_ScanMemoryExA(bufPtr(buf), C.uint(len(buf)), C.uint(flags)))
}

func (cgoNative) ScanMemoryWithDB(buf []byte, flags uint32, db string) unsafe.Pointer {
	cdb := C.CString(db)
	defer C.free(unsafe.Pointer(cdb))
	return unsafe.Pointer(C.DIE_ScanMemoryA(bufPtr(buf), C.uint(len(buf)), C.uint(flags), cdb))
}

func (cgoNative) LoadDatabase(path string) int32 {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return int32(C.DIE_LoadDatabaseA(cpath))
}

func (cgoNative) CopyResult(p unsafe.Pointer) []byte {
	n := C.strlen((*C.char)(p))
	return C.GoBytes(p, C.int(n))
}

func (cgoNative) FreeResult(p unsafe.Pointer) {
	C.DIE_FreeMemoryA((*C.char)(p))
}

// bufPtr passes Go memory for the duration of one call. The slice holds no
// Go pointers, so cgo's pointer rules allow it.
func bufPtr(buf []byte) *C.char {
	if len(buf) == 0 {
		return nil
	}
	return (*C.char)(unsafe.Pointer(&buf[0]))
}
