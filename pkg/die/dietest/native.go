// Package dietest provides an instrumented stand-in for the engine boundary.
// It allocates results the way the engine does (one buffer per scan, owned
// by the callee until freed) and counts every allocation and free.
package dietest

import (
	"fmt"
	"os"
	"sync"
	"unsafe"
)

// Call records one invocation of a scan or load entry point.
type Call struct {
	Op       string
	Path     string
	Data     []byte
	Flags    uint32
	Database string
}

// Responder produces the raw result bytes for a scan call. Returning nil
// makes the stub return a NULL pointer.
type Responder func(c Call) []byte

// Native implements die.Native without the engine.
type Native struct {
	// Respond overrides the default echo response.
	Respond Responder
	// LoadStatus is returned by LoadDatabase.
	LoadStatus int32

	mu          sync.Mutex
	calls       []Call
	live        map[unsafe.Pointer][]byte
	allocs      int
	frees       int
	badFrees    int
	copiesAfter int
}

// New returns a stub answering every scan with an echo of its inputs.
func New() *Native {
	return &Native{live: map[unsafe.Pointer][]byte{}}
}

// Echo is the default response: "Stub: <op> <target> flags=0x<flags>".
func Echo(c Call) []byte {
	target := c.Path
	if c.Op == "scan memory" || c.Op == "scan memory db" {
		target = fmt.Sprintf("%d bytes", len(c.Data))
	}
	return []byte(fmt.Sprintf("Stub: %s %s flags=0x%x", c.Op, target, c.Flags))
}

// Const answers every scan with the same bytes.
func Const(b []byte) Responder {
	return func(Call) []byte { return b }
}

// ByContent answers with a result derived only from the scanned bytes, so a
// file scan and a memory scan of the same content agree.
func ByContent(classify func(content []byte, flags uint32) string) Responder {
	return func(c Call) []byte {
		content := c.Data
		if c.Op == "scan file" || c.Op == "scan file db" {
			content = readFile(c.Path)
		}
		return []byte(classify(content, c.Flags))
	}
}

func (n *Native) ScanFile(path string, flags uint32) unsafe.Pointer {
	return n.scan(Call{Op: "scan file", Path: path, Flags: flags})
}

func (n *Native) ScanFileWithDB(path string, flags uint32, db string) unsafe.Pointer {
	return n.scan(Call{Op: "scan file db", Path: path, Flags: flags, Database: db})
}

func (n *Native) ScanMemory(buf []byte, flags uint32) unsafe.Pointer {
	return n.scan(Call{Op: "scan memory", Data: append([]byte(nil), buf...), Flags: flags})
}

func (n *Native) ScanMemoryWithDB(buf []byte, flags uint32, db string) unsafe.Pointer {
	return n.scan(Call{Op: "scan memory db", Data: append([]byte(nil), buf...), Flags: flags, Database: db})
}

func (n *Native) LoadDatabase(path string) int32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Call{Op: "load database", Path: path})
	return n.LoadStatus
}

func (n *Native) CopyResult(p unsafe.Pointer) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, ok := n.live[p]
	if !ok {
		n.copiesAfter++
		return nil
	}
	return append([]byte(nil), buf[:len(buf)-1]...)
}

func (n *Native) FreeResult(p unsafe.Pointer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.live[p]; !ok {
		n.badFrees++
		return
	}
	delete(n.live, p)
	n.frees++
}

func (n *Native) scan(c Call) unsafe.Pointer {
	respond := n.Respond
	if respond == nil {
		respond = Echo
	}
	out := respond(c)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.live == nil {
		n.live = map[unsafe.Pointer][]byte{}
	}
	n.calls = append(n.calls, c)
	if out == nil {
		return nil
	}
	buf := make([]byte, len(out)+1)
	copy(buf, out)
	p := unsafe.Pointer(&buf[0])
	n.live[p] = buf
	n.allocs++
	return p
}

// Calls returns a copy of the recorded calls.
func (n *Native) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Call(nil), n.calls...)
}

// Allocs is the number of results handed out.
func (n *Native) Allocs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.allocs
}

// Frees is the number of results released.
func (n *Native) Frees() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frees
}

// Live is the number of results handed out and not yet released.
func (n *Native) Live() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.live)
}

// BadFrees counts frees of unknown or already released pointers.
func (n *Native) BadFrees() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.badFrees
}

// UseAfterFree counts copies from unknown or already released pointers.
func (n *Native) UseAfterFree() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.copiesAfter
}

func readFile(path string) []byte {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return b
}
