// Package die is a memory-safe Go facade over the Detect-It-Easy scanning
// engine's C entry points.
//
// The real binding is compiled only with cgo and the "die" build tag, linked
// against the artifacts produced by `diego build`:
//
//	eval "$(diego build --output env)"
//	go build -tags die ./...
//
// Without the tag every scanner reports ErrNotLinked, which keeps the rest of
// the module buildable on machines that never built the engine.
//
// Loading a signature database mutates engine-global state. Treat
// LoadDatabase as an initialization step: call it once, then scan.
//
//	if err := die.LoadDatabase("/opt/die/db"); err != nil { /* handle */ }
//	out, err := die.ScanFile("/bin/ls", die.DeepScan|die.ResultAsJSON)
package die
