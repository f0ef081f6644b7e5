package scanner

import "github.com/varalys/diego/pkg/die"

// Scanner is the engine surface the batch scanner needs. *die.Scanner
// satisfies it; tests substitute a die.Scanner over a dietest stub.
type Scanner interface {
	// Scan runs one file or memory scan and returns the engine's text.
	Scan(req die.ScanRequest) (string, error)

	// Database returns the signature database most recently loaded, or "".
	Database() string
}

// ScanContext describes where scanned content came from when it is not a
// plain file on disk, such as an entry inside a container image layer.
type ScanContext struct {
	// VirtualPath is the display path showing the artifact chain.
	// Example: "alpine:3.20::sha256:abc123::bin/busybox"
	VirtualPath string

	// RealPath is the filesystem path when the content is on disk.
	RealPath string

	// Metadata carries origin details, e.g. "image", "layer_digest".
	Metadata map[string]string
}

// VirtualPathSeparator is used to delimit components in virtual paths.
const VirtualPathSeparator = "::"
