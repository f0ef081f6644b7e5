package scanner

import "strings"

// ParseVirtualPath splits a virtual path into its components.
func ParseVirtualPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, VirtualPathSeparator)
}

// BuildVirtualPath joins components with the virtual path separator.
// Empty components are skipped.
func BuildVirtualPath(components ...string) string {
	parts := make([]string, 0, len(components))
	for _, c := range components {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, VirtualPathSeparator)
}

// IsVirtualPath reports whether path names content inside another artifact.
func IsVirtualPath(path string) bool {
	return strings.Contains(path, VirtualPathSeparator)
}

// ArtifactRoot returns the outermost artifact of a virtual path.
// Example: "alpine:3.20::sha256:abc::bin/sh" -> "alpine:3.20"
func ArtifactRoot(path string) string {
	parts := ParseVirtualPath(path)
	if len(parts) > 0 {
		return parts[0]
	}
	return path
}

// Leaf returns the innermost component of a virtual path.
func Leaf(path string) string {
	parts := ParseVirtualPath(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Depth returns the nesting depth of a virtual path.
func Depth(path string) int {
	return len(ParseVirtualPath(path))
}
