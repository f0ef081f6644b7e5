package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVirtualPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected []string
	}{
		{name: "empty", path: "", expected: nil},
		{name: "plain file", path: "bin/app", expected: []string{"bin/app"}},
		{
			name:     "image entry",
			path:     "alpine:3.20::sha256:abc::bin/busybox",
			expected: []string{"alpine:3.20", "sha256:abc", "bin/busybox"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseVirtualPath(tt.path))
		})
	}
}

func TestBuildVirtualPathSkipsEmpty(t *testing.T) {
	assert.Equal(t, "img::sha256:abc::bin/sh", BuildVirtualPath("img", "", "sha256:abc", "bin/sh"))
	assert.Equal(t, "", BuildVirtualPath())
}

func TestVirtualPathHelpers(t *testing.T) {
	vp := "registry.local/app:1::sha256:feed::usr/lib/libc.so"
	assert.True(t, IsVirtualPath(vp))
	assert.False(t, IsVirtualPath("usr/lib/libc.so"))
	assert.Equal(t, "registry.local/app:1", ArtifactRoot(vp))
	assert.Equal(t, "usr/lib/libc.so", Leaf(vp))
	assert.Equal(t, 3, Depth(vp))
	assert.Equal(t, 0, Depth(""))
	assert.Equal(t, "", Leaf(""))
}
