package artifacts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

// ScanRegistryImage streams the layers of a remote image without pulling it
// to disk. Authentication uses the local Docker keychain when available.
func ScanRegistryImage(ctx context.Context, imageRef string, limits Limits, emit Emit, stats *Stats) error {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return fmt.Errorf("invalid image reference %q: %w", imageRef, err)
	}
	// Fetches the manifest only; layers are pulled lazily below.
	img, err := remote.Image(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return fmt.Errorf("failed to fetch image metadata for %q: %w", imageRef, err)
	}
	return scanImage(ctx, imageRef, "", img, limits, emit, stats)
}

// ScanImageTarball scans an image saved with `docker save` or written by
// go-containerregistry. label is the display name of the tarball.
func ScanImageTarball(ctx context.Context, path, label string, limits Limits, emit Emit, stats *Stats) error {
	img, err := tarball.ImageFromPath(path, nil)
	if err != nil {
		return fmt.Errorf("failed to open image tarball %q: %w", path, err)
	}
	return scanImage(ctx, label, path, img, limits, emit, stats)
}

func scanImage(ctx context.Context, label, realPath string, img v1.Image, limits Limits, emit Emit, stats *Stats) error {
	layers, err := img.Layers()
	if err != nil {
		return fmt.Errorf("failed to get layers for %q: %w", label, err)
	}

	b := newBudget(limits, stats)
	for i, layer := range layers {
		if stop, err := b.stop(ctx); stop {
			return err
		}
		digest, err := layer.Digest()
		if err != nil {
			continue
		}
		rc, err := layer.Uncompressed()
		if err != nil {
			return fmt.Errorf("failed to read layer %s: %w", digest, err)
		}
		meta := map[string]string{
			"image":        label,
			"layer_digest": digest.String(),
			"layer_index":  strconv.Itoa(i),
		}
		err = scanTar(ctx, label+"::"+digest.String(), realPath, meta, rc, b, emit)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
