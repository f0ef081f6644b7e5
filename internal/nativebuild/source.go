package nativebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Source locates the engine source repository.
type Source struct {
	URL string
	// Ref is a branch, a tag or a full "refs/..." name. Empty means the
	// remote HEAD.
	Ref string
}

// FetchSource shallow-clones src into dest, including submodules.
func FetchSource(ctx context.Context, src Source, dest string) error {
	opts := &git.CloneOptions{
		URL:               src.URL,
		Depth:             1,
		SingleBranch:      true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}
	candidates := refCandidates(src.Ref)
	if len(candidates) == 0 {
		_, err := git.PlainCloneContext(ctx, dest, false, opts)
		return err
	}

	var errs []error
	for _, ref := range candidates {
		opts.ReferenceName = ref
		_, err := git.PlainCloneContext(ctx, dest, false, opts)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", ref, err))
		// A failed clone may leave a partial repository behind.
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			return errors.Join(append(errs, rmErr)...)
		}
	}
	return errors.Join(errs...)
}

func refCandidates(ref string) []plumbing.ReferenceName {
	switch {
	case ref == "":
		return nil
	case strings.HasPrefix(ref, "refs/"):
		return []plumbing.ReferenceName{plumbing.ReferenceName(ref)}
	default:
		return []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(ref),
			plumbing.NewTagReferenceName(ref),
		}
	}
}

// fetchInto runs fetch against a sibling staging directory and renames it to
// dest on success.
func fetchInto(ctx context.Context, fetch func(context.Context, Source, string) error, src Source, dest string) error {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(parent, ".staging-"+filepath.Base(dest)+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := fetch(ctx, src, staging); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(staging, "CMakeLists.txt")); err != nil {
		return fmt.Errorf("%s has no CMakeLists.txt at %s", src.URL, refOrHead(src.Ref))
	}
	if entries, err := os.ReadDir(dest); err == nil {
		if len(entries) > 0 {
			return fmt.Errorf("refusing to replace non-empty %s", dest)
		}
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	return os.Rename(staging, dest)
}

func refOrHead(ref string) string {
	if ref == "" {
		return "HEAD"
	}
	return ref
}
