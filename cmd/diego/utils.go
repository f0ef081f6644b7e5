package diego

import (
	"runtime/debug"
	"time"

	semver3 "github.com/blang/semver"
	semver "github.com/blang/semver/v4"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
)

func selfUpdate() (string, error) {
	v := version
	// Use build info if tag overridden at build-time
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(v) == 0 {
				v = s.Value
			}
		}
	}
	// parse semantic version (strip leading v)
	ver, err := semver.ParseTolerant(v)
	if err != nil {
		ver = semver.MustParse("0.0.0")
	}
	// Update from GitHub Releases: varalys/diego
	latest, err := selfupdate.UpdateSelf(semver3.MustParse(ver.String()), "varalys/diego")
	if err != nil {
		return "", err
	}
	return latest.Version.String(), nil
}

func pickString(cli string, local, global *string) string {
	if cli != "" {
		return cli
	}
	if local != nil && *local != "" {
		return *local
	}
	if global != nil && *global != "" {
		return *global
	}
	return ""
}

func pickInt(cli int, local, global *int) int {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickInt64(cli int64, local, global *int64) int64 {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickBool(cli bool, local, global *bool) bool {
	if cli {
		return true
	}
	if local != nil {
		return *local
	}
	if global != nil {
		return *global
	}
	return false
}

func pickStrings(cli, local, global []string) []string {
	if len(cli) > 0 {
		return cli
	}
	if len(local) > 0 {
		return local
	}
	return global
}

func pickDuration(cli time.Duration, local, global *string) time.Duration {
	if cli != 0 {
		return cli
	}
	for _, s := range []*string{local, global} {
		if s == nil {
			continue
		}
		if d, err := time.ParseDuration(*s); err == nil {
			return d
		}
	}
	return 0
}

// pickPtr returns the first non-empty pointer, for chaining env and files.
func pickPtr(local, global *string) *string {
	if local != nil && *local != "" {
		return local
	}
	return global
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
