package core

import (
	"context"

	"github.com/varalys/diego/internal/engine"
	"github.com/varalys/diego/internal/types"
)

// Re-export selected internal types as a stable public API surface.
// These are type aliases so external consumers can depend on a stable path.
type Config = engine.Config
type Result = engine.Result
type Detection = types.Detection

// Scan is the stable entrypoint for other programs.
func Scan(ctx context.Context, cfg Config) ([]Detection, error) {
	return engine.Scan(ctx, cfg)
}

// ScanWithStats scans and also returns counts and timing.
func ScanWithStats(ctx context.Context, cfg Config) (Result, error) {
	return engine.ScanWithStats(ctx, cfg)
}

// CountTargets returns how many files cfg would scan.
func CountTargets(cfg Config) (int, error) { return engine.CountTargets(cfg) }
