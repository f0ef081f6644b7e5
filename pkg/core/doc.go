// Package core provides a small, stable facade over diego's batch scanner
// for programs that want directory scanning without the CLI. Single-file and
// single-buffer scans are served directly by pkg/die.
//
// Example:
//
//	res, err := core.ScanWithStats(ctx, core.Config{Root: "dist", Flags: die.DeepScan})
//	if err != nil { /* handle */ }
//	_ = core.MarshalDetections(os.Stdout, res.Detections)
package core
