// Package engine contains the batch scanning logic for diego. It walks a
// directory tree, hands each eligible file (and optionally archive and
// container image entries) to the detection engine on a bounded worker pool,
// and returns one detection per scanned item. This package is internal;
// external consumers should use the stable facade in pkg/core.
package engine
