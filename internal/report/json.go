package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/varalys/diego/internal/types"
)

// SchemaVersion identifies the JSON scan report layout.
const SchemaVersion = "1"

// Stats summarizes a batch scan in the JSON report.
type Stats struct {
	FilesScanned int     `json:"files_scanned"`
	Cached       int     `json:"cached"`
	Skipped      int     `json:"skipped"`
	Failed       int     `json:"failed"`
	DurationSec  float64 `json:"duration_seconds"`
}

// Envelope is the JSON scan report.
type Envelope struct {
	SchemaVersion string            `json:"schema_version"`
	Tool          string            `json:"tool"`
	Version       string            `json:"version,omitempty"`
	Root          string            `json:"root,omitempty"`
	Detections    []types.Detection `json:"detections"`
	Stats         Stats             `json:"stats"`
}

// WriteJSON writes dets as an indented report envelope.
func WriteJSON(w io.Writer, version, root string, dets []types.Detection, stats Stats, duration time.Duration) error {
	sortDetections(dets)
	if dets == nil {
		dets = []types.Detection{}
	}
	stats.DurationSec = duration.Seconds()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Envelope{
		SchemaVersion: SchemaVersion,
		Tool:          "diego",
		Version:       version,
		Root:          root,
		Detections:    dets,
		Stats:         stats,
	})
}
