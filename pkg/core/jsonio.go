package core

import (
	"encoding/json"
	"io"
)

// MarshalDetections pretty-prints detections as JSON for humans or pipelines.
func MarshalDetections(w io.Writer, dets []Detection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dets)
}

// UnmarshalDetections decodes detections JSON, useful for ingestion tests.
func UnmarshalDetections(r io.Reader) ([]Detection, error) {
	var ds []Detection
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, err
	}
	return ds, nil
}
