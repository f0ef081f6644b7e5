package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/varalys/diego/internal/types"
)

// ScanResults stores the detections and metadata from a batch scan.
type ScanResults struct {
	Detections []types.Detection `json:"detections"`
	Timestamp  time.Time         `json:"timestamp"`
	Root       string            `json:"root"`
	Count      int               `json:"count"`
}

// SaveResults records the latest batch scan at path.
func SaveResults(path, root string, detections []types.Detection) error {
	results := ScanResults{
		Detections: detections,
		Timestamp:  time.Now(),
		Root:       root,
		Count:      len(detections),
	}
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadResults loads the batch scan recorded at path.
func LoadResults(path string) (ScanResults, error) {
	var results ScanResults
	f, err := os.ReadFile(path)
	if err != nil {
		return results, err
	}
	if err := json.Unmarshal(f, &results); err != nil {
		return results, err
	}
	return results, nil
}
