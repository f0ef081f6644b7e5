package types

import "github.com/varalys/diego/pkg/die"

// Mode records how a file was handed to the engine.
type Mode string

const (
	ModeFile   Mode = "file"
	ModeMemory Mode = "memory"
)

// Detection is the engine's answer for one scanned file or image entry.
// Error is set instead of Result when the scan failed; the batch carries on.
type Detection struct {
	Path     string        `json:"path"`
	Mode     Mode          `json:"mode"`
	Size     int64         `json:"size"`
	Flags    die.ScanFlags `json:"flags"`
	FlagSet  string        `json:"flag_set,omitempty"`
	Database string        `json:"database,omitempty"`
	FileType string        `json:"file_type,omitempty"`
	Result   string        `json:"result,omitempty"`
	Cached   bool          `json:"cached,omitempty"`
	Error    string        `json:"error,omitempty"`
	// Metadata holds origin details for entries pulled out of container
	// images, such as the layer digest.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Failed reports whether the engine produced no result for this entry.
func (d Detection) Failed() bool { return d.Error != "" }
