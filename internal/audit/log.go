package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Build outcomes recorded in BuildRecord.Status.
const (
	StatusBuilt    = "built"
	StatusUpToDate = "up-to-date"
	StatusFailed   = "failed"
)

// BuildRecord is one orchestrator run. Records are advisory; presence checks
// never consult them.
type BuildRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	BuildID          string    `json:"build_id"`
	Target           string    `json:"target"`
	ToolkitVersion   string    `json:"toolkit_version"`
	Status           string    `json:"status"`
	ToolkitInstalled bool      `json:"toolkit_installed"`
	EngineBuilt      bool      `json:"engine_built"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	Directives       int       `json:"directives,omitempty"`
	Duration         string    `json:"duration"`
	FailedStage      string    `json:"failed_stage,omitempty"`
	ExitCode         int       `json:"exit_code,omitempty"`
	Interrupted      bool      `json:"interrupted,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// AuditLog appends build records to a JSONL file.
type AuditLog struct {
	logPath string
	skipped int
}

// maxLineBytes bounds one JSONL record.
const maxLineBytes = 1 << 20

func NewAuditLog(path string) *AuditLog {
	return &AuditLog{logPath: path}
}

// Path is the JSONL file location.
func (a *AuditLog) Path() string { return a.logPath }

// LoadHistory returns records newest first. Lines that do not decode, such
// as a write torn by a crash, are skipped and counted in Skipped.
func (a *AuditLog) LoadHistory() ([]BuildRecord, error) {
	f, err := os.Open(a.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	a.skipped = 0
	var records []BuildRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var record BuildRecord
		if err := json.Unmarshal(line, &record); err != nil {
			a.skipped++
			continue
		}
		records = append(records, record)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Skipped is the number of malformed lines the last LoadHistory ignored.
func (a *AuditLog) Skipped() int { return a.skipped }

func (a *AuditLog) LogBuild(record BuildRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if record.BuildID == "" {
		record.BuildID = fmt.Sprintf("build_%d", record.Timestamp.UnixNano())
	}
	if err := os.MkdirAll(filepath.Dir(a.logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create audit dir: %w", err)
	}

	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// DeleteRecord removes the record at index in LoadHistory order.
func (a *AuditLog) DeleteRecord(index int) error {
	records, err := a.LoadHistory()
	if err != nil {
		return err
	}

	if index < 0 || index >= len(records) {
		return fmt.Errorf("invalid index: %d", index)
	}

	records = append(records[:index], records[index+1:]...)

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	tmp := a.logPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	encoder := json.NewEncoder(f)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to write audit record: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return os.Rename(tmp, a.logPath)
}
