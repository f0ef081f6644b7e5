package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAndLoadHistory(t *testing.T) {
	log := NewAuditLog(filepath.Join(t.TempDir(), "state", "build_audit.jsonl"))
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, log.LogBuild(BuildRecord{Timestamp: base, Target: "linux-amd64-Release", Status: StatusBuilt}))
	require.NoError(t, log.LogBuild(BuildRecord{Timestamp: base.Add(time.Minute), Target: "linux-amd64-Release", Status: StatusUpToDate}))

	records, err := log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, StatusUpToDate, records[0].Status, "newest first")
	assert.Equal(t, StatusBuilt, records[1].Status)
	assert.NotEmpty(t, records[0].BuildID)

	fi, err := os.Stat(log.Path())
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
}

func TestLoadHistory_Missing(t *testing.T) {
	_, err := NewAuditLog(filepath.Join(t.TempDir(), "none.jsonl")).LoadHistory()
	assert.Error(t, err)
}

func TestDeleteRecord(t *testing.T) {
	log := NewAuditLog(filepath.Join(t.TempDir(), "a.jsonl"))
	for i, s := range []string{StatusBuilt, StatusFailed, StatusUpToDate} {
		require.NoError(t, log.LogBuild(BuildRecord{Timestamp: time.Unix(int64(i), 0), Status: s}))
	}

	require.NoError(t, log.DeleteRecord(1))
	records, err := log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, StatusUpToDate, records[0].Status)
	assert.Equal(t, StatusBuilt, records[1].Status)

	assert.Error(t, log.DeleteRecord(5))
}

func writeTornLog(t *testing.T) *AuditLog {
	t.Helper()
	log := NewAuditLog(filepath.Join(t.TempDir(), "a.jsonl"))
	require.NoError(t, log.LogBuild(BuildRecord{Timestamp: time.Unix(1, 0), Target: "first", Status: StatusBuilt}))

	f, err := os.OpenFile(log.Path(), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp":"2026-01` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	for i, target := range []string{"second", "third", "fourth"} {
		require.NoError(t, log.LogBuild(BuildRecord{Timestamp: time.Unix(int64(i+2), 0), Target: target, Status: StatusUpToDate}))
	}
	return log
}

func TestLoadHistory_SkipsTornLine(t *testing.T) {
	log := writeTornLog(t)

	records, err := log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "fourth", records[0].Target)
	assert.Equal(t, "first", records[3].Target)
	assert.Equal(t, 1, log.Skipped())
}

func TestDeleteRecord_KeepsRecordsAfterTornLine(t *testing.T) {
	log := writeTornLog(t)

	require.NoError(t, log.DeleteRecord(0))
	records, err := log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].Target)
	assert.Equal(t, "second", records[1].Target)
	assert.Equal(t, "first", records[2].Target)
	assert.Equal(t, 0, log.Skipped())
}
