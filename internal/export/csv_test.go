package export_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/export"
	"codeberg.org/mutker/procwatch/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var records = []process.Record{
	{PID: 101, Name: "chrome", CPUPercent: 5, MemoryPercent: 2, Threads: 30},
	{PID: 7, Name: "my, app", CPUPercent: 112.456, MemoryPercent: 0.004, Threads: 1},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, records))

	want := "PID,Name,CPU,Memory,Threads\n" +
		"101,chrome,5.00%,2.00%,30\n" +
		"7,\"my, app\",112.46%,0.00%,1\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, nil))
	assert.Equal(t, "PID,Name,CPU,Memory,Threads\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSVWriterError(t *testing.T) {
	err := export.WriteCSV(failingWriter{}, records)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrExportFailed))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procs.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	require.NoError(t, export.WriteFile(path, records[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PID,Name,CPU,Memory,Threads\n101,chrome,5.00%,2.00%,30\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestWriteFileMissingDirectory(t *testing.T) {
	err := export.WriteFile(filepath.Join(t.TempDir(), "nope", "procs.csv"), records)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrExportFailed))
}
