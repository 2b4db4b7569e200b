// Package export writes process records to files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/process"
)

var header = []string{"PID", "Name", "CPU", "Memory", "Threads"}

// WriteCSV writes records to w, one per line, after a header row.
func WriteCSV(w io.Writer, records []process.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return errors.New().Wrap(errors.ErrExportFailed, err)
	}

	row := make([]string, len(header))
	for _, r := range records {
		row[0] = strconv.Itoa(r.PID)
		row[1] = r.Name
		row[2] = percent(r.CPUPercent)
		row[3] = percent(r.MemoryPercent)
		row[4] = strconv.Itoa(r.Threads)
		if err := cw.Write(row); err != nil {
			return errors.New().Wrap(errors.ErrExportFailed, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.New().Wrap(errors.ErrExportFailed, err)
	}
	return nil
}

// WriteFile writes records to path as CSV, replacing any existing file.
// The file is written next to its destination and renamed into place.
func WriteFile(path string, records []process.Record) error {
	errFactory := errors.New()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errFactory.WithData(errors.ErrExportFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create",
			Path:  path,
			Error: err.Error(),
		})
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errFactory.WithData(errors.ErrExportFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "rename",
			Path:  path,
			Error: err.Error(),
		})
	}
	return nil
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
