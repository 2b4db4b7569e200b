// Package query derives filtered and ordered views of process records.
// Every function returns a new slice and leaves its input untouched.
package query

import (
	"cmp"
	"slices"
	"strings"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/process"
)

type Column int

const (
	ColumnPID Column = iota
	ColumnName
	ColumnCPU
	ColumnMemory
	ColumnThreads
)

var columnNames = []string{"pid", "name", "cpu", "memory", "threads"}

func (c Column) String() string {
	if c < 0 || int(c) >= len(columnNames) {
		return "unknown"
	}
	return columnNames[c]
}

// ParseColumn resolves a column name, ignoring case. "mem" is accepted for
// memory.
func ParseColumn(name string) (Column, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pid":
		return ColumnPID, nil
	case "name":
		return ColumnName, nil
	case "cpu":
		return ColumnCPU, nil
	case "memory", "mem":
		return ColumnMemory, nil
	case "threads":
		return ColumnThreads, nil
	default:
		return 0, errors.New().WithData(errors.ErrInvalidColumn, name)
	}
}

// Search keeps records whose name contains substr, ignoring case. An empty
// substr keeps everything.
func Search(records []process.Record, substr string) []process.Record {
	needle := strings.ToLower(substr)
	out := make([]process.Record, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Name), needle) {
			out = append(out, r)
		}
	}
	return out
}

// Filter keeps records at or above both thresholds.
func Filter(records []process.Record, cpuMin, memMin float64) []process.Record {
	out := make([]process.Record, 0, len(records))
	for _, r := range records {
		if r.CPUPercent >= cpuMin && r.MemoryPercent >= memMin {
			out = append(out, r)
		}
	}
	return out
}

// Sort orders records by the named column. The sort is stable in both
// directions: records with equal keys keep their input order.
func Sort(records []process.Record, column string, descending bool) ([]process.Record, error) {
	col, err := ParseColumn(column)
	if err != nil {
		return nil, err
	}
	return SortBy(records, col, descending), nil
}

// SortBy is Sort with an already parsed column.
func SortBy(records []process.Record, col Column, descending bool) []process.Record {
	out := slices.Clone(records)
	if out == nil {
		out = []process.Record{}
	}

	compare := comparator(col)
	if descending {
		asc := compare
		compare = func(a, b process.Record) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, compare)
	return out
}

func comparator(col Column) func(a, b process.Record) int {
	switch col {
	case ColumnName:
		return func(a, b process.Record) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	case ColumnCPU:
		return func(a, b process.Record) int { return cmp.Compare(a.CPUPercent, b.CPUPercent) }
	case ColumnMemory:
		return func(a, b process.Record) int { return cmp.Compare(a.MemoryPercent, b.MemoryPercent) }
	case ColumnThreads:
		return func(a, b process.Record) int { return cmp.Compare(a.Threads, b.Threads) }
	default:
		return func(a, b process.Record) int { return cmp.Compare(a.PID, b.PID) }
	}
}

// Params is the full set of user-chosen query parameters.
type Params struct {
	Search     string
	CPUMin     float64
	MemMin     float64
	Column     string
	Descending bool
	Limit      int
}

// Apply runs search, filter and sort in that order and truncates the result
// to Limit rows when Limit is positive. An empty Column keeps input order.
func Apply(records []process.Record, p Params) ([]process.Record, error) {
	out := Filter(Search(records, p.Search), p.CPUMin, p.MemMin)
	if p.Column != "" {
		var err error
		if out, err = Sort(out, p.Column, p.Descending); err != nil {
			return nil, err
		}
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

// Point is the (pid, cpu, memory) tuple plotted by charting front ends.
type Point struct {
	PID    int
	CPU    float64
	Memory float64
}

// Points extracts one Point per record of snap.
func Points(snap process.Snapshot) []Point {
	out := make([]Point, len(snap.Records))
	for i, r := range snap.Records {
		out[i] = Point{PID: r.PID, CPU: r.CPUPercent, Memory: r.MemoryPercent}
	}
	return out
}
