package process

import (
	"context"
	"time"
)

// Lister enumerates the process table.
type Lister interface {
	// ListProcesses returns a best-effort capture of visible processes.
	// Processes whose attributes cannot be read are left out; only a failure
	// of the enumeration itself is returned as an error.
	ListProcesses(ctx context.Context) ([]Record, error)
}

// Controller issues control requests against single processes.
type Controller interface {
	Terminate(ctx context.Context, pid int) error
	SetPriority(ctx context.Context, pid, level int) error
	ExecutablePath(ctx context.Context, pid int) (string, error)
}

// Source abstracts OS process-table access and control.
type Source interface {
	Lister
	Controller
	SystemStats(ctx context.Context) (SystemStats, error)
}

// Record is one process as seen in a single sampling pass.
type Record struct {
	PID           int
	Name          string
	CPUPercent    float64
	MemoryPercent float64
	Threads       int
}

// Snapshot is one pass over the process table. Records must not be
// modified once the snapshot is published.
type Snapshot struct {
	Seq     uint64
	Taken   time.Time
	Records []Record
}

// Len returns the number of records.
func (s Snapshot) Len() int {
	return len(s.Records)
}

// Find returns the record for pid, if present.
func (s Snapshot) Find(pid int) (Record, bool) {
	for _, r := range s.Records {
		if r.PID == pid {
			return r, true
		}
	}
	return Record{}, false
}

// SystemStats is a machine-wide utilization summary.
type SystemStats struct {
	CPUPercent      float64
	MemoryPercent   float64
	MemoryTotal     uint64
	MemoryAvailable uint64
}
