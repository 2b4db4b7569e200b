//go:build linux

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/procwatch/internal/app"
	"codeberg.org/mutker/procwatch/internal/command"
	"codeberg.org/mutker/procwatch/internal/config"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/process"
	"codeberg.org/mutker/procwatch/internal/sampler"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Lines used by the header above the table, including the column row.
const headerLines = 5

type view struct {
	out      io.Writer
	rows     int
	terminal bool
}

func newView(out io.Writer, cfg *config.Config) *view {
	v := &view{out: out, rows: cfg.Rows}
	if f, ok := out.(*os.File); ok {
		v.terminal = term.IsTerminal(int(f.Fd()))
	}
	return v
}

// enter switches a terminal to the alternate screen and returns the undo
// function. It is a no-op for pipes and files.
func (v *view) enter() func() {
	if !v.terminal {
		return func() {}
	}

	fmt.Fprint(v.out, "\033[?1049h") // alternate buffer
	fmt.Fprint(v.out, "\033[?25l")   // hide cursor

	var restore []func()
	stdinFD := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFD) {
		if undo, err := disableInputEcho(stdinFD); err != nil {
			logger.Debug().Err(err).Msg("Unable to suppress stdin echo")
		} else {
			restore = append(restore, undo)
		}
	}

	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Fprint(v.out, "\033[?25h")
		fmt.Fprint(v.out, "\033[?1049l")
	}
}

// limit returns the number of table rows to show. Zero means no limit.
func (v *view) limit() int {
	if v.rows > 0 || !v.terminal {
		return v.rows
	}
	f, ok := v.out.(*os.File)
	if !ok {
		return 0
	}
	_, height, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return max(height-headerLines-1, 1)
}

func (v *view) draw(ctx context.Context, state *app.State, snap process.Snapshot) error {
	params := state.DefaultParams()
	params.Limit = v.limit()

	rows, err := state.Query(params)
	if err != nil {
		return err
	}
	sys, err := state.SystemStats(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("System stats unavailable")
	}

	var buf bytes.Buffer
	renderTable(&buf, snap, rows, sys, state.Stats(), state.Interval())

	if v.terminal {
		fmt.Fprint(v.out, "\033[H\033[2J")
	}
	_, err = v.out.Write(buf.Bytes())
	return err
}

func renderTable(w io.Writer, snap process.Snapshot, rows []process.Record, sys process.SystemStats, stats sampler.Stats, interval time.Duration) {
	fmt.Fprintf(w, "procwatch (press Ctrl+C to exit)\n")
	fmt.Fprintf(w, "Updated: %s | Interval: %v | Sample #%d | Processes: %d\n",
		snap.Taken.Format(time.RFC3339), interval, snap.Seq, snap.Len())
	fmt.Fprintf(w, "CPU: %.1f%% | Memory: %.1f%%", sys.CPUPercent, sys.MemoryPercent)
	if stats.Failures > 0 {
		fmt.Fprintf(w, " | Failed samples: %d", stats.Failures)
	}
	fmt.Fprint(w, "\n\n")

	if len(rows) == 0 {
		fmt.Fprintln(w, "No processes matched current filters")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PID\tNAME\tCPU(%)\tMEM(%)\tTHREADS\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%d\t\n", r.PID, r.Name, r.CPUPercent, r.MemoryPercent, r.Threads)
	}
	tw.Flush()
}

func renderDetails(w io.Writer, d command.Details) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "PID:\t%d\n", d.PID)
	path := d.Path
	if path == "" {
		path = "-"
	}
	if d.Sampled {
		fmt.Fprintf(tw, "Name:\t%s\n", d.Name)
		fmt.Fprintf(tw, "CPU:\t%.2f%%\n", d.CPUPercent)
		fmt.Fprintf(tw, "Memory:\t%.2f%%\n", d.MemoryPercent)
		fmt.Fprintf(tw, "Threads:\t%d\n", d.Threads)
	}
	fmt.Fprintf(tw, "Executable:\t%s\n", path)
	tw.Flush()
}

func renderSystemStats(w io.Writer, s process.SystemStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CPU:\t%.1f%%\n", s.CPUPercent)
	fmt.Fprintf(tw, "Memory:\t%.1f%%\n", s.MemoryPercent)
	fmt.Fprintf(tw, "Total:\t%d MiB\n", s.MemoryTotal>>20)
	fmt.Fprintf(tw, "Available:\t%d MiB\n", s.MemoryAvailable>>20)
	tw.Flush()
}

// disableInputEcho turns off stdin echo while the live view is shown.
func disableInputEcho(fd int) (func(), error) {
	state, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	updated := *state
	updated.Lflag &^= unix.ECHO
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &updated); err != nil {
		return nil, err
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, state)
	}, nil
}
