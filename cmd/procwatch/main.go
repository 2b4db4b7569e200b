// Copyright © 2024 Mutker Telag <witty.text5011@fastmail.com>
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/procwatch/internal/app"
	"codeberg.org/mutker/procwatch/internal/command"
	"codeberg.org/mutker/procwatch/internal/config"
	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/pid"
	"codeberg.org/mutker/procwatch/internal/process"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `Usage: procwatch [flags] [command] [args]

Flags go before the command; everything after it is passed to the command.

Commands:
  monitor            Show a live process table (default)
  kill PID           Ask a process to terminate
  renice PID LEVEL   Set a process priority (-20..19)
  info PID           Show details for one process
  export FILE        Write the current process table to FILE as CSV
  sysinfo            Show machine-wide CPU and memory usage
`

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n\n%s", err, usage)
		os.Exit(exitUsage)
	}

	level, err := logger.ParseLevel(cfg.EffectiveLogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse log level: %v\n", err)
		os.Exit(exitUsage)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) int {
	name, args := "monitor", cfg.Args
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}

	if name == "help" {
		fmt.Fprint(out, usage)
		return exitOK
	}

	state, err := app.New(cfg, process.NewSystemSource(logger.Default().With("source")))
	if err != nil {
		logFailure(err, "Failed to initialize")
		return exitError
	}
	defer func() {
		if err := state.Close(); err != nil {
			logFailure(err, "Failed to shut down cleanly")
		}
	}()

	switch name {
	case "monitor":
		err = monitor(ctx, cfg, state, out)
	case "kill":
		err = withPID(args, 1, func(p int) error { return killCmd(ctx, state, out, p) })
	case "renice":
		err = withPID(args, 2, func(p int) error { return reniceCmd(ctx, state, out, p, args[1]) })
	case "info":
		err = withPID(args, 1, func(p int) error { return infoCmd(ctx, state, out, p) })
	case "export":
		err = exportCmd(ctx, state, out, args)
	case "sysinfo":
		err = sysinfoCmd(ctx, state, out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		return exitUsage
	}

	var usageErr usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usageErr):
		fmt.Fprintf(os.Stderr, "%s\n\n%s", usageErr.msg, usage)
		return exitUsage
	default:
		fmt.Fprintf(os.Stderr, "procwatch: %s\n", command.Describe(err))
		logFailure(err, "Command failed")
		return exitError
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func withPID(args []string, want int, fn func(int) error) error {
	if len(args) != want {
		return usageError{fmt.Sprintf("expected %d argument(s), got %d", want, len(args))}
	}
	p, err := strconv.Atoi(args[0])
	if err != nil {
		return usageError{fmt.Sprintf("invalid pid %q", args[0])}
	}
	return fn(p)
}

func killCmd(ctx context.Context, state *app.State, out io.Writer, p int) error {
	if err := state.Kill(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(out, "sent SIGTERM to %d\n", p)
	return nil
}

func reniceCmd(ctx context.Context, state *app.State, out io.Writer, p int, arg string) error {
	level, err := strconv.Atoi(arg)
	if err != nil {
		return usageError{fmt.Sprintf("invalid priority %q", arg)}
	}
	if err := state.SetPriority(ctx, p, level); err != nil {
		return err
	}
	fmt.Fprintf(out, "set priority of %d to %d\n", p, level)
	return nil
}

func infoCmd(ctx context.Context, state *app.State, out io.Writer, p int) error {
	if err := warmUp(ctx, state); err != nil {
		return err
	}
	d, err := state.Details(ctx, p)
	if err != nil && !(d.Sampled && errors.HasCode(err, errors.ErrAccessDenied)) {
		return err
	}
	renderDetails(out, d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "procwatch: executable path: %s\n", command.Describe(err))
	}
	return nil
}

func exportCmd(ctx context.Context, state *app.State, out io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError{"export needs exactly one FILE argument"}
	}
	if err := warmUp(ctx, state); err != nil {
		return err
	}
	n, err := state.Export(args[0], state.DefaultParams())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d processes to %s\n", n, args[0])
	return nil
}

func sysinfoCmd(ctx context.Context, state *app.State, out io.Writer) error {
	// The first CPU reading only primes the counters.
	if _, err := state.SystemStats(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, time.Second); err != nil {
		return err
	}
	stats, err := state.SystemStats(ctx)
	if err != nil {
		return err
	}
	renderSystemStats(out, stats)
	return nil
}

// warmUp takes two samples one interval apart so CPU percentages cover a
// real window instead of the time since process start.
func warmUp(ctx context.Context, state *app.State) error {
	if err := state.Refresh(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, state.Interval()); err != nil {
		return err
	}
	return state.Refresh(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func monitor(ctx context.Context, cfg *config.Config, state *app.State, out io.Writer) error {
	pidPath := cfg.PIDFile
	if pidPath == "" {
		pidPath = pid.DefaultPath()
	}
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			logger.Error().Err(err).Msg("Failed to remove pid file")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := state.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Sampler exited")
		}
		cancel()
	}()

	view := newView(out, cfg)
	restore := view.enter()
	defer restore()

	redraw := time.NewTicker(redrawInterval(state.Interval()))
	defer redraw.Stop()

	var shown uint64
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			logger.Info().Msg("Received termination signal.")
			return nil
		case <-redraw.C:
			snap, ok := state.Latest()
			if !ok || snap.Seq == shown {
				continue
			}
			shown = snap.Seq
			if err := view.draw(ctx, state, snap); err != nil {
				logFailure(err, "Failed to render process table")
			}
		}
	}
}

// redrawInterval polls history a few times per sampling period so a new
// snapshot shows up shortly after it is published.
func redrawInterval(sample time.Duration) time.Duration {
	return max(sample/4, 50*time.Millisecond)
}

func logFailure(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
