// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lzy107/functrace/internal/trace/api"
	"github.com/lzy107/functrace/internal/trace/check"
	"github.com/lzy107/functrace/internal/trace/export"
	"github.com/lzy107/functrace/trace"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Workers     int
	Calls       int
	Delay       time.Duration
	Output      string
	TraceFormat string
	Capacity    int
	Format      string
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Trace a small concurrent workload",
		Long: `Run a traced workload and verify the trace it produces.

Each worker goroutine calls outer, which calls inner, which sleeps. With
the defaults (2 workers, 1 call, 100ms) the trace holds 8 events: every
goroutine enters outer at depth 0 and inner at depth 1, then exits in
reverse order.

Example:
  functrace demo
  functrace demo --workers 8 --calls 100 --delay 1ms -o demo.msgpack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(opts, cmd)
		},
	}

	defaults := rootOpts.Config
	cmd.Flags().IntVar(&opts.Workers, "workers", defaults.Demo.Workers, "concurrent worker goroutines")
	cmd.Flags().IntVar(&opts.Calls, "calls", defaults.Demo.Calls, "outer calls per worker")
	cmd.Flags().DurationVar(&opts.Delay, "delay", defaults.Demo.Delay, "sleep inside each inner call")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", defaults.Output, "trace file to write")
	cmd.Flags().StringVar(&opts.TraceFormat, "trace-format", defaults.Format, "trace encoding (auto|json|msgpack)")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", defaults.Capacity, "trace buffer slots")
	cmd.Flags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")

	return cmd
}

// demoResult is the outcome of one demo run.
type demoResult struct {
	Output   string `json:"output"`
	Session  string `json:"session"`
	Workers  int    `json:"workers"`
	Calls    int    `json:"calls"`
	Events   int    `json:"events"`
	Pairs    int    `json:"pairs"`
	Dropped  uint64 `json:"dropped"`
	Complete bool   `json:"complete"`
	Elapsed  string `json:"elapsed"`
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	if !validFormat(opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be text or json", opts.Format))
	}

	// Flags given on the command line override the configuration.
	cfg := opts.Config
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Demo.Workers = opts.Workers
	}
	if flags.Changed("calls") {
		cfg.Demo.Calls = opts.Calls
	}
	if flags.Changed("delay") {
		cfg.Demo.Delay = opts.Delay
	}
	if flags.Changed("output") {
		cfg.Output = opts.Output
	}
	if flags.Changed("trace-format") {
		cfg.Format = opts.TraceFormat
	}
	if flags.Changed("capacity") {
		cfg.Capacity = opts.Capacity
	}
	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid demo options", err)
	}

	out := opts.formatter(cmd, opts.Format)
	tracer := api.Init(cfg, api.WithStderr(cmd.ErrOrStderr()))
	slog.Info("demo started", "workers", cfg.Demo.Workers, "calls", cfg.Demo.Calls, "delay", cfg.Demo.Delay)

	start := time.Now()
	if err := runWorkers(cmd.Context(), cfg.Demo.Workers, cfg.Demo.Calls, cfg.Demo.Delay); err != nil {
		_ = tracer.Fini()
		return WrapExitError(ExitFailure, "demo workload failed", err)
	}
	elapsed := time.Since(start)

	if err := tracer.Fini(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write trace", err)
	}

	doc, err := export.ReadFile(cfg.Output, export.FormatAuto)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace back", err)
	}
	events, err := doc.Events()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid trace records", err)
	}
	report := check.VerifyTrace(events, doc.Dropped)

	result := demoResult{
		Output:   cfg.Output,
		Session:  doc.Session,
		Workers:  cfg.Demo.Workers,
		Calls:    cfg.Demo.Calls,
		Events:   len(events),
		Pairs:    report.Pairs,
		Dropped:  doc.Dropped,
		Complete: report.Complete(),
		Elapsed:  elapsed.Round(time.Millisecond).String(),
	}

	if !report.OK() {
		err := NewExitError(ExitFailure, "demo trace failed verification")
		_ = out.Failure(result, err)
		return err
	}
	if out.JSON() {
		return out.Success(result)
	}
	printDemo(out, result)
	return nil
}

// runWorkers starts the workers and waits for all of them.
func runWorkers(ctx context.Context, workers, calls int, delay time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for range workers {
		g.Go(func() error {
			for range calls {
				if err := demoOuter(gctx, delay); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// demoOuter is traced the way instrumented code is.
func demoOuter(ctx context.Context, delay time.Duration) error {
	defer trace.Enter().Exit()
	return demoInner(ctx, delay)
}

func demoInner(ctx context.Context, delay time.Duration) error {
	defer trace.Enter().Exit()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printDemo(out *OutputFormatter, r demoResult) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	w := out.Writer
	bold.Fprintf(w, "Demo: %d worker(s) x %d call(s) in %s\n", r.Workers, r.Calls, r.Elapsed)
	fmt.Fprintf(w, "  trace:   %s\n", r.Output)
	fmt.Fprintf(w, "  session: %s\n", r.Session)
	fmt.Fprintf(w, "  events:  %d (%d pairs)\n", r.Events, r.Pairs)
	if r.Dropped > 0 {
		warn.Fprintf(w, "  dropped: %d\n", r.Dropped)
	}

	status := ok.Sprint("complete")
	if !r.Complete {
		status = warn.Sprint("truncated")
	}
	fmt.Fprintf(w, "  status:  %s\n", status)
}
