// Copyright 2025 The functrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lzy107/functrace/internal/trace/check"
	"github.com/lzy107/functrace/internal/trace/export"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Format      string
	TraceFormat string
	Top         int
	Strict      bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <trace-file>",
		Short: "Verify and summarize a trace file",
		Long: `Load a trace written by a traced program and check it.

Every exit must close the innermost open entry of its goroutine, and
record ids must be unique. Open entries, missing ids and dropped events
(a full buffer, a program that exited without Fini) make a trace
incomplete but not invalid; use --strict to fail on them too.

Example:
  functrace inspect trace.json
  functrace inspect --format json --top 5 trace.msgpack`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")
	cmd.Flags().StringVar(&opts.TraceFormat, "trace-format", "auto", "trace encoding (auto|json|msgpack)")
	cmd.Flags().IntVar(&opts.Top, "top", 10, "number of functions listed by inclusive time")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on truncated traces")

	return cmd
}

type threadRow struct {
	ThreadID uint64 `json:"thread_id"`
	Entries  int    `json:"entries"`
	Exits    int    `json:"exits"`
	MaxDepth int64  `json:"max_depth"`
	Span     uint64 `json:"span_us"`
}

type funcRow struct {
	Func  string `json:"func"`
	Name  string `json:"name,omitempty"`
	Calls int    `json:"calls"`
	Total uint64 `json:"total_us"`
	Max   uint64 `json:"max_us"`
}

// inspectResult is the machine-readable form of an inspection.
type inspectResult struct {
	Path      string `json:"path"`
	Version   int    `json:"version"`
	Session   string `json:"session,omitempty"`
	TotalTime uint64 `json:"total_time_us"`
	Recorded  uint64 `json:"recorded"`
	Dropped   uint64 `json:"dropped"`

	Events     int    `json:"events"`
	Pairs      int    `json:"pairs"`
	Open       int    `json:"open"`
	Orphans    int    `json:"orphans"`
	Mismatches int    `json:"mismatches"`
	Duplicates int    `json:"duplicates"`
	Missing    uint64 `json:"missing"`
	OK         bool   `json:"ok"`
	Complete   bool   `json:"complete"`

	Threads []threadRow `json:"threads"`
	Funcs   []funcRow   `json:"funcs"`
}

func runInspect(opts *InspectOptions, path string, cmd *cobra.Command) error {
	if !validFormat(opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be text or json", opts.Format))
	}
	tf, err := export.ParseFormat(opts.TraceFormat)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid trace format", err)
	}

	doc, err := export.ReadFile(path, tf)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	events, err := doc.Events()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid trace records", err)
	}

	out := opts.formatter(cmd, opts.Format)
	out.VerboseLog("loaded %d records from %s (schema %d)", len(events), path, doc.Version)

	report := check.VerifyTrace(events, doc.Dropped)
	summary := check.Summarize(events)
	result := newInspectResult(path, doc, report, summary, opts.Top)

	var failure *ExitError
	switch {
	case !report.OK():
		failure = NewExitError(ExitFailure, "trace verification failed")
	case opts.Strict && !report.Complete():
		failure = NewExitError(ExitFailure, "trace is incomplete")
	}

	if out.JSON() {
		if failure != nil {
			_ = out.Failure(result, failure)
			return failure
		}
		return out.Success(result)
	}

	printInspect(out, result, report)
	if failure != nil {
		return failure
	}
	return nil
}

func newInspectResult(path string, doc *export.Document, r *check.Report, s *check.Summary, top int) inspectResult {
	top = max(top, 0)
	res := inspectResult{
		Path:       path,
		Version:    doc.Version,
		Session:    doc.Session,
		TotalTime:  doc.TotalTime,
		Recorded:   doc.Recorded,
		Dropped:    doc.Dropped,
		Events:     r.Events,
		Pairs:      r.Pairs,
		Open:       len(r.Open),
		Orphans:    len(r.Orphans),
		Mismatches: len(r.Mismatches),
		Duplicates: len(r.Duplicates),
		Missing:    r.Missing(),
		OK:         r.OK(),
		Complete:   r.Complete(),
		Threads:    make([]threadRow, 0, len(s.Threads)),
		Funcs:      make([]funcRow, 0, min(top, len(s.Funcs))),
	}
	for _, t := range s.Threads {
		res.Threads = append(res.Threads, threadRow{
			ThreadID: t.ThreadID,
			Entries:  t.Entries,
			Exits:    t.Exits,
			MaxDepth: t.MaxDepth,
			Span:     t.Last - t.First,
		})
	}
	for i, f := range s.Funcs {
		if i >= top {
			break
		}
		res.Funcs = append(res.Funcs, funcRow{
			Func:  export.Addr(f.Func).String(),
			Name:  funcName(f.Func),
			Calls: f.Calls,
			Total: f.Total,
			Max:   f.Max,
		})
	}
	return res
}

// funcName symbolizes addresses recorded by this very binary, which is
// the case for traces written by the demo command.
func funcName(pc uintptr) string {
	if f := runtime.FuncForPC(pc); f != nil && f.Entry() == pc {
		return f.Name()
	}
	return ""
}

func printInspect(out *OutputFormatter, res inspectResult, r *check.Report) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow, color.Bold)
	bad := color.New(color.FgRed, color.Bold)

	w := out.Writer
	bold.Fprintf(w, "Trace %s\n", res.Path)
	fmt.Fprintf(w, "  schema:    %d\n", res.Version)
	if res.Session != "" {
		fmt.Fprintf(w, "  session:   %s\n", res.Session)
	}
	fmt.Fprintf(w, "  duration:  %dus\n", res.TotalTime)
	fmt.Fprintf(w, "  events:    %d recorded, %d dropped\n", res.Recorded, res.Dropped)
	fmt.Fprintf(w, "  pairs:     %d across %d goroutine(s)\n", res.Pairs, len(res.Threads))

	fmt.Fprintln(w)
	switch {
	case !res.OK:
		bad.Fprintln(w, "INVALID")
	case !res.Complete:
		warn.Fprintln(w, "VALID (truncated)")
	default:
		ok.Fprintln(w, "VALID")
	}
	if res.Open > 0 {
		warn.Fprintf(w, "  %d entr(ies) never exited\n", res.Open)
	}
	if res.Dropped > 0 {
		warn.Fprintf(w, "  %d event(s) dropped by a full buffer\n", res.Dropped)
	}
	if res.Missing > 0 {
		warn.Fprintf(w, "  %d record id(s) missing in %d gap(s)\n", res.Missing, len(r.Gaps))
	}
	for _, ev := range r.Orphans {
		bad.Fprintf(w, "  orphan exit %s\n", ev)
	}
	for _, m := range r.Mismatches {
		bad.Fprintf(w, "  exit %s does not close %s\n", m.Exit, m.Top)
	}
	for _, seq := range r.Duplicates {
		bad.Fprintf(w, "  duplicate record id %d\n", seq)
	}

	if len(res.Threads) > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "Goroutines")
		for _, t := range res.Threads {
			fmt.Fprintf(w, "  %#-8x entries=%-6d exits=%-6d depth=%-3d span=%dus\n",
				t.ThreadID, t.Entries, t.Exits, t.MaxDepth, t.Span)
		}
	}
	if len(res.Funcs) > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "Functions by inclusive time")
		for _, f := range res.Funcs {
			name := f.Func
			if f.Name != "" {
				name = f.Func + " " + f.Name
			}
			fmt.Fprintf(w, "  %-40s calls=%-6d total=%dus max=%dus\n", name, f.Calls, f.Total, f.Max)
		}
	}
}
