package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"sierra2mlir/internal/driver"
	"sierra2mlir/internal/trace"
)

// setupTracing installs the tracer configured by cfg and the trace flags in
// the command context. The returned func stops it; in ring mode it first
// prints the buffered events to stderr.
func setupTracing(cmd *cobra.Command, cfg driver.TraceConfig) (func(), error) {
	tc, err := cfg.Settings().Resolve()
	if err != nil {
		return nil, err
	}
	if tc.Level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}
	fs := cmd.Root().PersistentFlags()
	if tc.RingSize, err = fs.GetInt("trace-ring-size"); err != nil {
		return nil, err
	}
	if tc.Heartbeat, err = fs.GetDuration("trace-heartbeat"); err != nil {
		return nil, err
	}

	tracer, err := trace.New(tc)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	stopBeat := trace.StartHeartbeat(tracer, tc.Heartbeat)

	return func() {
		stopBeat()
		if err := closeTracer(tracer, tc.Format, cmd.ErrOrStderr()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: %v\n", err)
		}
	}, nil
}

func closeTracer(t trace.Tracer, format trace.Format, stderr io.Writer) error {
	var err error
	if ring, ok := t.(*trace.Ring); ok {
		err = multierr.Append(err, ring.Dump(stderr, format))
	}
	return multierr.Combine(err, t.Flush(), t.Close())
}

// session is the per-command state shared by compile, run and build.
type session struct {
	cfg     driver.Config
	opts    driver.Options
	cleanup func()
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cleanup, err := setupTracing(cmd, cfg.Trace)
	if err != nil {
		return nil, err
	}
	opts, err := pipelineOptions(cmd, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &session{cfg: cfg, opts: opts, cleanup: cleanup}, nil
}
