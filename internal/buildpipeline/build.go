// Package buildpipeline compiles batches of Sierra files concurrently and
// writes one .mlir file per input.
package buildpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"sierra2mlir/internal/driver"
)

// BuildRequest configures a batch build.
type BuildRequest struct {
	Files []string
	// OutputDir receives the .mlir files; empty writes next to each input.
	OutputDir string
	// Jobs bounds concurrent compilations; zero means GOMAXPROCS.
	Jobs int
	// Options apply to every file. Observer is replaced per file.
	Options  driver.Options
	Progress ProgressSink
	// KeepGoing compiles the remaining files after a failure.
	KeepGoing bool
}

// FileResult is the outcome for one input.
type FileResult struct {
	File    string
	Output  string
	Timings Timings
	Err     error
}

// BuildResult lists per-file results in request order.
type BuildResult struct {
	Files []FileResult
}

// Failed counts files that did not compile.
func (r BuildResult) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// OutputPath maps an input to its .mlir path.
func OutputPath(file, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)) + ".mlir"
	if outDir == "" {
		return filepath.Join(filepath.Dir(file), base)
	}
	return filepath.Join(outDir, base)
}

// Build compiles every file of req. Without KeepGoing the first failure
// cancels the rest and is returned; with it all failures are combined.
func Build(ctx context.Context, req *BuildRequest) (BuildResult, error) {
	var result BuildResult
	if req == nil {
		return result, fmt.Errorf("missing build request")
	}
	if len(req.Files) == 0 {
		return result, fmt.Errorf("no input files")
	}

	outputs := make(map[string]string, len(req.Files))
	result.Files = make([]FileResult, len(req.Files))
	for i, file := range req.Files {
		out := OutputPath(file, req.OutputDir)
		if prev, dup := outputs[out]; dup {
			return result, fmt.Errorf("%s and %s both write %s", prev, file, out)
		}
		outputs[out] = file
		result.Files[i] = FileResult{File: file, Output: out}
	}
	if req.OutputDir != "" {
		if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
			return result, fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	emitQueued(req.Progress, req.Files)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Files)))
	for i := range req.Files {
		g.Go(func() error {
			// index i is owned by this goroutine
			res := &result.Files[i]
			res.Err = compileFile(gctx, req, res)
			if res.Err != nil && !req.KeepGoing {
				return res.Err
			}
			return nil
		})
	}
	err := g.Wait()

	status := StatusDone
	if err != nil || result.Failed() > 0 {
		status = StatusError
	}
	emit(req.Progress, Event{Stage: StageWrite, Status: status, Err: err, Elapsed: time.Since(start)})
	if err != nil {
		return result, err
	}
	var all error
	for _, f := range result.Files {
		all = multierr.Append(all, f.Err)
	}
	return result, all
}

func compileFile(ctx context.Context, req *BuildRequest, res *FileResult) error {
	begin := time.Now()
	fail := func(stage Stage, err error) error {
		err = fmt.Errorf("%s: %w", res.File, err)
		emit(req.Progress, Event{File: res.File, Stage: stage, Status: StatusError, Err: err, Elapsed: time.Since(begin)})
		return err
	}
	if err := ctx.Err(); err != nil {
		return fail(StageRead, err)
	}

	emit(req.Progress, Event{File: res.File, Stage: StageRead, Status: StatusWorking})
	readStart := time.Now()
	// #nosec G304 -- inputs are user-selected files
	src, err := os.ReadFile(res.File)
	if err != nil {
		return fail(StageRead, err)
	}
	res.Timings.Set(StageRead, time.Since(readStart))

	current := StageParse
	opts := req.Options
	opts.Observer = func(ev driver.PhaseEvent) {
		stage := Stage(ev.Name)
		if ev.Status == driver.PhaseStart {
			current = stage
			emit(req.Progress, Event{File: res.File, Stage: stage, Status: StatusWorking})
			return
		}
		if !ev.Failed() {
			res.Timings.Set(stage, ev.Elapsed)
		}
	}
	text, err := driver.Compile(ctx, string(src), opts)
	if err != nil {
		return fail(current, err)
	}

	emit(req.Progress, Event{File: res.File, Stage: StageWrite, Status: StatusWorking})
	writeStart := time.Now()
	if err := os.WriteFile(res.Output, []byte(text), 0o644); err != nil {
		return fail(StageWrite, err)
	}
	res.Timings.Set(StageWrite, time.Since(writeStart))
	emit(req.Progress, Event{File: res.File, Stage: StageWrite, Status: StatusDone, Elapsed: time.Since(begin)})
	return nil
}
