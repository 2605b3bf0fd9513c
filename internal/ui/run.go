package ui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"sierra2mlir/internal/buildpipeline"
)

// eventBuffer keeps the compiler goroutines from stalling on a slow
// terminal.
const eventBuffer = 256

// RunBuild builds req while drawing a progress view on out. When both fail,
// the build error is returned.
func RunBuild(ctx context.Context, title string, out io.Writer, req *buildpipeline.BuildRequest) (buildpipeline.BuildResult, error) {
	if req == nil {
		return buildpipeline.BuildResult{}, errors.New("missing build request")
	}
	events := make(chan buildpipeline.Event, eventBuffer)
	local := *req
	local.Progress = buildpipeline.ChannelSink{Ch: events}

	var (
		res      buildpipeline.BuildResult
		buildErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer close(events)
		res, buildErr = buildpipeline.Build(ctx, &local)
	}()

	view := tea.NewProgram(NewProgressModel(title, req.Files, events),
		tea.WithOutput(out), tea.WithInput(nil), tea.WithContext(ctx))
	_, viewErr := view.Run()
	if viewErr != nil {
		// the view quit early; unblock the sink until the build returns
		for range events {
		}
	}
	<-finished
	if buildErr != nil {
		return res, buildErr
	}
	return res, viewErr
}
