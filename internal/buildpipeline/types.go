package buildpipeline

import (
	"time"

	"sierra2mlir/internal/driver"
)

// Stage names a step of one file's build. The middle stages are the
// driver's phases.
type Stage string

const (
	StageRead   Stage = "read"
	StageCache  Stage = driver.StageCache
	StageParse  Stage = driver.StageParse
	StageLower  Stage = driver.StageLower
	StagePasses Stage = driver.StagePasses
	StageVerify Stage = driver.StageVerify
	StageEmit   Stage = driver.StageEmit
	StageWrite  Stage = "write"
)

// Status is where a file stands within its current stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress for a file (or for the whole batch when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Build calls OnEvent from several
// goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// StageTiming is the duration of one finished stage.
type StageTiming struct {
	Stage   Stage
	Elapsed time.Duration
}

// Timings lists the finished stages of one file in completion order.
type Timings []StageTiming

// Set records stage, replacing an earlier entry for it.
func (t *Timings) Set(stage Stage, d time.Duration) {
	for i := range *t {
		if (*t)[i].Stage == stage {
			(*t)[i].Elapsed = d
			return
		}
	}
	*t = append(*t, StageTiming{Stage: stage, Elapsed: d})
}

// Lookup returns the duration of stage and whether it finished.
func (t Timings) Lookup(stage Stage) (time.Duration, bool) {
	for _, st := range t {
		if st.Stage == stage {
			return st.Elapsed, true
		}
	}
	return 0, false
}

// Total sums every recorded stage.
func (t Timings) Total() time.Duration {
	var total time.Duration
	for _, st := range t {
		total += st.Elapsed
	}
	return total
}
