package driver

import "time"

// PhaseStatus tells whether a PhaseEvent opens or closes a phase.
type PhaseStatus int

const (
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

func (s PhaseStatus) String() string {
	if s == PhaseStart {
		return "start"
	}
	return "end"
}

// PhaseEvent marks a phase boundary. Elapsed and Err are only set on
// PhaseEnd.
type PhaseEvent struct {
	Name    string
	Status  PhaseStatus
	Elapsed time.Duration
	Err     error
}

// Failed reports whether the event closes a phase that returned an error.
func (ev PhaseEvent) Failed() bool { return ev.Status == PhaseEnd && ev.Err != nil }

// PhaseObserver is called synchronously at every phase boundary of Compile
// and Execute.
type PhaseObserver func(PhaseEvent)

func (p *pipeline) notify(ev PhaseEvent) {
	if p.opts.Observer != nil {
		p.opts.Observer(ev)
	}
}
