package trace

import (
	"errors"
	"io"
	"os"
	"sync"
)

// Stream writes each admitted event as soon as it arrives. Write errors are
// dropped so tracing never fails a compilation.
type Stream struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	format Format
}

func NewStream(w io.Writer, level Level, format Format) *Stream {
	return &Stream{w: w, level: level, format: format}
}

func (s *Stream) Emit(ev *Event) {
	if !admitted(s.level, ev) {
		return
	}
	line := FormatEvent(ev, s.format)
	s.mu.Lock()
	_, _ = s.w.Write(line)
	s.mu.Unlock()
}

func (s *Stream) Flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes the writer unless it is stdout or stderr.
func (s *Stream) Close() error {
	err := s.Flush()
	if s.w == os.Stderr || s.w == os.Stdout {
		return err
	}
	if c, ok := s.w.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

func (s *Stream) Level() Level { return s.level }

// Ring keeps the most recent events for a dump at exit.
type Ring struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	count int
	level Level
}

// NewRing keeps up to size events; a non-positive size means 4096.
func NewRing(size int, level Level) *Ring {
	if size <= 0 {
		size = 4096
	}
	return &Ring{buf: make([]Event, size), level: level}
}

func (r *Ring) Emit(ev *Event) {
	if !admitted(r.level, ev) {
		return
	}
	r.mu.Lock()
	r.buf[r.next] = *ev
	r.next = (r.next + 1) % len(r.buf)
	r.count = min(r.count+1, len(r.buf))
	r.mu.Unlock()
}

// Snapshot returns the kept events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, r.count)
	first := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := range r.count {
		out = append(out, r.buf[(first+i)%len(r.buf)])
	}
	return out
}

// Dump writes the snapshot to w.
func (r *Ring) Dump(w io.Writer, format Format) error {
	for _, ev := range r.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Ring) Flush() error { return nil }
func (r *Ring) Close() error { return nil }
func (r *Ring) Level() Level { return r.level }

type fanout struct {
	level Level
	sinks []Tracer
}

// Fanout sends every event to each sink.
func Fanout(level Level, sinks ...Tracer) Tracer {
	return &fanout{level: level, sinks: sinks}
}

func (f *fanout) Emit(ev *Event) {
	for _, s := range f.sinks {
		s.Emit(ev)
	}
}

func (f *fanout) Flush() error {
	var err error
	for _, s := range f.sinks {
		err = errors.Join(err, s.Flush())
	}
	return err
}

func (f *fanout) Close() error {
	var err error
	for _, s := range f.sinks {
		err = errors.Join(err, s.Close())
	}
	return err
}

func (f *fanout) Level() Level { return f.level }

func admitted(level Level, ev *Event) bool {
	return ev.Kind == KindHeartbeat && level > LevelOff || level.Admits(ev.Scope)
}
