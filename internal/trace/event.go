package trace

import "time"

// Kind is what an event marks.
type Kind uint8

const (
	KindBegin Kind = iota + 1
	KindEnd
	KindPoint
	KindHeartbeat
)

// Scope orders events from coarse to fine. A level admits every scope up to
// its own granularity.
type Scope uint8

const (
	// ScopeDriver covers pipeline stages and program execution.
	ScopeDriver Scope = iota + 1
	// ScopePass covers one conversion pass.
	ScopePass
	// ScopeFunction covers the lowering of one Sierra function.
	ScopeFunction
	// ScopeStatement covers single statements.
	ScopeStatement
)

// Level selects how much is traced.
type Level uint8

const (
	LevelOff Level = iota
	// LevelError records heartbeats only.
	LevelError
	LevelPhase
	LevelDetail
	LevelDebug
)

// Admits reports whether events of scope are recorded at l.
func (l Level) Admits(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopePass
	case LevelDetail:
		return scope <= ScopeFunction
	case LevelDebug:
		return true
	}
	return false
}

// Event is one trace record.
type Event struct {
	Time   time.Time
	Seq    uint64
	Kind   Kind
	Scope  Scope
	Span   uint64 // zero for points and heartbeats
	Parent uint64
	Name   string
	Detail string
	Extra  map[string]string
}
