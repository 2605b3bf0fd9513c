package trace

import (
	"fmt"
	"strings"
)

// nameOf returns names[v], or "?" for values outside the table.
func nameOf[T ~uint8](names []string, v T) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return "?"
}

// lookup finds s in names ignoring case. Empty table slots are never
// matched.
func lookup[T ~uint8](what string, names []string, s string) (T, error) {
	for i, name := range names {
		if name != "" && strings.EqualFold(s, name) {
			return T(i), nil
		}
	}
	valid := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			valid = append(valid, name)
		}
	}
	return 0, fmt.Errorf("invalid trace %s: %q (expected: %s)", what, s, strings.Join(valid, "|"))
}

var (
	kindNames   = []string{KindBegin: "begin", KindEnd: "end", KindPoint: "point", KindHeartbeat: "beat"}
	scopeNames  = []string{ScopeDriver: "driver", ScopePass: "pass", ScopeFunction: "function", ScopeStatement: "statement"}
	levelNames  = []string{LevelOff: "off", LevelError: "error", LevelPhase: "phase", LevelDetail: "detail", LevelDebug: "debug"}
	modeNames   = []string{ModeStream: "stream", ModeRing: "ring", ModeBoth: "both"}
	formatNames = []string{FormatAuto: "auto", FormatText: "text", FormatNDJSON: "ndjson"}
)

func (k Kind) String() string        { return nameOf(kindNames, k) }
func (s Scope) String() string       { return nameOf(scopeNames, s) }
func (l Level) String() string       { return nameOf(levelNames, l) }
func (m StorageMode) String() string { return nameOf(modeNames, m) }
func (f Format) String() string      { return nameOf(formatNames, f) }

// ParseLevel accepts the names printed by Level.String in any case.
func ParseLevel(s string) (Level, error) { return lookup[Level]("level", levelNames, s) }

// ParseMode accepts stream, ring or both.
func ParseMode(s string) (StorageMode, error) { return lookup[StorageMode]("mode", modeNames, s) }

// ParseFormat accepts auto, text or ndjson. The empty string means auto
// and json is an alias for ndjson.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "":
		return FormatAuto, nil
	case "json":
		return FormatNDJSON, nil
	}
	return lookup[Format]("format", formatNames, s)
}

// Settings is the textual form of a tracer setup as it appears in
// configuration files and flags.
type Settings struct {
	Level  string
	Mode   string
	Format string
	Output string
}

// Resolve parses s into a Config. Size limits and the heartbeat are left to
// the caller.
func (s Settings) Resolve() (Config, error) {
	var (
		cfg Config
		err error
	)
	if cfg.Level, err = ParseLevel(s.Level); err != nil {
		return Config{}, err
	}
	if cfg.Mode, err = ParseMode(s.Mode); err != nil {
		return Config{}, err
	}
	if cfg.Format, err = ParseFormat(s.Format); err != nil {
		return Config{}, err
	}
	cfg.OutputPath = s.Output
	return cfg, nil
}
