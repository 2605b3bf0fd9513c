package driver

import (
	"encoding/json"
	"fmt"
	"strings"

	"sierra2mlir/internal/observ"
)

type phaseTiming struct {
	Name string  `json:"name"`
	MS   float64 `json:"duration_ms"`
	Note string  `json:"note,omitempty"`
}

type timingPayload struct {
	Kind    string        `json:"kind"`
	Path    string        `json:"path,omitempty"`
	TotalMS float64       `json:"total_ms"`
	Phases  []phaseTiming `json:"phases"`
}

// FormatTimings renders the phases recorded by t for path, either as an
// aligned table or as a single JSON line.
func FormatTimings(t *observ.Timer, kind, path string, asJSON bool) (string, error) {
	if t == nil {
		return "", nil
	}
	if kind == "" {
		kind = "pipeline"
	}
	phases := t.Phases()
	payload := timingPayload{
		Kind:    kind,
		Path:    path,
		TotalMS: observ.Millis(t.Total()),
		Phases:  make([]phaseTiming, len(phases)),
	}
	width := len("total")
	for i, p := range phases {
		payload.Phases[i] = phaseTiming{Name: p.Name, MS: observ.Millis(p.Dur), Note: p.Note}
		width = max(width, len(p.Name))
	}

	if asJSON {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	}

	var sb strings.Builder
	sb.WriteString("timings (" + kind + ")")
	if path != "" {
		sb.WriteString(": " + path)
	}
	sb.WriteByte('\n')
	for _, p := range payload.Phases {
		fmt.Fprintf(&sb, "  %-*s %9.3f ms", width, p.Name, p.MS)
		if p.Note != "" {
			sb.WriteString("  (" + p.Note + ")")
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-*s %9.3f ms\n", width, "total", payload.TotalMS)
	return sb.String(), nil
}
