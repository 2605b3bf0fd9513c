package trace_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"sierra2mlir/internal/trace"
)

func TestStart_Nesting(t *testing.T) {
	ring := trace.NewRing(16, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)

	outer, ctx := trace.Start(ctx, trace.ScopeDriver, "lower")
	inner, innerCtx := trace.Start(ctx, trace.ScopeFunction, "fn:test::main")
	trace.Point(innerCtx, trace.ScopeFunction, "libfunc", "felt252_add")
	stmt, _ := trace.Start(innerCtx, trace.ScopeStatement, "stmt")
	stmt.End("")
	inner.WithExtra("blocks", "3").End("")
	outer.End("ok")

	events := ring.Snapshot()
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5 (statement scope is filtered): %+v", len(events), events)
	}
	if events[1].Parent != outer.ID() {
		t.Fatalf("function span parent = %d, want %d", events[1].Parent, outer.ID())
	}
	if events[2].Kind != trace.KindPoint || events[2].Parent != inner.ID() {
		t.Fatalf("point event %+v is not under the function span", events[2])
	}
	if events[3].Extra["blocks"] != "3" {
		t.Fatalf("extra lost: %+v", events[3])
	}
	if events[4].Kind != trace.KindEnd || events[4].Detail != "ok" {
		t.Fatalf("last event %+v", events[4])
	}
}

func TestRing_Wraps(t *testing.T) {
	ring := trace.NewRing(3, trace.LevelDebug)
	ctx := trace.WithTracer(context.Background(), ring)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		trace.Point(ctx, trace.ScopeDriver, name, "")
	}
	var names []string
	for _, ev := range ring.Snapshot() {
		names = append(names, ev.Name)
	}
	if got := strings.Join(names, ","); got != "c,d,e" {
		t.Fatalf("snapshot = %s, want c,d,e", got)
	}
}

func TestStream_Formats(t *testing.T) {
	tests := []struct {
		format trace.Format
		want   []string
	}{
		{trace.FormatText, []string{"point driver/parse (12 statements)"}},
		{trace.FormatNDJSON, []string{`"kind":"point"`, `"name":"parse"`, `"detail":"12 statements"`}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		tr, err := trace.New(trace.Config{Level: trace.LevelPhase, Mode: trace.ModeStream, Format: tt.format, Output: &buf})
		if err != nil {
			t.Fatalf("new tracer: %v", err)
		}
		ctx := trace.WithTracer(context.Background(), tr)
		trace.Point(ctx, trace.ScopeDriver, "parse", "12 statements")
		trace.Point(ctx, trace.ScopeFunction, "hidden", "")
		if err := tr.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		out := buf.String()
		for _, w := range tt.want {
			if !strings.Contains(out, w) {
				t.Errorf("format %d output %q lacks %q", tt.format, out, w)
			}
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("phase level emitted a function-scope event: %q", out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"off", "error", "phase", "detail", "debug"} {
		l, err := trace.ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if l.String() != s {
			t.Fatalf("ParseLevel(%q).String() = %q", s, l.String())
		}
	}
	if _, err := trace.ParseLevel("verbose"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestSettings_Resolve(t *testing.T) {
	cfg, err := trace.Settings{Level: "Detail", Mode: "both", Format: "json", Output: "out.ndjson"}.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Level != trace.LevelDetail || cfg.Mode != trace.ModeBoth || cfg.Format != trace.FormatNDJSON || cfg.OutputPath != "out.ndjson" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	_, err = trace.Settings{Level: "off", Mode: "file"}.Resolve()
	if err == nil || !strings.Contains(err.Error(), "stream|ring|both") {
		t.Fatalf("bad mode error: %v", err)
	}
	if f, err := trace.ParseFormat(""); err != nil || f != trace.FormatAuto {
		t.Fatalf("empty format = %v, %v", f, err)
	}
}

func TestNew_OffIsNop(t *testing.T) {
	tr, err := trace.New(trace.Config{Level: trace.LevelOff})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if tr != trace.Nop {
		t.Fatalf("off config built %T, want Nop", tr)
	}
	span, _ := trace.Start(trace.WithTracer(context.Background(), tr), trace.ScopeDriver, "x")
	if span.ID() != 0 {
		t.Fatalf("disabled span has id %d", span.ID())
	}
}

func TestText_IndentsAndSortsExtra(t *testing.T) {
	ring := trace.NewRing(4, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)
	span, _ := trace.Start(ctx, trace.ScopeFunction, "test::main")
	span.WithExtra("statements", "12").WithExtra("blocks", "3").End("")
	events := ring.Snapshot()
	line := string(trace.FormatEvent(&events[1], trace.FormatText))
	if !strings.HasSuffix(line, "end       function/test::main blocks=3 statements=12\n") {
		t.Fatalf("unexpected text line %q", line)
	}
}

func TestStartHeartbeat_StopsCleanly(t *testing.T) {
	ring := trace.NewRing(64, trace.LevelError)
	stop := trace.StartHeartbeat(ring, time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for len(ring.Snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stop()
	stop()
	events := ring.Snapshot()
	if len(events) == 0 {
		t.Fatal("no heartbeat recorded")
	}
	if events[0].Kind != trace.KindHeartbeat || events[0].Detail != "#1" {
		t.Fatalf("first event %+v", events[0])
	}
	n := len(ring.Snapshot())
	time.Sleep(5 * time.Millisecond)
	if got := len(ring.Snapshot()); got != n {
		t.Fatalf("heartbeat kept running after stop: %d -> %d events", n, got)
	}
}
