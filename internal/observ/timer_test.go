package observ_test

import (
	"testing"
	"time"

	"sierra2mlir/internal/observ"
)

func TestTimer_Phases(t *testing.T) {
	tm := observ.NewTimer()
	tm.Add("parse", 2*time.Millisecond, "")
	stop := tm.Start("lower")
	stop("3 functions")
	stop("ignored")

	got := tm.Phases()
	if len(got) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(got))
	}
	if got[0].Name != "parse" || got[0].Dur != 2*time.Millisecond {
		t.Fatalf("unexpected first phase %+v", got[0])
	}
	if got[1].Name != "lower" || got[1].Note != "3 functions" {
		t.Fatalf("second phase not closed by the first stop: %+v", got[1])
	}
	if tm.Total() < 2*time.Millisecond {
		t.Fatalf("total %v below the recorded phase", tm.Total())
	}
}

func TestTimer_Nil(t *testing.T) {
	var tm *observ.Timer
	tm.Start("lower")("done")
	tm.Add("parse", time.Second, "")
	if tm.Phases() != nil || tm.Total() != 0 {
		t.Fatal("nil timer recorded phases")
	}
}

func TestMillis(t *testing.T) {
	if got := observ.Millis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("Millis = %v, want 1.5", got)
	}
}
