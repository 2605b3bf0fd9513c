// Package trace follows a compilation through its pipeline stages,
// conversion passes, per-function lowering and single statements.
//
// The tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, t)
//	span, ctx := trace.Start(ctx, trace.ScopeDriver, "lower")
//	defer span.End("")
//
// Sinks: Nop when disabled, Stream writes text or NDJSON lines as events
// arrive, Ring keeps the last events for a dump at exit, and Fanout combines
// them. The level decides which scopes are recorded: phase admits driver
// and pass events, detail adds functions, debug adds statements.
package trace
