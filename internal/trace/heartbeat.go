package trace

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// StartHeartbeat emits a heartbeat every interval until the returned stop
// function is called. A run whose spans stop ending while heartbeats keep
// coming is stuck, not dead. stop is safe to call more than once.
func StartHeartbeat(t Tracer, interval time.Duration) (stop func()) {
	if t == nil || t.Level() == LevelOff || interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for n := 1; ; n++ {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t.Emit(&Event{Time: now, Seq: nextSeq(), Kind: KindHeartbeat, Scope: ScopeDriver, Name: "heartbeat", Detail: "#" + strconv.Itoa(n)})
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
