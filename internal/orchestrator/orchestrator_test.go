package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
)

func newTestOrchestrator() *Orchestrator {
	return &Orchestrator{
		intervals: Intervals{Fast: 10 * time.Millisecond, Slow: 10 * time.Millisecond, Webhook: 10 * time.Millisecond},
		metrics:   metrics.NewWithRegistry(nil),
		logger:    logging.New(logging.Config{Level: logging.LevelError}),
	}
}

func TestRunLoopRunsImmediatelyThenTicks(t *testing.T) {
	o := newTestOrchestrator()
	var calls int32

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)

	go o.runLoop(ctx, &wg, "test", 5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})

	// The immediate call fires before any ticker; give it time to land.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, time.Millisecond)

	// Let a couple of ticks happen.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)

	cancel()
	wg.Wait() // runLoop must return promptly once ctx is cancelled.
}

func TestRunLoopStopsOnCancelWithoutFurtherCalls(t *testing.T) {
	o := newTestOrchestrator()
	var calls int32

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)

	go o.runLoop(ctx, &wg, "test", time.Hour, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runLoop did not stop after context cancellation")
	}

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRunLoopKeepsTickingAfterFailingCycles(t *testing.T) {
	// runFastCycle dereferences o.projector/o.withdrawal, so this test only
	// exercises runLoop's error-tolerance contract via a synthetic cycle,
	// mirroring the "one bad iteration never blocks the loop" requirement.
	o := newTestOrchestrator()
	var calls int32
	failing := func(context.Context) {
		atomic.AddInt32(&calls, 1)
		o.metrics.LoopErrors.WithLabelValues(loopFast).Inc()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go o.runLoop(ctx, &wg, loopFast, 5*time.Millisecond, failing)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)
}
