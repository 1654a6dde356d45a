// Package orchestrator drives the fast, slow, and webhook loops (§4.9)
// as independent goroutines sharing nothing but the ledger store, in the
// same ticker-per-worker shape as the teacher's BlockchainWorker.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/vsnation/beamgate/internal/addresssync"
	"github.com/vsnation/beamgate/internal/assetsync"
	"github.com/vsnation/beamgate/internal/auditor"
	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
	"github.com/vsnation/beamgate/internal/projector"
	"github.com/vsnation/beamgate/internal/webhook"
	"github.com/vsnation/beamgate/internal/withdrawal"
)

const (
	loopFast    = "fast"
	loopSlow    = "slow"
	loopWebhook = "webhook"
)

// Intervals configures the cadence of the three loops.
type Intervals struct {
	Fast    time.Duration
	Slow    time.Duration
	Webhook time.Duration
}

// Orchestrator owns the three cooperatively scheduled loops described in
// §4.9: fast (projector → withdrawal queue), slow (asset/address sync →
// auditor), and webhook (dispatcher). It assumes no shared mutable state
// between loops other than the ledger, which each component already
// mutates through atomic per-field or conditional updates.
type Orchestrator struct {
	projector  *projector.Projector
	withdrawal *withdrawal.Processor
	assetSync  *assetsync.Synchronizer
	addrSync   *addresssync.Synchronizer
	auditor    *auditor.Auditor
	dispatcher *webhook.Dispatcher

	intervals Intervals
	metrics   *metrics.Metrics
	logger    logging.Logger
}

// New builds an Orchestrator from its constituent components.
func New(
	proj *projector.Projector,
	wq *withdrawal.Processor,
	assetSync *assetsync.Synchronizer,
	addrSync *addresssync.Synchronizer,
	aud *auditor.Auditor,
	dispatcher *webhook.Dispatcher,
	intervals Intervals,
	m *metrics.Metrics,
	logger logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		projector:  proj,
		withdrawal: wq,
		assetSync:  assetSync,
		addrSync:   addrSync,
		auditor:    aud,
		dispatcher: dispatcher,
		intervals:  intervals,
		metrics:    m,
		logger:     logger.NewSystem("orchestrator"),
	}
}

// Start launches the three loops and blocks until ctx is cancelled, at
// which point it waits for the current iteration of each loop to finish
// before returning. A loop never exits early on its own error; every
// top-level error is logged, counted, and the loop waits for its next
// tick.
func (o *Orchestrator) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(3)
	go o.runLoop(ctx, &wg, loopFast, o.intervals.Fast, o.runFastCycle)
	go o.runLoop(ctx, &wg, loopSlow, o.intervals.Slow, o.runSlowCycle)
	go o.runLoop(ctx, &wg, loopWebhook, o.intervals.Webhook, o.runWebhookCycle)

	o.logger.Info("orchestrator started",
		"fastInterval", o.intervals.Fast, "slowInterval", o.intervals.Slow, "webhookInterval", o.intervals.Webhook)

	<-ctx.Done()
	o.logger.Info("shutdown signal received, waiting for loop iterations to finish")
	wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// runLoop ticks cycle on interval, running once immediately on entry, and
// returns once ctx is cancelled. It never lets a cycle's error escape: the
// loop's only job is to keep making independent progress.
func (o *Orchestrator) runLoop(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, cycle func(context.Context)) {
	defer wg.Done()

	cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Debug("loop stopping", "loop", name)
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

func (o *Orchestrator) runFastCycle(ctx context.Context) {
	if err := o.projector.Run(ctx); err != nil {
		o.metrics.LoopErrors.WithLabelValues(loopFast).Inc()
		o.logger.Error("projector cycle failed", "error", err)
	}
	if err := o.withdrawal.Run(ctx); err != nil {
		o.metrics.LoopErrors.WithLabelValues(loopFast).Inc()
		o.logger.Error("withdrawal queue cycle failed", "error", err)
	}
}

func (o *Orchestrator) runSlowCycle(ctx context.Context) {
	// assetSync.Run fetches the native price itself before syncing assets,
	// matching §4.9's "native-price fetch → asset sync" ordering.
	o.assetSync.Run(ctx)

	if err := o.addrSync.Run(ctx); err != nil {
		o.metrics.LoopErrors.WithLabelValues(loopSlow).Inc()
		o.logger.Error("address sync cycle failed", "error", err)
	}

	if discrepancies, err := o.auditor.Run(ctx); err != nil {
		o.metrics.LoopErrors.WithLabelValues(loopSlow).Inc()
		o.logger.Error("auditor cycle failed", "error", err)
	} else if len(discrepancies) > 0 {
		o.logger.Warn("balance discrepancies detected this cycle", "count", len(discrepancies))
	}
}

func (o *Orchestrator) runWebhookCycle(ctx context.Context) {
	if err := o.dispatcher.Run(ctx); err != nil {
		o.metrics.LoopErrors.WithLabelValues(loopWebhook).Inc()
		o.logger.Error("webhook dispatcher cycle failed", "error", err)
	}
}
