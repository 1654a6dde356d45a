// Command reconciled is the custodial gateway daemon: it wires the node
// RPC client, the ledger store, and every reconciliation component into
// the three-loop orchestrator (§4.9), exposing only a Prometheus metrics
// endpoint. The HTTP API, auth, and admin surfaces are out of scope (§1)
// and live, if at all, in a separate front-door process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vsnation/beamgate/internal/addresssync"
	"github.com/vsnation/beamgate/internal/assetsync"
	"github.com/vsnation/beamgate/internal/auditor"
	"github.com/vsnation/beamgate/internal/config"
	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/orchestrator"
	"github.com/vsnation/beamgate/internal/projector"
	"github.com/vsnation/beamgate/internal/store"
	"github.com/vsnation/beamgate/internal/webhook"
	"github.com/vsnation/beamgate/internal/withdrawal"
)

func main() {
	logger := logging.New(logging.Config{Format: "logfmt", Level: logging.LevelInfo})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	logger = logging.New(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel})

	db, err := store.Connect(store.Config{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseDSN,
		Schema: cfg.DatabaseSchema,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}

	addresses := store.NewAddressStore(db)
	assets := store.NewAssetStore(db)
	txs := store.NewTransactionStore(db)
	withdrawals := store.NewWithdrawalStore(db)
	webhooks := store.NewWebhookStore(db)

	node := noderpc.New(cfg.NodeRPCURL)
	m := metrics.New()

	proj := projector.New(node, addresses, txs, withdrawals, cfg.ConfirmationThreshold, logger)
	queue := withdrawal.New(node, addresses, txs, withdrawals, m, logger)
	assetSync := assetsync.New(node, assets, idSetToSlice(cfg.VerifiedAssetIDs()), idSetToSlice(cfg.SpamAssetIDs()), cfg.DEXContractID, cfg.NativePriceURL, logger)
	addrSync := addresssync.New(node, addresses, logger)
	aud := auditor.New(node, addresses, m, logger)
	dispatcher := webhook.New(txs, assets, webhooks, cfg.WebhookURLs(), cfg.MaxWebhookRetries, cfg.ConfirmationThreshold, m, logger, nil)

	orch := orchestrator.New(proj, queue, assetSync, addrSync, aud, dispatcher, orchestrator.Intervals{
		Fast:    cfg.FastLoopInterval,
		Slow:    cfg.SlowLoopInterval,
		Webhook: cfg.WebhookLoopInterval,
	}, m, logger)

	ctx, cancel := context.WithCancel(context.Background())

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failure", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Blocks until ctx is cancelled and every loop has finished its
	// current iteration.
	orch.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down metrics server", "error", err)
	}

	logger.Info("shutdown complete")
}

func idSetToSlice(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
