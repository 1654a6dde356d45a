// Package metrics exposes the Prometheus gauges and counters the
// orchestrator's loops refresh on every cycle.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every series beamgate publishes.
type Metrics struct {
	LedgerAvailable *prometheus.GaugeVec
	LedgerLocked    *prometheus.GaugeVec

	WithdrawalQueueDepth prometheus.Gauge
	WithdrawalSubmitted  prometheus.Counter
	WithdrawalFailed     prometheus.Counter
	WithdrawalAdminCheck prometheus.Counter

	AuditDiscrepancies *prometheus.GaugeVec

	WebhookAttemptsTotal *prometheus.CounterVec
	WebhookFailuresTotal *prometheus.CounterVec
	FailedWebhookQueued  prometheus.Gauge

	ProjectorProcessed prometheus.Counter
	LoopErrors         *prometheus.CounterVec
}

// New registers and returns the metric set against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers against a custom registerer, used by tests to
// avoid colliding with the process-wide default registry. A nil registry
// gets a fresh private one.
func NewWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		LedgerAvailable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamgate_ledger_available",
			Help: "Sum of available balance across all addresses, by asset",
		}, []string{"asset_id"}),
		LedgerLocked: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamgate_ledger_locked",
			Help: "Sum of locked balance across all addresses, by asset",
		}, []string{"asset_id"}),
		WithdrawalQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "beamgate_withdrawal_queue_depth",
			Help: "Number of pending withdrawals awaiting submission",
		}),
		WithdrawalSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "beamgate_withdrawal_submitted_total",
			Help: "Total withdrawals successfully submitted to the node",
		}),
		WithdrawalFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "beamgate_withdrawal_failed_total",
			Help: "Total withdrawal submissions that failed at the RPC layer",
		}),
		WithdrawalAdminCheck: factory.NewCounter(prometheus.CounterOpts{
			Name: "beamgate_withdrawal_admin_check_total",
			Help: "Total withdrawals routed to admin_check by the consistency gate",
		}),
		AuditDiscrepancies: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamgate_audit_discrepancies",
			Help: "Current ledger/node balance discrepancy by asset (1=discrepant, 0=consistent)",
		}, []string{"asset_id"}),
		WebhookAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beamgate_webhook_attempts_total",
			Help: "Total webhook delivery attempts by event kind",
		}, []string{"event"}),
		WebhookFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beamgate_webhook_failures_total",
			Help: "Total webhook delivery attempts that did not return HTTP 200",
		}, []string{"event"}),
		FailedWebhookQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "beamgate_webhook_dead_letter_queued",
			Help: "Number of webhook deliveries currently dead-lettered",
		}),
		ProjectorProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "beamgate_projector_transactions_processed_total",
			Help: "Total node transactions the projector has observed",
		}),
		LoopErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beamgate_loop_errors_total",
			Help: "Total top-level errors caught by an orchestrator loop",
		}, []string{"loop"}),
	}
}

// RefreshLedgerGauges is invoked once per slow-loop cycle by the balance
// auditor with the sums it already computed, avoiding a second aggregate
// query solely for metrics.
func (m *Metrics) RefreshLedgerGauges(assetID int64, available, locked int64) {
	label := formatAssetID(assetID)
	m.LedgerAvailable.WithLabelValues(label).Set(float64(available))
	m.LedgerLocked.WithLabelValues(label).Set(float64(locked))
}

// SetDiscrepancy flags whether asset's ledger/node totals currently agree.
func (m *Metrics) SetDiscrepancy(assetID int64, discrepant bool) {
	v := 0.0
	if discrepant {
		v = 1.0
	}
	m.AuditDiscrepancies.WithLabelValues(formatAssetID(assetID)).Set(v)
}

func formatAssetID(assetID int64) string {
	return strconv.FormatInt(assetID, 10)
}
