// Package webhook implements the webhook dispatcher (§4.8): it scans
// transactions for lifecycle events not yet delivered, POSTs each to every
// configured URL with retry/backoff, and replays the dead-letter queue.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gorm.io/datatypes"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
	"github.com/vsnation/beamgate/internal/money"
	"github.com/vsnation/beamgate/internal/store"
)

// Event kinds, matching the §4.8 event table.
const (
	EventDepositPending    = "deposit_pending"
	EventDepositConfirmed  = "deposit_confirmed"
	EventWithdrawPending   = "withdraw_pending"
	EventWithdrawConfirmed = "withdraw_confirmed"
	EventFailed            = "failed"
	EventCancelled         = "cancelled"
)

const requestTimeout = 5 * time.Second

// Payload is the JSON body POSTed to every configured webhook URL.
type Payload struct {
	Event          string `json:"event"`
	TxID           string `json:"txId"`
	Amount         int64  `json:"amount"`
	ValueFormatted string `json:"value_formatted"`
	AssetID        int64  `json:"asset_id"`
	AssetName      string `json:"asset_name"`
	Address        string `json:"address"`
	Comment        string `json:"comment"`
	Kernel         string `json:"kernel"`
}

// Dispatcher scans transactions and the dead-letter queue once per webhook
// loop cycle.
type Dispatcher struct {
	txs         *store.TransactionStore
	assets      *store.AssetStore
	webhooks    *store.WebhookStore
	urls        []string
	maxRetries  int
	threshold   int
	httpClient  *http.Client
	metrics     *metrics.Metrics
	logger      logging.Logger
	isRegistered func(addressID string) bool
	sleep        func(ctx context.Context, d time.Duration)
}

// New builds a Dispatcher. isRegistered reports whether an address belongs
// to a known user; a nil isRegistered treats every address as registered,
// and callers may narrow this for multi-tenant deployments.
func New(txs *store.TransactionStore, assets *store.AssetStore, webhooks *store.WebhookStore, urls []string, maxRetries, threshold int, m *metrics.Metrics, logger logging.Logger, isRegistered func(string) bool) *Dispatcher {
	if isRegistered == nil {
		isRegistered = func(string) bool { return true }
	}
	return &Dispatcher{
		txs:          txs,
		assets:       assets,
		webhooks:     webhooks,
		urls:         urls,
		maxRetries:   maxRetries,
		threshold:    threshold,
		httpClient:   &http.Client{Timeout: requestTimeout},
		metrics:      m,
		logger:       logger.NewSystem("webhook-dispatcher"),
		isRegistered: isRegistered,
		sleep:        sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// Run scans pending-webhook candidates, emits any newly-due events, then
// replays the dead-letter queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	txs, err := d.txs.ListPendingWebhooks()
	if err != nil {
		return fmt.Errorf("list pending webhooks: %w", err)
	}

	for _, tx := range txs {
		if err := d.emitDue(ctx, tx); err != nil {
			d.logger.Error("failed to emit webhooks for transaction", "txId", tx.TxID, "error", err)
		}
	}

	d.replayFailed(ctx)
	return nil
}

type dueEvent struct {
	kind    string
	address string
}

func (d *Dispatcher) dueEvents(tx store.Transaction) []dueEvent {
	sent := decodeSent(tx.WebhookSent)
	var due []dueEvent

	switch {
	case contains(tx.Status, 0, 1, 5) && tx.Income && !sent[EventDepositPending] && d.isRegistered(tx.Receiver):
		due = append(due, dueEvent{EventDepositPending, tx.Receiver})
	case tx.Status == 3 && tx.Income && tx.Confirmations >= d.threshold && !sent[EventDepositConfirmed] && d.isRegistered(tx.Receiver):
		due = append(due, dueEvent{EventDepositConfirmed, tx.Receiver})
	case contains(tx.Status, 0, 1) && !tx.Income && !sent[EventWithdrawPending] && d.isRegistered(tx.Sender):
		due = append(due, dueEvent{EventWithdrawPending, tx.Sender})
	case tx.Status == 3 && !tx.Income && !sent[EventWithdrawConfirmed] && d.isRegistered(tx.Sender):
		due = append(due, dueEvent{EventWithdrawConfirmed, tx.Sender})
	}

	if tx.Status == 4 && !sent[EventFailed] {
		due = append(due, dueEvent{EventFailed, tx.Sender})
	}
	if tx.Status == 2 && !sent[EventCancelled] {
		due = append(due, dueEvent{EventCancelled, tx.Sender})
	}
	return due
}

func (d *Dispatcher) emitDue(ctx context.Context, tx store.Transaction) error {
	for _, ev := range d.dueEvents(tx) {
		payload := d.buildPayload(ev.kind, ev.address, tx)
		if !d.dispatch(ctx, ev.kind, payload) {
			// At least one URL exhausted its retries and was
			// dead-lettered; webhook_sent stays false so the next cycle
			// re-attempts delivery instead of silently giving up on it.
			continue
		}
		if err := d.txs.MarkWebhookSent(tx.TxID, ev.kind); err != nil {
			return fmt.Errorf("mark webhook sent (%s): %w", ev.kind, err)
		}
	}
	return nil
}

func (d *Dispatcher) buildPayload(kind, address string, tx store.Transaction) Payload {
	decimals := int32(money.DefaultDecimals)
	assetName := ""
	if a, err := d.assets.Get(tx.AssetID); err == nil {
		decimals = a.Decimals
		assetName = assetDisplayName(a)
	}
	return Payload{
		Event:          kind,
		TxID:           tx.TxID,
		Amount:         tx.Value,
		ValueFormatted: money.Format(tx.Value, decimals),
		AssetID:        tx.AssetID,
		AssetName:      assetName,
		Address:        address,
		Comment:        tx.Comment,
		Kernel:         tx.Kernel,
	}
}

func assetDisplayName(a store.Asset) string {
	meta := map[string]string{}
	for _, pair := range splitPairs(a.MetadataRaw) {
		meta[pair[0]] = pair[1]
	}
	if name, ok := meta["SN"]; ok {
		return name
	}
	return ""
}

func splitPairs(raw string) [][2]string {
	var out [][2]string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ';' {
			pair := raw[start:i]
			for j := 0; j < len(pair); j++ {
				if pair[j] == '=' {
					out = append(out, [2]string{pair[:j], pair[j+1:]})
					break
				}
			}
			start = i + 1
		}
	}
	return out
}

// dispatch POSTs payload to every configured URL, retrying with exponential
// backoff before dead-lettering on exhaustion. It reports whether every
// URL was delivered successfully — the idempotency boundary (§4.8)
// requires webhook_sent to stay false unless delivery actually succeeded.
func (d *Dispatcher) dispatch(ctx context.Context, kind string, payload Payload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to marshal webhook payload", "event", kind, "error", err)
		return false
	}

	allDelivered := true
	for _, url := range d.urls {
		if !d.deliverWithRetry(ctx, url, kind, body) {
			allDelivered = false
		}
	}
	return allDelivered
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, url, kind string, body []byte) bool {
	attempt := 0
	for attempt < d.maxRetries {
		d.metrics.WebhookAttemptsTotal.WithLabelValues(kind).Inc()

		if d.post(ctx, url, body) {
			return true
		}

		d.metrics.WebhookFailuresTotal.WithLabelValues(kind).Inc()
		if attempt+1 < d.maxRetries {
			backoff := time.Duration(10*(1<<uint(attempt))) * time.Second
			d.sleep(ctx, backoff)
		}
		attempt++
	}

	d.logger.Error("webhook delivery exhausted retries, dead-lettering", "url", url, "event", kind)
	if err := d.webhooks.InsertFailed(url, kind, datatypes.JSON(body), attempt); err != nil {
		d.logger.Error("failed to persist dead-lettered webhook", "url", url, "error", err)
	} else {
		d.metrics.FailedWebhookQueued.Inc()
	}
	return false
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) bool {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// replayFailed retries every dead-lettered webhook once per cycle,
// deleting it on success.
func (d *Dispatcher) replayFailed(ctx context.Context) {
	failed, err := d.webhooks.ListFailed()
	if err != nil {
		d.logger.Error("failed to list dead-lettered webhooks", "error", err)
		return
	}

	for _, f := range failed {
		if d.post(ctx, f.URL, f.Payload) {
			if err := d.webhooks.DeleteFailed(f.ID); err != nil {
				d.logger.Error("failed to delete replayed webhook", "id", f.ID, "error", err)
			}
			d.metrics.FailedWebhookQueued.Dec()
		}
	}
}

func decodeSent(raw datatypes.JSON) map[string]bool {
	sent := map[string]bool{}
	if len(raw) == 0 {
		return sent
	}
	_ = json.Unmarshal(raw, &sent)
	return sent
}

func contains(v int, options ...int) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
