// Package withdrawal implements the pending-withdrawal queue processor
// (§4.6): it re-validates funds against the sender's own pending rows,
// checks node UTXO availability, and submits via tx_send under a
// compare-and-set lease that rules out double submission.
package withdrawal

import (
	"context"
	"fmt"

	"github.com/vsnation/beamgate/internal/gatewayerr"
	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/metrics"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/store"
)

// Processor drains the pending withdrawal queue once per fast-loop cycle.
type Processor struct {
	node        *noderpc.Client
	addresses   *store.AddressStore
	txs         *store.TransactionStore
	withdrawals *store.WithdrawalStore
	metrics     *metrics.Metrics
	logger      logging.Logger
}

func New(node *noderpc.Client, addresses *store.AddressStore, txs *store.TransactionStore, withdrawals *store.WithdrawalStore, m *metrics.Metrics, logger logging.Logger) *Processor {
	return &Processor{
		node:        node,
		addresses:   addresses,
		txs:         txs,
		withdrawals: withdrawals,
		metrics:     m,
		logger:      logger.NewSystem("withdrawal-queue"),
	}
}

// Run iterates every withdrawal currently in status=pending, applying the
// consistency gate, UTXO gate, lease, and submission in turn. A failure on
// one row is logged and does not interrupt the others.
func (p *Processor) Run(ctx context.Context) error {
	pending, err := p.withdrawals.ListPending()
	if err != nil {
		return fmt.Errorf("list pending withdrawals: %w", err)
	}

	p.metrics.WithdrawalQueueDepth.Set(float64(len(pending)))

	for _, w := range pending {
		if err := p.processOne(ctx, w); err != nil {
			p.logger.Error("failed to process withdrawal", "id", w.ID, "sender", w.Sender, "error", err)
		}
	}
	return nil
}

func (p *Processor) processOne(ctx context.Context, w store.PendingWithdrawal) error {
	if err := p.consistencyGate(w); err != nil {
		p.logger.Error("consistency gate failed, routing to admin_check", "id", w.ID, "sender", w.Sender, "assetId", w.AssetID, "error", err)
		p.metrics.WithdrawalAdminCheck.Inc()
		return p.withdrawals.MarkAdminCheck(w.ID)
	}

	ok, err := p.utxoGate(ctx, w)
	if err != nil {
		return fmt.Errorf("utxo gate: %w", err)
	}
	if !ok {
		return nil // insufficient utxos, retry next cycle
	}

	claimed, err := p.withdrawals.ClaimForProcessing(w.ID)
	if err != nil {
		return fmt.Errorf("claim lease: %w", err)
	}
	if !claimed {
		return nil // another worker already claimed this row
	}

	txID, err := p.node.TxSend(ctx, noderpc.TxSendParams{
		Value:    w.Value,
		Fee:      w.Fee,
		Sender:   w.Sender,
		Receiver: w.Receiver,
		AssetID:  w.AssetID,
		Comment:  w.Comment,
	})
	if err != nil {
		p.logger.Error("tx_send failed, reverting to pending", "id", w.ID, "error", err)
		p.metrics.WithdrawalFailed.Inc()
		if revertErr := p.withdrawals.RevertToPending(w.ID); revertErr != nil {
			return fmt.Errorf("revert after tx_send failure: %w", revertErr)
		}
		return nil
	}

	if err := p.withdrawals.MarkSent(w.ID, txID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	if err := p.txs.Insert(store.Transaction{
		TxID:       txID,
		Status:     noderpc.TxStatusPending,
		Success:    false,
		AssetID:    w.AssetID,
		Value:      w.Value,
		Fee:        w.Fee,
		Sender:     w.Sender,
		Receiver:   w.Receiver,
		Comment:    w.Comment,
		CreateTime: w.CreateTime,
	}); err != nil {
		return fmt.Errorf("insert submitted-tx ledger row: %w", err)
	}

	p.metrics.WithdrawalSubmitted.Inc()
	p.logger.Info("withdrawal submitted", "id", w.ID, "txId", txID, "sender", w.Sender, "assetId", w.AssetID)
	return nil
}

// consistencyGate re-derives the sender's locked totals from its own
// non-terminal pending withdrawals and compares them against the ledger's
// locked balance. A mismatch means the projector's LOCK step and the
// pending-withdrawal set have drifted apart; non-retriable.
func (p *Processor) consistencyGate(w store.PendingWithdrawal) error {
	lockedAsset, lockedBeam, err := p.lockedTotals(w.Sender, w.AssetID)
	if err != nil {
		return err
	}

	others, err := p.withdrawals.ListNonTerminalBySender(w.Sender)
	if err != nil {
		return err
	}

	var pendingBeamTotal, pendingAssetTotal int64
	for _, o := range others {
		if o.AssetID == store.NativeAssetID {
			pendingBeamTotal += o.Value + o.Fee
		} else {
			pendingBeamTotal += o.Fee
			if o.AssetID == w.AssetID {
				pendingAssetTotal += o.Value
			}
		}
	}
	if w.AssetID == store.NativeAssetID {
		pendingAssetTotal = pendingBeamTotal
	}

	if lockedBeam != pendingBeamTotal {
		return &gatewayerr.ConsistencyViolationError{Address: w.Sender, AssetID: store.NativeAssetID, Reason: fmt.Sprintf("locked_beam=%d pending_beam_total=%d", lockedBeam, pendingBeamTotal)}
	}
	if lockedAsset != pendingAssetTotal {
		return &gatewayerr.ConsistencyViolationError{Address: w.Sender, AssetID: w.AssetID, Reason: fmt.Sprintf("locked_balance=%d pending_asset_total=%d", lockedAsset, pendingAssetTotal)}
	}
	return nil
}

func (p *Processor) lockedTotals(sender string, assetID int64) (lockedAsset, lockedBeam int64, err error) {
	_, lockedAsset, err = p.addresses.Balance(sender, assetID)
	if err != nil {
		return 0, 0, err
	}
	if assetID == store.NativeAssetID {
		return lockedAsset, lockedAsset, nil
	}
	_, lockedBeam, err = p.addresses.Balance(sender, store.NativeAssetID)
	if err != nil {
		return 0, 0, err
	}
	return lockedAsset, lockedBeam, nil
}

// utxoGate confirms the node holds enough unlocked UTXOs to cover the
// withdrawal's value (plus fee, when the withdrawal itself is in the
// native asset).
func (p *Processor) utxoGate(ctx context.Context, w store.PendingWithdrawal) (bool, error) {
	need := w.Value
	if w.AssetID == store.NativeAssetID {
		need += w.Fee
	}

	sum, err := p.unlockedUTXOSum(ctx, w.AssetID)
	if err != nil {
		return false, err
	}
	if sum < need {
		return false, nil
	}

	if w.AssetID != store.NativeAssetID {
		feeSum, err := p.unlockedUTXOSum(ctx, store.NativeAssetID)
		if err != nil {
			return false, err
		}
		if feeSum < w.Fee {
			return false, nil
		}
	}
	return true, nil
}

func (p *Processor) unlockedUTXOSum(ctx context.Context, assetID int64) (int64, error) {
	utxos, err := p.node.GetUTXO(ctx, assetID)
	if err != nil {
		return 0, fmt.Errorf("get_utxo: %w", err)
	}
	var sum int64
	for _, u := range utxos {
		if u.Status == 1 {
			sum += u.Amount.Int64()
		}
	}
	return sum, nil
}
