// Package projector implements the transaction state machine (§4.5): it
// consumes the node's transaction list and drives ledger balance deltas
// with lock/unlock discipline, idempotent under replay.
package projector

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vsnation/beamgate/internal/logging"
	"github.com/vsnation/beamgate/internal/noderpc"
	"github.com/vsnation/beamgate/internal/store"
)

const pageSize = 200

// Projector pages through the node's tx_list and applies the per-tx state
// machine described in SPEC_FULL.md §4.5.
type Projector struct {
	node        *noderpc.Client
	addresses   *store.AddressStore
	txs         *store.TransactionStore
	withdrawals *store.WithdrawalStore
	threshold   int
	logger      logging.Logger

	cursor int64 // not read or written; Run pages by skip offset only
}

// New builds a Projector. threshold is the confirmation count at which a
// status=3 transaction is finalized into available balance.
func New(node *noderpc.Client, addresses *store.AddressStore, txs *store.TransactionStore, withdrawals *store.WithdrawalStore, threshold int, logger logging.Logger) *Projector {
	return &Projector{
		node:        node,
		addresses:   addresses,
		txs:         txs,
		withdrawals: withdrawals,
		threshold:   threshold,
		logger:      logger.NewSystem("projector"),
	}
}

// Run pages through tx_list, growing skip by each page's length, until an
// empty page is returned, processing each transaction through the state
// machine in the order the node returns them. It does not request or
// impose a create_time order. Per-transaction errors are logged and do not
// abort the run.
func (p *Projector) Run(ctx context.Context) error {
	skip := 0
	for {
		page, err := p.node.TxList(ctx, pageSize, skip)
		if err != nil {
			return fmt.Errorf("tx_list: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		for _, tx := range page {
			if err := p.processOne(tx); err != nil {
				p.logger.Error("failed to process transaction", "txId", tx.TxID, "error", err)
			}
		}

		skip += len(page)
	}
}

func (p *Projector) processOne(tx noderpc.Transaction) error {
	existing, err := p.txs.Find(tx.TxID)
	exists := err == nil
	if err != nil && !isNotFound(err) {
		return err
	}

	if exists && existing.Success {
		return nil // terminal, idempotent no-op
	}

	if !exists {
		return p.handleFirstObservation(tx)
	}

	return p.handleUpdate(tx, existing)
}

func (p *Projector) handleFirstObservation(tx noderpc.Transaction) error {
	if !isDurableStatus(tx.Status) {
		return nil // not yet durable (status=0/pending), skip insert
	}

	if err := p.txs.Insert(store.Transaction{
		TxID:          tx.TxID,
		Status:        tx.Status,
		StatusString:  tx.StatusString,
		Income:        tx.Income,
		Type:          tx.TxType,
		AssetID:       tx.AssetID,
		Value:         tx.Value.Int64(),
		Fee:           tx.Fee,
		Sender:        tx.Sender,
		Receiver:      tx.Receiver,
		Comment:       tx.Comment,
		CreateTime:    tx.CreateTime,
		Confirmations: tx.Confirmations,
		Kernel:        tx.Kernel,
		FailureReason: tx.FailureReason,
	}); err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}

	if err := p.lock(tx); err != nil {
		return fmt.Errorf("lock: %w", err)
	}

	if tx.Status == noderpc.TxStatusCompleted && tx.Confirmations >= p.threshold {
		if err := p.finalize(tx); err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		return p.txs.MarkSuccess(tx.TxID)
	}

	return nil
}

func (p *Projector) handleUpdate(tx noderpc.Transaction, existing store.Transaction) error {
	switch {
	case tx.Status == noderpc.TxStatusCancelled || tx.Status == noderpc.TxStatusFailed:
		// Persist the status transition before fail(), which marks the
		// row success=true; UpdateStatus is guarded WHERE success=false
		// and would otherwise never advance status past its prior value.
		if err := p.txs.UpdateStatus(tx.TxID, tx.Status, tx.StatusString, tx.Confirmations, tx.FailureReason); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return p.fail(tx)

	case tx.Status == noderpc.TxStatusCompleted && tx.Confirmations >= p.threshold:
		if err := p.finalize(tx); err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		if err := p.txs.UpdateStatus(tx.TxID, tx.Status, tx.StatusString, tx.Confirmations, tx.FailureReason); err != nil {
			return err
		}
		return p.txs.MarkSuccess(tx.TxID)

	case tx.Confirmations != existing.Confirmations:
		return p.txs.UpdateConfirmations(tx.TxID, tx.Confirmations)

	default:
		return nil
	}
}

// lock applies the LOCK balance delta for a newly observed, non-terminal
// transaction.
func (p *Projector) lock(tx noderpc.Transaction) error {
	value := tx.Value.Int64()

	if tx.Sender != "" {
		if known, err := p.addresses.Exists(tx.Sender); err != nil {
			return err
		} else if known {
			if err := p.addresses.AddDelta(tx.Sender, tx.AssetID, -value, value); err != nil {
				return err
			}
			if err := p.addresses.AddDelta(tx.Sender, store.NativeAssetID, -tx.Fee, tx.Fee); err != nil {
				return err
			}
		}
	}

	if tx.Receiver != "" {
		if known, err := p.addresses.Exists(tx.Receiver); err != nil {
			return err
		} else if known {
			if err := p.addresses.AddDelta(tx.Receiver, tx.AssetID, 0, value); err != nil {
				return err
			}
		}
	}

	return nil
}

// finalize applies the FINALIZE balance delta once confirmations reach the
// threshold.
func (p *Projector) finalize(tx noderpc.Transaction) error {
	value := tx.Value.Int64()

	senderKnown := false
	if tx.Sender != "" {
		var err error
		senderKnown, err = p.addresses.Exists(tx.Sender)
		if err != nil {
			return err
		}
		if senderKnown {
			if err := p.addresses.AddDelta(tx.Sender, tx.AssetID, 0, -value); err != nil {
				return err
			}
			if err := p.addresses.AddDelta(tx.Sender, store.NativeAssetID, 0, -tx.Fee); err != nil {
				return err
			}
		}
	}

	receiverKnown := false
	if tx.Receiver != "" {
		var err error
		receiverKnown, err = p.addresses.Exists(tx.Receiver)
		if err != nil {
			return err
		}
		if receiverKnown {
			if err := p.addresses.AddDelta(tx.Receiver, tx.AssetID, value, -value); err != nil {
				return err
			}
		}
	}

	if w, ok, err := p.withdrawals.FindByTxID(tx.TxID); err != nil {
		return err
	} else if ok {
		_ = w
		if err := p.withdrawals.MarkSentConfirmed(tx.TxID); err != nil {
			return err
		}
	}

	p.logger.Info("transaction finalized", "txId", tx.TxID, "senderKnown", senderKnown, "receiverKnown", receiverKnown)
	return nil
}

// fail applies the FAIL balance delta (status ∈ {cancelled, failed}).
func (p *Projector) fail(tx noderpc.Transaction) error {
	value := tx.Value.Int64()

	if w, ok, err := p.withdrawals.FindByTxID(tx.TxID); err != nil {
		return err
	} else if ok {
		if err := p.withdrawals.MarkFailed(tx.TxID); err != nil {
			return err
		}
		if err := p.txs.MarkSuccess(tx.TxID); err != nil {
			return err
		}
		if tx.Sender != "" {
			if err := p.addresses.AddDelta(tx.Sender, tx.AssetID, value, -value); err != nil {
				return err
			}
			if err := p.addresses.AddDelta(tx.Sender, store.NativeAssetID, tx.Fee, -tx.Fee); err != nil {
				return err
			}
		}
		_ = w
		return nil
	}

	if tx.Receiver != "" {
		if known, err := p.addresses.Exists(tx.Receiver); err != nil {
			return err
		} else if known {
			if err := p.addresses.AddDelta(tx.Receiver, tx.AssetID, 0, -value); err != nil {
				return err
			}
			return p.txs.MarkSuccess(tx.TxID)
		}
	}

	return nil
}

func isDurableStatus(status int) bool {
	switch status {
	case noderpc.TxStatusInProgress, noderpc.TxStatusCompleted, noderpc.TxStatusRegistering:
		return true
	default:
		return false
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
