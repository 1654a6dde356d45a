package store

import (
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionStore manages the reconciled transaction log.
type TransactionStore struct {
	db *gorm.DB
}

func NewTransactionStore(db *gorm.DB) *TransactionStore { return &TransactionStore{db: db} }

// Find returns the ledger transaction row for txID, or
// gorm.ErrRecordNotFound if the projector has not yet observed it.
func (s *TransactionStore) Find(txID string) (Transaction, error) {
	var t Transaction
	err := s.db.Where("tx_id = ?", txID).First(&t).Error
	return t, err
}

// Exists reports whether txID has a ledger row yet.
func (s *TransactionStore) Exists(txID string) (bool, error) {
	_, err := s.Find(txID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert creates the first ledger row for a transaction: a newly-observed,
// durable one from the projector (status ∈ {in-progress, completed,
// registering}), or a just-submitted withdrawal from the withdrawal queue
// (status pending).
func (s *TransactionStore) Insert(t Transaction) error {
	if t.WebhookSent == nil {
		t.WebhookSent = datatypes.JSON([]byte("{}"))
	}
	return s.db.Create(&t).Error
}

// UpdateConfirmations advances the confirmation count, guarded by
// !success so a finalized transaction is never touched again.
func (s *TransactionStore) UpdateConfirmations(txID string, confirmations int) error {
	return s.db.Model(&Transaction{}).
		Where("tx_id = ? AND success = ?", txID, false).
		Update("confirmations", confirmations).Error
}

// UpdateStatus transitions status/status_string/confirmations/failure_reason,
// guarded by !success.
func (s *TransactionStore) UpdateStatus(txID string, status int, statusString string, confirmations int, failureReason string) error {
	return s.db.Model(&Transaction{}).
		Where("tx_id = ? AND success = ?", txID, false).
		Updates(map[string]any{
			"status":         status,
			"status_string":  statusString,
			"confirmations":  confirmations,
			"failure_reason": failureReason,
		}).Error
}

// MarkSuccess sets success=true, the terminal idempotency flag that makes
// re-observation of this transaction a no-op.
func (s *TransactionStore) MarkSuccess(txID string) error {
	return s.db.Model(&Transaction{}).Where("tx_id = ?", txID).Update("success", true).Error
}

// WebhookSent reports whether the given event kind has already been
// emitted for txID.
func (s *TransactionStore) WebhookSent(txID, kind string) (bool, error) {
	t, err := s.Find(txID)
	if err != nil {
		return false, err
	}
	sent := decodeWebhookSent(t.WebhookSent)
	return sent[kind], nil
}

// MarkWebhookSent sets webhook_sent.<kind>=true, the dispatcher's
// idempotency boundary for a given (tx_id, kind) pair.
func (s *TransactionStore) MarkWebhookSent(txID, kind string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var t Transaction
		if err := tx.Where("tx_id = ?", txID).First(&t).Error; err != nil {
			return err
		}
		sent := decodeWebhookSent(t.WebhookSent)
		sent[kind] = true
		encoded, err := json.Marshal(sent)
		if err != nil {
			return err
		}
		return tx.Model(&Transaction{}).Where("tx_id = ?", txID).Update("webhook_sent", datatypes.JSON(encoded)).Error
	})
}

func decodeWebhookSent(raw datatypes.JSON) map[string]bool {
	sent := map[string]bool{}
	if len(raw) == 0 {
		return sent
	}
	_ = json.Unmarshal(raw, &sent)
	return sent
}

// ListPendingWebhooks returns every transaction that could still need a
// webhook emission. The exact (status, confirmations, webhook_sent) gate
// per event kind is evaluated by the dispatcher; this query selects every
// row whose status is one of 0..5 and does not filter on webhook_sent.
func (s *TransactionStore) ListPendingWebhooks() ([]Transaction, error) {
	var out []Transaction
	err := s.db.Where("status IN ?", []int{0, 1, 2, 3, 4, 5}).Find(&out).Error
	return out, err
}

// ByCreateTime returns transactions ordered ascending by create_time,
// starting after the given cursor. No loop calls it; the projector pages
// the node's tx_list instead.
func (s *TransactionStore) ByCreateTime(afterCreateTime int64, limit int) ([]Transaction, error) {
	var out []Transaction
	err := s.db.Where("create_time > ?", afterCreateTime).
		Order("create_time ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ByAddress returns every transaction where addressID is sender or
// receiver, ordered newest first, optionally narrowed to one asset. Used
// by the operator CLI's transaction export, not by any loop.
func (s *TransactionStore) ByAddress(addressID string, assetID *int64) ([]Transaction, error) {
	var out []Transaction
	q := s.db.Where("sender = ? OR receiver = ?", addressID, addressID)
	if assetID != nil {
		q = q.Where("asset_id = ?", *assetID)
	}
	err := q.Order("create_time DESC").Find(&out).Error
	return out, err
}
