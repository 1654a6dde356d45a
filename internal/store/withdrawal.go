package store

import "gorm.io/gorm"

// WithdrawalStore manages pending withdrawal requests.
type WithdrawalStore struct {
	db *gorm.DB
}

func NewWithdrawalStore(db *gorm.DB) *WithdrawalStore { return &WithdrawalStore{db: db} }

// Insert creates a new withdrawal request in status=pending.
func (s *WithdrawalStore) Insert(w PendingWithdrawal) (PendingWithdrawal, error) {
	if w.Status == "" {
		w.Status = WithdrawalStatusPending
	}
	err := s.db.Create(&w).Error
	return w, err
}

// ListPending returns every withdrawal currently in status=pending.
func (s *WithdrawalStore) ListPending() ([]PendingWithdrawal, error) {
	var out []PendingWithdrawal
	err := s.db.Where("status = ?", WithdrawalStatusPending).Order("create_time ASC").Find(&out).Error
	return out, err
}

// ListNonTerminalBySender returns every withdrawal for sender that has not
// reached a terminal state, used to recompute the consistency gate's
// pending totals.
func (s *WithdrawalStore) ListNonTerminalBySender(sender string) ([]PendingWithdrawal, error) {
	var out []PendingWithdrawal
	err := s.db.Where("sender = ? AND status IN ?", sender,
		[]string{WithdrawalStatusPending, WithdrawalStatusProcessing, WithdrawalStatusSent}).
		Find(&out).Error
	return out, err
}

// ClaimForProcessing atomically transitions id from pending to processing.
// It returns false if the row was not in pending (someone else claimed it
// or it moved on), which callers treat as "skip, don't submit".
func (s *WithdrawalStore) ClaimForProcessing(id uint) (bool, error) {
	res := s.db.Model(&PendingWithdrawal{}).
		Where("id = ? AND status = ?", id, WithdrawalStatusPending).
		Update("status", WithdrawalStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RevertToPending puts a withdrawal back to pending after a failed RPC
// submission, so the next fast-loop cycle retries it.
func (s *WithdrawalStore) RevertToPending(id uint) error {
	return s.db.Model(&PendingWithdrawal{}).Where("id = ?", id).Update("status", WithdrawalStatusPending).Error
}

// MarkSent records the submitted tx id and transitions to sent.
func (s *WithdrawalStore) MarkSent(id uint, txID string) error {
	return s.db.Model(&PendingWithdrawal{}).Where("id = ?", id).
		Updates(map[string]any{"status": WithdrawalStatusSent, "tx_id": txID}).Error
}

// MarkSentConfirmed transitions a withdrawal once its transaction
// finalizes (status=3, confirmations>=threshold).
func (s *WithdrawalStore) MarkSentConfirmed(txID string) error {
	return s.db.Model(&PendingWithdrawal{}).Where("tx_id = ?", txID).Update("status", WithdrawalStatusSentConfirmed).Error
}

// MarkFailed transitions a withdrawal whose transaction failed or was
// cancelled.
func (s *WithdrawalStore) MarkFailed(txID string) error {
	return s.db.Model(&PendingWithdrawal{}).Where("tx_id = ?", txID).Update("status", WithdrawalStatusFailed).Error
}

// MarkAdminCheck moves a withdrawal to admin_check after a consistency
// gate failure; non-retriable, requires human intervention.
func (s *WithdrawalStore) MarkAdminCheck(id uint) error {
	return s.db.Model(&PendingWithdrawal{}).Where("id = ?", id).Update("status", WithdrawalStatusAdminCheck).Error
}

// FindByID returns a withdrawal row by primary key, regardless of status.
func (s *WithdrawalStore) FindByID(id uint) (PendingWithdrawal, error) {
	var w PendingWithdrawal
	err := s.db.Where("id = ?", id).First(&w).Error
	return w, err
}

// FindByTxID returns the withdrawal row submitted as txID, if any.
func (s *WithdrawalStore) FindByTxID(txID string) (PendingWithdrawal, bool, error) {
	var w PendingWithdrawal
	err := s.db.Where("tx_id = ?", txID).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return PendingWithdrawal{}, false, nil
	}
	if err != nil {
		return PendingWithdrawal{}, false, err
	}
	return w, true, nil
}
