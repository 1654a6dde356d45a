package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AddressStore provides atomic access to addresses and their per-asset
// balances. Balance mutation is always a single SQL increment; no caller
// performs a read-then-write on these fields.
type AddressStore struct {
	db *gorm.DB
}

func NewAddressStore(db *gorm.DB) *AddressStore { return &AddressStore{db: db} }

// Get returns the address row, or gorm.ErrRecordNotFound if absent.
func (s *AddressStore) Get(addressID string) (Address, error) {
	var a Address
	err := s.db.Where("address_id = ?", addressID).First(&a).Error
	return a, err
}

// Exists reports whether addressID is known to the ledger.
func (s *AddressStore) Exists(addressID string) (bool, error) {
	_, err := s.Get(addressID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert creates a new address row with empty balances.
func (s *AddressStore) Insert(a Address) error {
	return s.db.Create(&a).Error
}

// BackfillIdentity sets identity/comment/wallet_id only if currently empty,
// mirroring the address synchronizer's "missing identity" backfill rule.
func (s *AddressStore) BackfillIdentity(addressID, identity, comment, walletID string) error {
	return s.db.Model(&Address{}).
		Where("address_id = ? AND (identity IS NULL OR identity = '')", addressID).
		Updates(map[string]any{"identity": identity, "comment": comment, "wallet_id": walletID}).Error
}

// MarkExtended clears the expired flag after edit_address(expiration=never).
func (s *AddressStore) MarkExtended(addressID string) error {
	return s.db.Model(&Address{}).Where("address_id = ?", addressID).Update("expired", false).Error
}

// ListExpired returns addresses currently flagged expired.
func (s *AddressStore) ListExpired() ([]Address, error) {
	var out []Address
	err := s.db.Where("expired = ?", true).Find(&out).Error
	return out, err
}

// Balance returns the available/locked pair for (addressID, assetID),
// treating a missing row as (0, 0).
func (s *AddressStore) Balance(addressID string, assetID int64) (available, locked int64, err error) {
	var b AddressBalance
	err = s.db.Where("address_id = ? AND asset_id = ?", addressID, assetID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return b.Available, b.Locked, nil
}

// AddDelta atomically adds (availableDelta, lockedDelta) to the balance
// row for (addressID, assetID), creating the row first if absent. This is
// the sole primitive through which the projector and withdrawal queue
// mutate balances; it never reads a prior value into application memory.
func (s *AddressStore) AddDelta(addressID string, assetID int64, availableDelta, lockedDelta int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`UPDATE address_balances SET available = available + ?, locked = locked + ? WHERE address_id = ? AND asset_id = ?`,
			availableDelta, lockedDelta, addressID, assetID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		row := AddressBalance{
			AddressID: addressID,
			AssetID:   assetID,
			Available: availableDelta,
			Locked:    lockedDelta,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create balance row for %s/%d: %w", addressID, assetID, err)
		}
		return nil
	})
}

// SumBalances aggregates available and locked across all addresses for a
// given asset, used by the balance auditor to compare against node totals.
func (s *AddressStore) SumBalances(assetID int64) (available, locked int64, err error) {
	var row struct {
		Available int64
		Locked    int64
	}
	err = s.db.Model(&AddressBalance{}).
		Where("asset_id = ?", assetID).
		Select("COALESCE(SUM(available),0) AS available, COALESCE(SUM(locked),0) AS locked").
		Scan(&row).Error
	return row.Available, row.Locked, err
}

// DistinctAssetIDs returns every asset id that has at least one balance
// row anywhere in the ledger (zero rows included), used by the balance
// auditor to catch
// ledger-only phantom balances for assets the node's wallet_status omits.
func (s *AddressStore) DistinctAssetIDs() ([]int64, error) {
	var out []int64
	err := s.db.Model(&AddressBalance{}).Distinct("asset_id").Pluck("asset_id", &out).Error
	return out, err
}

// BalancesByAsset returns a map of asset_id -> {available,locked} for one
// address, mirroring the Address.balance.available/locked maps in §3.
func (s *AddressStore) BalancesByAsset(addressID string) (map[int64]AddressBalance, error) {
	var rows []AddressBalance
	if err := s.db.Where("address_id = ?", addressID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]AddressBalance, len(rows))
	for _, r := range rows {
		out[r.AssetID] = r
	}
	return out, nil
}
