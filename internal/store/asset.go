package store

import (
	"errors"

	"gorm.io/gorm"
)

// AssetStore manages the asset registry.
type AssetStore struct {
	db *gorm.DB
}

func NewAssetStore(db *gorm.DB) *AssetStore { return &AssetStore{db: db} }

// EnsureNative inserts asset 0 with fixed metadata if it doesn't already
// exist.
func (s *AssetStore) EnsureNative() error {
	var a Asset
	err := s.db.Where("asset_id = ?", NativeAssetID).First(&a).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return s.db.Create(&Asset{
		AssetID:    NativeAssetID,
		Decimals:   8,
		IsVerified: true,
	}).Error
}

// Upsert creates or overwrites an asset's registry row.
func (s *AssetStore) Upsert(a Asset) error {
	return s.db.Save(&a).Error
}

// Get returns one asset by id.
func (s *AssetStore) Get(assetID int64) (Asset, error) {
	var a Asset
	err := s.db.Where("asset_id = ?", assetID).First(&a).Error
	return a, err
}

// All returns every known asset.
func (s *AssetStore) All() ([]Asset, error) {
	var out []Asset
	err := s.db.Find(&out).Error
	return out, err
}

// SetRates updates an asset's native/USD rate fields without touching its
// other metadata, used by the DEX liquidity-pool sync step.
func (s *AssetStore) SetRates(assetID int64, rateBeam, rateUSD float64) error {
	return s.db.Model(&Asset{}).Where("asset_id = ?", assetID).
		Updates(map[string]any{"rate_beam": rateBeam, "rate_usd": rateUSD}).Error
}
