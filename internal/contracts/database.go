package contracts

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ironvault/btc-options-engine/internal/apperror"
)

// Store is the §4.7 Contract Store: a thin wrapper over *gorm.DB,
// mirroring ksred-klear-api/internal/clearing.Database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InsertContract atomically appends a contract and returns its assigned
// id. gorm.Create within SQLite's default transaction mode commits
// before returning, satisfying §4.7's durability requirement.
func (s *Store) InsertContract(c *Contract) (int64, error) {
	if err := s.db.Create(c).Error; err != nil {
		return 0, apperror.StorageError("failed to insert contract", err)
	}
	return c.ID, nil
}

// ActiveContracts returns contracts with expires_at > now, i.e. §3's
// Portfolio view.
func (s *Store) ActiveContracts(now int64) ([]Contract, error) {
	var out []Contract
	if err := s.db.Where("expires_at > ?", now).Find(&out).Error; err != nil {
		return nil, apperror.StorageError("failed to load active contracts", err)
	}
	return out, nil
}

// ContractsCreatedSince returns contracts whose created_at is at or
// after t, used for volume windows (e.g. the 24h topBanner window).
func (s *Store) ContractsCreatedSince(t int64) ([]Contract, error) {
	var out []Contract
	if err := s.db.Where("created_at >= ?", t).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, apperror.StorageError("failed to load contracts created since", err)
	}
	return out, nil
}

// AllContracts returns every persisted contract, in id order, for
// GET /contracts.
func (s *Store) AllContracts() ([]Contract, error) {
	var out []Contract
	if err := s.db.Order("id ASC").Find(&out).Error; err != nil {
		return nil, apperror.StorageError("failed to load contracts", err)
	}
	return out, nil
}

// AppendPremium inserts a premium-history entry, ignoring conflicts on
// the (product_key, timestamp) uniqueness key per §4.7 — a repeated
// observation at the same timestamp is a no-op, not an error.
func (s *Store) AppendPremium(entry *PremiumHistoryEntry) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_key"}, {Name: "timestamp"}},
		DoNothing: true,
	}).Create(entry).Error
	if err != nil {
		return apperror.StorageError("failed to append premium history entry", err)
	}
	return nil
}

// PremiumAtOrBefore returns the most recent premium observation for
// product_key whose timestamp is <= t, used for 24h price-change
// analytics. The bool is false if no such observation exists.
func (s *Store) PremiumAtOrBefore(productKey string, t int64) (float64, bool, error) {
	var entry PremiumHistoryEntry
	err := s.db.Where("product_key = ? AND timestamp <= ?", productKey, t).
		Order("timestamp DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, false, nil
		}
		return 0, false, apperror.StorageError(fmt.Sprintf("failed to load premium history for %s", productKey), err)
	}
	return entry.Premium(), true, nil
}

// LatestPremium returns the most recent premium observation for a
// product regardless of timestamp, used by analytics that need "now".
func (s *Store) LatestPremium(productKey string) (float64, bool, error) {
	var entry PremiumHistoryEntry
	err := s.db.Where("product_key = ?", productKey).
		Order("timestamp DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, false, nil
		}
		return 0, false, apperror.StorageError(fmt.Sprintf("failed to load latest premium for %s", productKey), err)
	}
	return entry.Premium(), true, nil
}
