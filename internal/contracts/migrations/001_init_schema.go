// Package migrations mirrors ksred-klear-api/internal/database/migrations:
// one function per schema change, auto-migrating the gorm models and
// then laying down any indexes gorm tags don't already express as raw
// SQL for full control.
package migrations

import (
	"gorm.io/gorm"

	"github.com/ironvault/btc-options-engine/internal/contracts"
)

// InitSchema creates the contracts and premium_history tables and the
// indexes §4.7 calls out by name: contracts(created_at),
// contracts(expires_at), premium_history(product_key, timestamp).
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&contracts.Contract{}, &contracts.PremiumHistoryEntry{}); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_contracts_created_at ON contracts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_expires_at ON contracts(expires_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_premium_history_product_key_timestamp ON premium_history(product_key, timestamp)`,
	}
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}
