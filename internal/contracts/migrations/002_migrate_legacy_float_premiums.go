package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateLegacyFloatPremiums mirrors original_source/db_migration.rs's
// migrate_to_string_storage: an idempotent, transactional repair for
// databases created before premiums were stored as decimal strings. It
// checks column affinity before doing anything, so running it against a
// fresh schema (already string-typed) is a no-op.
func MigrateLegacyFloatPremiums(db *gorm.DB) error {
	isLegacy, err := hasRealAffinity(db, "contracts", "premium")
	if err != nil {
		return fmt.Errorf("failed to inspect contracts.premium affinity: %w", err)
	}
	if !isLegacy {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`ALTER TABLE contracts RENAME COLUMN premium TO premium_legacy_real`).Error; err != nil {
			return err
		}
		if err := tx.Exec(`ALTER TABLE contracts ADD COLUMN premium TEXT NOT NULL DEFAULT '0.00000000'`).Error; err != nil {
			return err
		}
		if err := tx.Exec(`UPDATE contracts SET premium = printf('%.8f', premium_legacy_real)`).Error; err != nil {
			return err
		}
		return tx.Exec(`ALTER TABLE contracts DROP COLUMN premium_legacy_real`).Error
	})
}

func hasRealAffinity(db *gorm.DB, table, column string) (bool, error) {
	type pragmaColumn struct {
		Name string
		Type string
	}
	var cols []pragmaColumn
	if err := db.Raw(fmt.Sprintf("PRAGMA table_info(%s)", table)).Scan(&cols).Error; err != nil {
		return false, err
	}
	for _, c := range cols {
		if c.Name == column {
			return c.Type == "REAL", nil
		}
	}
	return false, nil
}
