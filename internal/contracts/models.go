// Package contracts is the durable store of §4.7: accepted contracts
// and the append-only premium history, plus the analytics queries §6
// exposes through /topBanner, /marketHighlights, /topGainers, and
// /topVolume. Grounded on ksred-klear-api/internal/clearing's
// Database wrapper over *gorm.DB, and on original_source/db.rs's schema
// (string-decimal storage for quantity/premium, strike kept in cents)
// and original_source/db_migration.rs's idempotent migration style.
package contracts

import (
	"time"

	"github.com/ironvault/btc-options-engine/internal/domain"
)

// Contract is the gorm model for §3's Contract. Quantity and premium
// are stored as decimal strings (not floats) to avoid the accumulation
// of float drift original_source/db_migration.rs was written to fix;
// strike is stored in cents, an integer, to key deterministically.
type Contract struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Side        string `gorm:"not null;index"`
	StrikeCents int64  `gorm:"not null"`
	QuantityStr string `gorm:"column:quantity;not null"`
	ExpiresAt   int64  `gorm:"not null;index"`
	PremiumStr  string `gorm:"column:premium;not null"`
	CreatedAt   int64  `gorm:"not null;index"`
}

func (Contract) TableName() string { return "contracts" }

// StrikeUSD returns the strike in USD.
func (c Contract) StrikeUSD() float64 { return domain.CentsToUsd(c.StrikeCents) }

// Quantity parses the stored decimal string into a float64 for
// arithmetic use. Errors are not expected: the store never writes a
// malformed string.
func (c Contract) Quantity() float64 {
	v, _ := domain.ParseBTC(c.QuantityStr)
	return v
}

func (c Contract) Premium() float64 {
	v, _ := domain.ParseBTC(c.PremiumStr)
	return v
}

func (c Contract) SideValue() domain.Side { return domain.Side(c.Side) }

// NewContract builds a Contract row from domain-typed inputs, performing
// the USD-to-cents and float-to-decimal-string conversions at the
// boundary, per original_source/utils.rs's usd_to_cents/format_btc.
func NewContract(side domain.Side, strikeUSD, quantity float64, expiresAt int64, premium float64, createdAt int64) Contract {
	return Contract{
		Side:        string(side),
		StrikeCents: domain.UsdToCents(strikeUSD),
		QuantityStr: domain.FormatBTC(quantity),
		ExpiresAt:   expiresAt,
		PremiumStr:  domain.FormatBTC(premium),
		CreatedAt:   createdAt,
	}
}

// PremiumHistoryEntry is the gorm model for §3's append-only
// PremiumHistoryEntry.
type PremiumHistoryEntry struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ProductKey  string `gorm:"not null;uniqueIndex:idx_product_key_timestamp"`
	Side        string `gorm:"not null"`
	StrikeCents int64  `gorm:"not null"`
	ExpiresAt   int64  `gorm:"not null"`
	PremiumStr  string `gorm:"column:premium_str;not null"`
	Timestamp   int64  `gorm:"not null;uniqueIndex:idx_product_key_timestamp"`
}

func (PremiumHistoryEntry) TableName() string { return "premium_history" }

func (p PremiumHistoryEntry) Premium() float64 {
	v, _ := domain.ParseBTC(p.PremiumStr)
	return v
}

func NewPremiumHistoryEntry(side domain.Side, strikeUSD float64, expiresAt int64, premium float64, timestamp int64) PremiumHistoryEntry {
	strikeCents := domain.UsdToCents(strikeUSD)
	return PremiumHistoryEntry{
		ProductKey:  domain.ProductKey(side, strikeCents, expiresAt),
		Side:        string(side),
		StrikeCents: strikeCents,
		ExpiresAt:   expiresAt,
		PremiumStr:  domain.FormatBTC(premium),
		Timestamp:   timestamp,
	}
}

// Now returns the current instant in Unix seconds. It is a plain
// function, not a replaceable variable; tests pass fixed `now` values
// to the Store methods directly.
func Now() int64 { return time.Now().Unix() }
