// Package grid builds the 110-cell quotable option grid of §4.5.
// Grounded on internal/clearing's pattern of a pure function taking a
// snapshot-like input and producing a deterministically ordered slice
// of transient view structs, adapted from ksred-klear-api's netting
// calculation shape.
package grid

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/domain"
	"github.com/ironvault/btc-options-engine/internal/pricing"
	"github.com/ironvault/btc-options-engine/internal/risk"
)

const secondsPerYear = 31_536_000

// Cell is §3's transient OptionGridCell.
type Cell struct {
	Side        domain.Side
	Strike      float64
	ExpireLabel domain.ExpiryLabel
	Premium     float64
	IV          float64
	Delta       float64
	MaxQuantity float64
}

// Inputs bundles everything the generator needs from the fused market
// snapshot and the stateful collaborators (IV surface, risk manager,
// portfolio). The IV surface is reached only through LookupSigma, so
// this package does not depend on the iv package.
type Inputs struct {
	Spot         float64
	Now          int64
	PoolBTC      float64
	RiskManager  *risk.Manager
	Portfolio    []risk.Contract
	LookupSigma  func(strike float64, expiresAt int64) (float64, error)
}

// Generate produces the 110-cell grid in the deterministic order
// required by §4.5: strikes ascending, then expiries in the listed
// order, then Call before Put.
func Generate(in Inputs, logger zerolog.Logger) []Cell {
	strikes := strikesAround(in.Spot)

	cells := make([]Cell, 0, len(strikes)*len(domain.ExpirySeconds)*2)
	for _, strike := range strikes {
		for _, exp := range domain.ExpirySeconds {
			for _, side := range []domain.Side{domain.Call, domain.Put} {
				cells = append(cells, buildCell(in, strike, exp.Label, exp.Seconds, side, logger))
			}
		}
	}
	return cells
}

func strikesAround(spot float64) []float64 {
	base := math.Round(spot/5000) * 5000
	strikes := make([]float64, 0, 11)
	for i := -5; i <= 5; i++ {
		strikes = append(strikes, base+float64(i)*5000)
	}
	return strikes
}

func buildCell(in Inputs, strike float64, label domain.ExpiryLabel, expSeconds int64, side domain.Side, logger zerolog.Logger) Cell {
	expiresAt := in.Now + expSeconds
	t := float64(expSeconds) / secondsPerYear

	sigma, err := in.LookupSigma(strike, expiresAt)
	if err != nil {
		if _, ok := apperror.As(err); ok {
			logger.Warn().
				Str("side", string(side)).
				Float64("strike", strike).
				Str("expire", string(label)).
				Msg("iv lookup failed for grid cell, emitting zeroed cell")
		}
		return Cell{Side: side, Strike: strike, ExpireLabel: label, Premium: 0, IV: 0, Delta: 0, MaxQuantity: 0}
	}

	result, err := pricing.Price(side, in.Spot, strike, t, in.RiskManager.RiskFreeRate, sigma)
	if err != nil {
		return Cell{Side: side, Strike: strike, ExpireLabel: label, Premium: 0, IV: sigma, Delta: 0, MaxQuantity: 0}
	}

	premiumBTC := result.PremiumUSD / in.Spot

	maxQty := in.RiskManager.MaxQuantity(side, strike, t, sigma, in.Spot, in.Portfolio, in.Now, in.PoolBTC, in.LookupSigma)

	return Cell{
		Side:        side,
		Strike:      strike,
		ExpireLabel: label,
		Premium:     premiumBTC,
		IV:          sigma,
		Delta:       result.Delta,
		MaxQuantity: maxQty,
	}
}
