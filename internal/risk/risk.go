// Package risk implements §4.6: the margin model, available collateral,
// max-quantity derivation, and admission check. Grounded on
// internal/clearing/clearing.go's margin-calculation shape (a Manager
// type holding configured rates, structured logging around every
// decision) from ksred-klear-api, with the margin formula itself taken
// from the spec rather than original_source/risk_manager.rs's cruder
// banded model — the spec explicitly supersedes it with a
// probability-of-ITM times loss-given-ITM model.
package risk

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/domain"
	"github.com/ironvault/btc-options-engine/internal/pricing"
)

const maxQuantityCap = 1000.0

// Contract is the minimal shape the risk manager needs from a stored or
// candidate contract; callers convert internal/contracts.Contract rows
// into it.
type Contract struct {
	Side      domain.Side
	Strike    float64
	Quantity  float64
	ExpiresAt int64
}

// Manager holds the configured risk parameters. One per process.
type Manager struct {
	CollateralRate float64
	RiskMargin     float64
	RiskFreeRate   float64

	logger zerolog.Logger
}

func NewManager(collateralRate, riskMargin, riskFreeRate float64, logger zerolog.Logger) *Manager {
	return &Manager{
		CollateralRate: collateralRate,
		RiskMargin:     riskMargin,
		RiskFreeRate:   riskFreeRate,
		logger:         logger.With().Str("component", "risk").Logger(),
	}
}

// tYears converts an expiry instant into a 365-day-convention T, clamped
// to a small positive floor so callers never divide by zero for
// already-expired candidates (the underwriting gate rejects those
// earlier, in validation).
func tYears(expiresAt, now int64) float64 {
	seconds := float64(expiresAt - now)
	if seconds <= 0 {
		seconds = 1
	}
	return seconds / (365 * 24 * 3600)
}

// PositionMargin is §4.6's position_margin: the USD collateral a single
// position of the given quantity ties up.
func (m *Manager) PositionMargin(side domain.Side, strike, quantity, t, sigma, spot float64) float64 {
	d2 := pricing.D2(spot, strike, m.RiskFreeRate, sigma, t)

	var pItm, lossGivenItm float64
	switch side {
	case domain.Call:
		pItm = pricing.NormalCDF(d2)
		lossGivenItm = math.Max(spot*1.0, spot*0.1)
	case domain.Put:
		pItm = pricing.NormalCDF(-d2)
		lossGivenItm = math.Max(strike-spot, strike*0.1)
	}

	return quantity * pItm * lossGivenItm * m.RiskMargin
}

// PortfolioMargin is §4.6's portfolio_margin: the sum of position
// margins over non-expired contracts, each priced at its own remaining T
// and the current spot/sigma inputs supplied per contract.
//
// sigmaFor resolves sigma for a contract's (strike, expires_at); it is
// supplied by the caller because sigma resolution requires the IV
// surface, which this package does not depend on directly. A lookup
// failure (IV unavailable for that cell) contributes zero margin for
// that position rather than aborting the whole computation.
func (m *Manager) PortfolioMargin(portfolio []Contract, now int64, spot float64, sigmaFor func(strike float64, expiresAt int64) (float64, error)) float64 {
	var total float64
	for _, c := range portfolio {
		if c.ExpiresAt <= now {
			continue
		}
		t := tYears(c.ExpiresAt, now)
		sigma, err := sigmaFor(c.Strike, c.ExpiresAt)
		if err != nil || sigma <= 0 {
			continue
		}
		total += m.PositionMargin(c.Side, c.Strike, c.Quantity, t, sigma, spot)
	}
	return total
}

// AvailableCollateral is §4.6's available_collateral.
func (m *Manager) AvailableCollateral(poolBTC, spot float64, portfolio []Contract, now int64, sigmaFor func(strike float64, expiresAt int64) (float64, error)) float64 {
	capacity := m.CollateralRate * poolBTC * spot
	used := m.PortfolioMargin(portfolio, now, spot, sigmaFor)
	available := capacity - used
	if available < 0 {
		return 0
	}
	return available
}

func floor8dp(v float64) float64 {
	const scale = 1e8
	return math.Floor(v*scale) / scale
}

// MaxQuantity is §4.6's max_quantity derivation for a candidate
// (side, strike, T) against the current portfolio and pool.
func (m *Manager) MaxQuantity(side domain.Side, strike, t, sigma, spot float64, portfolio []Contract, now int64, poolBTC float64, sigmaFor func(strike float64, expiresAt int64) (float64, error)) float64 {
	m1 := m.PositionMargin(side, strike, 1, t, sigma, spot)
	if m1 <= 0 {
		return 0
	}

	available := m.AvailableCollateral(poolBTC, spot, portfolio, now, sigmaFor)
	q := floor8dp(available / m1)
	if q < 0 {
		q = 0
	}
	if q > maxQuantityCap {
		q = maxQuantityCap
	}
	return q
}

// Admits is §4.6's admission check: recomputes portfolio margin
// including the candidate and rejects if the total exceeds capacity.
func (m *Manager) Admits(portfolio []Contract, candidate Contract, t, sigma, spot float64, now int64, poolBTC float64, sigmaFor func(strike float64, expiresAt int64) (float64, error)) error {
	capacity := m.CollateralRate * poolBTC * spot
	existing := m.PortfolioMargin(portfolio, now, spot, sigmaFor)
	candidateMargin := m.PositionMargin(candidate.Side, candidate.Strike, candidate.Quantity, t, sigma, spot)
	total := existing + candidateMargin

	if total > capacity {
		m.logger.Warn().
			Float64("required", total).
			Float64("available", capacity).
			Msg("candidate rejected for insufficient collateral")
		return apperror.InsufficientCollateral(total, capacity)
	}
	return nil
}
