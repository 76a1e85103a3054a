// Package pricing is the Black-Scholes-Merton kernel of §4.4: pure
// functions, no I/O, no shared state. Grounded on
// original_source/risk_manager.rs's calculate_d1/calculate_d2/normal_cdf,
// but using math.Erf for the normal CDF rather than the Rust file's
// polynomial approximation — the spec explicitly sanctions
// `0.5*(1+erf(x/sqrt(2)))` and math.Erf is exact where the Rust
// approximation is not.
package pricing

import (
	"math"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/domain"
)

// Result is the kernel's output for one (side, S, K, T, r, sigma) input.
type Result struct {
	PremiumUSD float64
	Delta      float64
}

// Price computes the premium (in USD) and delta for a European option
// under Black-Scholes without dividends. T is in years (365-day
// convention). Returns apperror.InvalidInput if sigma <= 0 or T <= 0.
func Price(side domain.Side, spot, strike, t, r, sigma float64) (Result, error) {
	if sigma <= 0 {
		return Result{}, apperror.InvalidInput("implied volatility must be positive")
	}
	if t <= 0 {
		return Result{}, apperror.InvalidInput("time to expiry must be positive")
	}
	if spot <= 0 || strike <= 0 {
		return Result{}, apperror.InvalidInput("spot and strike must be positive")
	}

	d1, d2 := d1d2(spot, strike, r, sigma, t)
	discount := math.Exp(-r * t)

	switch side {
	case domain.Call:
		premium := spot*normalCDF(d1) - strike*discount*normalCDF(d2)
		return Result{PremiumUSD: premium, Delta: normalCDF(d1)}, nil
	case domain.Put:
		premium := strike*discount*normalCDF(-d2) - spot*normalCDF(-d1)
		return Result{PremiumUSD: premium, Delta: normalCDF(d1) - 1}, nil
	default:
		return Result{}, apperror.InvalidInput("side must be Call or Put")
	}
}

// D2 exposes d2 for the risk manager, which needs Φ(d2)/Φ(-d2) as the
// risk-neutral probability of finishing in-the-money (§4.6).
func D2(spot, strike, r, sigma, t float64) float64 {
	_, d2 := d1d2(spot, strike, r, sigma, t)
	return d2
}

func d1d2(spot, strike, r, sigma, t float64) (d1, d2 float64) {
	sqrtT := math.Sqrt(t)
	d1 = (math.Log(spot/strike) + (r+sigma*sigma/2)*t) / (sigma * sqrtT)
	d2 = d1 - sigma*sqrtT
	return d1, d2
}

// NormalCDF is exported for callers (risk manager, tests) that need Φ
// directly.
func NormalCDF(x float64) float64 {
	return normalCDF(x)
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
