package risk

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/domain"
	"github.com/ironvault/btc-options-engine/internal/pricing"
)

func flatSigma(sigma float64) func(strike float64, expiresAt int64) (float64, error) {
	return func(strike float64, expiresAt int64) (float64, error) {
		return sigma, nil
	}
}

func testManager() *Manager {
	return NewManager(0.5, 1.2, 0.05, zerolog.Nop())
}

func TestPositionMarginCallUsesSpotBasedLoss(t *testing.T) {
	m := testManager()
	spot := 50000.0
	margin := m.PositionMargin(domain.Call, 52000, 1, 0.25, 0.6, spot)
	if margin <= 0 {
		t.Fatalf("expected positive margin, got %v", margin)
	}
	// Call loss given ITM is max(S, 0.1*S) = S.
	want := pricing.NormalCDF(pricing.D2(spot, 52000, 0.05, 0.6, 0.25)) * spot * 1.2
	if math.Abs(margin-want) > 1e-6 {
		t.Fatalf("expected spot-based margin %v, got %v", want, margin)
	}
}

func TestPositionMarginPutUsesStrikeBasedLoss(t *testing.T) {
	m := testManager()
	spot := 50000.0
	margin := m.PositionMargin(domain.Put, 48000, 1, 0.25, 0.6, spot)
	if margin <= 0 {
		t.Fatalf("expected positive margin, got %v", margin)
	}
	// Put loss given ITM is max(K-S, 0.1*K); with K < S that is 0.1*K = 4800.
	want := pricing.NormalCDF(-pricing.D2(spot, 48000, 0.05, 0.6, 0.25)) * 4800 * 1.2
	if math.Abs(margin-want) > 1e-6 {
		t.Fatalf("expected strike-based margin %v, got %v", want, margin)
	}
}

func TestAvailableCollateralClampedAtZero(t *testing.T) {
	m := testManager()
	portfolio := []Contract{
		{Side: domain.Call, Strike: 50000, Quantity: 10000, ExpiresAt: 2000000000},
	}
	got := m.AvailableCollateral(0.01, 50000, portfolio, 1000000000, flatSigma(0.8))
	if got != 0 {
		t.Fatalf("expected clamped collateral of 0, got %v", got)
	}
}

func TestAvailableCollateralIgnoresExpiredContracts(t *testing.T) {
	m := testManager()
	now := int64(1000000000)
	portfolio := []Contract{
		{Side: domain.Call, Strike: 50000, Quantity: 1000, ExpiresAt: now - 1},
	}
	withExpired := m.AvailableCollateral(10, 50000, portfolio, now, flatSigma(0.6))
	withoutExpired := m.AvailableCollateral(10, 50000, nil, now, flatSigma(0.6))
	if withExpired != withoutExpired {
		t.Fatalf("expired contract should not consume collateral: with=%v without=%v", withExpired, withoutExpired)
	}
}

func TestAvailableCollateralTreatsLookupFailureAsZeroMargin(t *testing.T) {
	m := testManager()
	now := int64(1000000000)
	portfolio := []Contract{
		{Side: domain.Call, Strike: 50000, Quantity: 1000, ExpiresAt: now + 86400},
	}
	failing := func(strike float64, expiresAt int64) (float64, error) {
		return 0, apperror.IvUnavailable("no iv for this cell")
	}
	got := m.AvailableCollateral(10, 50000, portfolio, now, failing)
	want := m.AvailableCollateral(10, 50000, nil, now, failing)
	if got != want {
		t.Fatalf("lookup failure should contribute zero margin: got=%v want=%v", got, want)
	}
}

// TestMaxQuantityDecreasesMonotonicallyWithPortfolio verifies the
// intuitive property that adding existing positions never increases the
// room left for a new one.
func TestMaxQuantityDecreasesMonotonicallyWithPortfolio(t *testing.T) {
	m := testManager()
	now := int64(1000000000)
	spot := 50000.0
	t0 := 0.25
	sigma := 0.6

	empty := m.MaxQuantity(domain.Call, 52000, t0, sigma, spot, nil, now, 10, flatSigma(sigma))

	loaded := []Contract{
		{Side: domain.Call, Strike: 51000, Quantity: 50, ExpiresAt: now + 86400},
	}
	withLoad := m.MaxQuantity(domain.Call, 52000, t0, sigma, spot, loaded, now, 10, flatSigma(sigma))

	if withLoad > empty {
		t.Fatalf("max quantity with an existing portfolio (%v) should not exceed the empty-portfolio max (%v)", withLoad, empty)
	}
}

func TestMaxQuantityClampedToHardCap(t *testing.T) {
	m := testManager()
	now := int64(1000000000)
	got := m.MaxQuantity(domain.Call, 10000, 0.01, 0.01, 50000, nil, now, 1_000_000, flatSigma(0.01))
	if got > maxQuantityCap {
		t.Fatalf("max quantity %v exceeds hard cap %v", got, maxQuantityCap)
	}
}

func TestAdmitsRejectsWhenCandidateExceedsCapacity(t *testing.T) {
	m := testManager()
	now := int64(1000000000)
	candidate := Contract{Side: domain.Call, Strike: 50000, Quantity: 100000, ExpiresAt: now + 86400}

	err := m.Admits(nil, candidate, 0.25, 0.6, 50000, now, 0.001, flatSigma(0.6))
	if err == nil {
		t.Fatal("expected rejection for an oversized candidate against a tiny pool")
	}
	ae, ok := apperror.As(err)
	if !ok || ae.Kind != apperror.KindInsufficientCollateral {
		t.Fatalf("expected KindInsufficientCollateral, got %v", err)
	}
}

func TestAdmitsAcceptsSmallCandidateAgainstAmplePool(t *testing.T) {
	m := testManager()
	now := int64(1000000000)
	candidate := Contract{Side: domain.Call, Strike: 50000, Quantity: 0.01, ExpiresAt: now + 86400}

	if err := m.Admits(nil, candidate, 0.25, 0.6, 50000, now, 1000, flatSigma(0.6)); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}
