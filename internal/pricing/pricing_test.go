package pricing

import (
	"math"
	"testing"

	"github.com/ironvault/btc-options-engine/internal/domain"
)

func TestPriceRejectsInvalidInputs(t *testing.T) {
	cases := []struct {
		name              string
		spot, strike, t, r, sigma float64
	}{
		{"zero sigma", 100, 100, 1, 0.05, 0},
		{"negative sigma", 100, 100, 1, 0.05, -0.1},
		{"zero t", 100, 100, 0, 0.05, 0.5},
		{"negative spot", -1, 100, 1, 0.05, 0.5},
		{"zero strike", 100, 0, 1, 0.05, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Price(domain.Call, tc.spot, tc.strike, tc.t, tc.r, tc.sigma); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestPriceRejectsUnknownSide(t *testing.T) {
	if _, err := Price(domain.Side("Straddle"), 100, 100, 1, 0.05, 0.5); err == nil {
		t.Fatal("expected error for unknown side")
	}
}

// TestPutCallParity checks C - P = S - K*e^(-rT), the standard no-arbitrage
// identity.
func TestPutCallParity(t *testing.T) {
	spot, strike, term, r, sigma := 50000.0, 48000.0, 0.5, 0.03, 0.6

	call, err := Price(domain.Call, spot, strike, term, r, sigma)
	if err != nil {
		t.Fatalf("call pricing failed: %v", err)
	}
	put, err := Price(domain.Put, spot, strike, term, r, sigma)
	if err != nil {
		t.Fatalf("put pricing failed: %v", err)
	}

	lhs := call.PremiumUSD - put.PremiumUSD
	rhs := spot - strike*math.Exp(-r*term)
	if math.Abs(lhs-rhs) > 1e-6 {
		t.Fatalf("put-call parity violated: lhs=%.10f rhs=%.10f", lhs, rhs)
	}
}

func TestDeltaBounds(t *testing.T) {
	call, err := Price(domain.Call, 50000, 52000, 0.25, 0.04, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if call.Delta < 0 || call.Delta > 1 {
		t.Fatalf("call delta out of [0,1]: %v", call.Delta)
	}

	put, err := Price(domain.Put, 50000, 48000, 0.25, 0.04, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if put.Delta < -1 || put.Delta > 0 {
		t.Fatalf("put delta out of [-1,0]: %v", put.Delta)
	}
}

func TestNormalCDFMidpoint(t *testing.T) {
	if math.Abs(NormalCDF(0)-0.5) > 1e-12 {
		t.Fatalf("Phi(0) should be 0.5, got %v", NormalCDF(0))
	}
}

func TestD2MatchesInternalComputation(t *testing.T) {
	spot, strike, r, sigma, term := 50000.0, 50000.0, 0.05, 0.5, 1.0
	_, want := d1d2(spot, strike, r, sigma, term)
	got := D2(spot, strike, r, sigma, term)
	if got != want {
		t.Fatalf("D2() = %v, want %v", got, want)
	}
}

// TestDeepInTheMoneyCallApproachesIntrinsic checks the known boundary
// behavior as sigma shrinks towards zero: a deep ITM call's premium
// approaches its discounted intrinsic value.
func TestDeepInTheMoneyCallApproachesIntrinsic(t *testing.T) {
	spot, strike, term, r := 80000.0, 40000.0, 1.0, 0.05
	result, err := Price(domain.Call, spot, strike, term, r, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	intrinsic := spot - strike*math.Exp(-r*term)
	if math.Abs(result.PremiumUSD-intrinsic) > 1.0 {
		t.Fatalf("premium %.4f should be close to intrinsic %.4f at low vol", result.PremiumUSD, intrinsic)
	}
}
