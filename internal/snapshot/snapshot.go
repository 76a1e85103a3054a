// Package snapshot builds §3's MarketSnapshot: a coherent, ephemeral
// read fusing the spot, IV, and pool sources. Grounded on
// ksred-klear-api/internal/clearing's Service pattern of a thin struct
// holding references to its collaborators and a single method that
// fans out to them.
package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/iv"
	"github.com/ironvault/btc-options-engine/internal/pool"
	"github.com/ironvault/btc-options-engine/internal/spot"
)

// MarketSnapshot is §3's transient, per-request read. It is not
// persisted; every field except LookupSigma is a value captured at
// Build time.
type MarketSnapshot struct {
	Spot         float64
	PoolBTC      float64
	RiskFreeRate float64
	Now          int64

	// LookupSigma resolves sigma for (strike, expiresAt) against the IV
	// source live at read time; the surface itself is not copied into
	// the snapshot since it may be large and is already read-mostly.
	LookupSigma func(strike float64, expiresAt int64) (float64, error)
}

// Fuser holds references to the three leaf sources and produces
// MarketSnapshots on demand.
type Fuser struct {
	spot         *spot.Source
	iv           *iv.Source
	pool         *pool.Source
	riskFreeRate float64
	logger       zerolog.Logger
}

func NewFuser(spotSrc *spot.Source, ivSrc *iv.Source, poolSrc *pool.Source, riskFreeRate float64, logger zerolog.Logger) *Fuser {
	return &Fuser{
		spot:         spotSrc,
		iv:           ivSrc,
		pool:         poolSrc,
		riskFreeRate: riskFreeRate,
		logger:       logger.With().Str("component", "snapshot").Logger(),
	}
}

// Build fuses the three sources into one MarketSnapshot. Spot and pool
// failures are hard errors per §4.1/§4.3: the grid cannot be sized or
// priced without them.
func (f *Fuser) Build(ctx context.Context) (*MarketSnapshot, error) {
	spotPrice, err := f.spot.Current(ctx)
	if err != nil {
		return nil, err
	}

	poolBTC, err := f.pool.BalanceBTC(ctx)
	if err != nil {
		return nil, err
	}

	return &MarketSnapshot{
		Spot:         spotPrice,
		PoolBTC:      poolBTC,
		RiskFreeRate: f.riskFreeRate,
		Now:          time.Now().Unix(),
		LookupSigma:  f.iv.Lookup,
	}, nil
}
