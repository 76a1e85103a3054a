// Package underwriting implements §4.8's Gate: the single serialized
// admit-then-persist critical section. Grounded on
// ksred-klear-api/internal/trading.Service's Create-then-persist shape,
// generalized from a per-idempotency-key lookup into the process-wide
// sync.Mutex §5 calls for — the store's own transactions do not by
// themselves stop two concurrent admits from jointly overspending the
// pool, so the gate needs an extra lock the store can't provide.
package underwriting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/contracts"
	"github.com/ironvault/btc-options-engine/internal/domain"
	"github.com/ironvault/btc-options-engine/internal/risk"
	"github.com/ironvault/btc-options-engine/internal/snapshot"
)

const maxQuantityHardCap = 1000.0

// Candidate is the shape submitted to the gate, mirroring §6's
// POST /contract body.
type Candidate struct {
	Side        domain.Side
	StrikeUSD   float64
	Quantity    float64
	ExpiresAt   int64
	PremiumBTC  float64
}

// Gate serializes admission and persistence. One Gate per process; the
// mutex is contended only on writes, per §5 — quoting and pricing never
// take it.
type Gate struct {
	mu     sync.Mutex
	fuser  *snapshot.Fuser
	store  *contracts.Store
	risk   *risk.Manager
	logger zerolog.Logger
}

func NewGate(fuser *snapshot.Fuser, store *contracts.Store, riskManager *risk.Manager, logger zerolog.Logger) *Gate {
	return &Gate{
		fuser:  fuser,
		store:  store,
		risk:   riskManager,
		logger: logger.With().Str("component", "underwriting").Logger(),
	}
}

// Submit runs §4.8's six-step procedure. Steps 3-6 execute under g.mu;
// steps 1-2 run before the lock is taken so pricing I/O (the snapshot
// fetch) never holds the write-serializing mutex longer than necessary.
func (g *Gate) Submit(ctx context.Context, c Candidate) (int64, error) {
	if err := validateCandidate(c); err != nil {
		return 0, err
	}

	snap, err := g.fuser.Build(ctx)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Unix()

	portfolio, err := g.store.ActiveContracts(now)
	if err != nil {
		return 0, err
	}
	riskPortfolio := toRiskPortfolio(portfolio)

	t := yearsUntil(c.ExpiresAt, now)
	sigma, err := snap.LookupSigma(c.StrikeUSD, c.ExpiresAt)
	if err != nil {
		return 0, err
	}

	candidate := risk.Contract{Side: c.Side, Strike: c.StrikeUSD, Quantity: c.Quantity, ExpiresAt: c.ExpiresAt}
	if err := g.risk.Admits(riskPortfolio, candidate, t, sigma, snap.Spot, now, snap.PoolBTC, snap.LookupSigma); err != nil {
		return 0, err
	}

	maxQty := g.risk.MaxQuantity(c.Side, c.StrikeUSD, t, sigma, snap.Spot, riskPortfolio, now, snap.PoolBTC, snap.LookupSigma)
	if c.Quantity > maxQty {
		return 0, apperror.QuantityExceedsLimit(maxQty)
	}

	record := contracts.NewContract(c.Side, c.StrikeUSD, c.Quantity, c.ExpiresAt, c.PremiumBTC, now)
	id, err := g.store.InsertContract(&record)
	if err != nil {
		return 0, err
	}

	entry := contracts.NewPremiumHistoryEntry(c.Side, c.StrikeUSD, c.ExpiresAt, c.PremiumBTC, now)
	if err := g.store.AppendPremium(&entry); err != nil {
		// The contract is already committed; a premium-history write
		// failure is logged but does not roll back the acceptance —
		// §4.7 treats history as a derived log, not the source of truth.
		g.logger.Error().Err(err).Int64("contract_id", id).Msg("failed to append premium history after accepting contract")
	}

	g.logger.Info().
		Int64("contract_id", id).
		Str("side", string(c.Side)).
		Float64("strike", c.StrikeUSD).
		Float64("quantity", c.Quantity).
		Msg("contract accepted")

	return id, nil
}

func validateCandidate(c Candidate) error {
	if !c.Side.Valid() {
		return apperror.InvalidInput("side must be Call or Put")
	}
	if c.StrikeUSD <= 0 {
		return apperror.InvalidInput("strike must be strictly positive")
	}
	if c.Quantity <= 0 {
		return apperror.InvalidInput("quantity must be strictly positive")
	}
	if c.Quantity > maxQuantityHardCap {
		return apperror.InvalidInput("quantity must not exceed 1000 BTC")
	}
	if c.PremiumBTC < 0 {
		return apperror.InvalidInput("premium must be non-negative")
	}
	if c.ExpiresAt <= time.Now().Unix() {
		return apperror.InvalidInput("expires_at must be in the future")
	}
	return nil
}

func yearsUntil(expiresAt, now int64) float64 {
	seconds := float64(expiresAt - now)
	if seconds <= 0 {
		seconds = 1
	}
	return seconds / (365 * 24 * 3600)
}

func toRiskPortfolio(cs []contracts.Contract) []risk.Contract {
	out := make([]risk.Contract, 0, len(cs))
	for _, c := range cs {
		out = append(out, risk.Contract{
			Side:      c.SideValue(),
			Strike:    c.StrikeUSD(),
			Quantity:  c.Quantity(),
			ExpiresAt: c.ExpiresAt,
		})
	}
	return out
}
