package contracts

import (
	"sort"

	"github.com/ironvault/btc-options-engine/internal/domain"
)

const dayInSeconds = 24 * 3600

// TopBanner is §6's GET /topBanner shape.
type TopBanner struct {
	Volume24hr     float64 `json:"volume_24hr"`
	OpenInterestUSD float64 `json:"open_interest_usd"`
	ContractCount  int     `json:"contract_count"`
}

// TopBanner computes §4.7-derived headline figures: 24h traded volume
// (sum of quantity over contracts created in the last 24h), open
// interest (notional USD of all non-expired contracts), and the count
// of contracts created in the last 24h. Scenario 5 in §8 pins the first
// and third fields exactly.
func (s *Store) TopBanner(now int64) (TopBanner, error) {
	since := now - dayInSeconds
	recent, err := s.ContractsCreatedSince(since)
	if err != nil {
		return TopBanner{}, err
	}

	var volume float64
	for _, c := range recent {
		volume += c.Quantity()
	}

	active, err := s.ActiveContracts(now)
	if err != nil {
		return TopBanner{}, err
	}
	var openInterest float64
	for _, c := range active {
		openInterest += c.Quantity() * c.StrikeUSD()
	}

	return TopBanner{
		Volume24hr:      volume,
		OpenInterestUSD: openInterest,
		ContractCount:   len(recent),
	}, nil
}

// ProductMove is one row of the marketHighlights/topGainers responses:
// a (side, strike, expiry) product and how its quoted premium has
// moved over the trailing 24h.
type ProductMove struct {
	Side           domain.Side `json:"side"`
	StrikePrice    float64     `json:"strike_price"`
	ExpiresAt      int64       `json:"expires_at"`
	PremiumNow     float64     `json:"premium"`
	PremiumBefore  float64     `json:"premium_24h_ago"`
	ChangePct      float64     `json:"change_pct"`
}

// ProductVolume is one row of the topVolume response.
type ProductVolume struct {
	Side        domain.Side `json:"side"`
	StrikePrice float64     `json:"strike_price"`
	ExpiresAt   int64       `json:"expires_at"`
	Quantity    float64     `json:"quantity_24hr"`
}

// MarketHighlights reports the premium move over the trailing 24h for
// every product quoted in that window that also has an observation at or
// before the window start (products without one are omitted), sorted by
// absolute change descending. Callers that want only gainers should filter ChangePct > 0
// (TopGainers does this already).
func (s *Store) MarketHighlights(now int64) ([]ProductMove, error) {
	return s.productMoves(now)
}

// TopGainers is MarketHighlights filtered to positive movers and
// sorted descending by percentage change.
func (s *Store) TopGainers(now int64) ([]ProductMove, error) {
	moves, err := s.productMoves(now)
	if err != nil {
		return nil, err
	}
	gainers := make([]ProductMove, 0, len(moves))
	for _, m := range moves {
		if m.ChangePct > 0 {
			gainers = append(gainers, m)
		}
	}
	if len(gainers) > 10 {
		gainers = gainers[:10]
	}
	return gainers, nil
}

func (s *Store) productMoves(now int64) ([]ProductMove, error) {
	since := now - dayInSeconds

	var keys []string
	if err := s.db.Model(&PremiumHistoryEntry{}).
		Where("timestamp >= ?", since).
		Distinct("product_key").
		Pluck("product_key", &keys).Error; err != nil {
		return nil, err
	}

	moves := make([]ProductMove, 0, len(keys))
	for _, key := range keys {
		var latest PremiumHistoryEntry
		if err := s.db.Where("product_key = ?", key).Order("timestamp DESC").First(&latest).Error; err != nil {
			continue
		}

		before, found, err := s.PremiumAtOrBefore(key, since)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		var changePct float64
		if before > 0 {
			changePct = (latest.Premium() - before) / before * 100
		}

		moves = append(moves, ProductMove{
			Side:          domain.Side(latest.Side),
			StrikePrice:   domain.CentsToUsd(latest.StrikeCents),
			ExpiresAt:     latest.ExpiresAt,
			PremiumNow:    latest.Premium(),
			PremiumBefore: before,
			ChangePct:     changePct,
		})
	}

	sort.Slice(moves, func(i, j int) bool {
		return absFloat(moves[i].ChangePct) > absFloat(moves[j].ChangePct)
	})
	return moves, nil
}

// TopVolume reports, per product, the total quantity traded in the
// trailing 24h, sorted descending.
func (s *Store) TopVolume(now int64) ([]ProductVolume, error) {
	since := now - dayInSeconds
	recent, err := s.ContractsCreatedSince(since)
	if err != nil {
		return nil, err
	}

	type key struct {
		side      domain.Side
		strike    int64
		expiresAt int64
	}
	totals := make(map[key]float64)
	for _, c := range recent {
		k := key{side: c.SideValue(), strike: c.StrikeCents, expiresAt: c.ExpiresAt}
		totals[k] += c.Quantity()
	}

	out := make([]ProductVolume, 0, len(totals))
	for k, qty := range totals {
		out = append(out, ProductVolume{
			Side:        k.side,
			StrikePrice: domain.CentsToUsd(k.strike),
			ExpiresAt:   k.expiresAt,
			Quantity:    qty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quantity > out[j].Quantity })
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
