// Package mockupstream provides local stand-ins for the three remote
// collaborators the core treats as external (§1): the spot aggregator,
// the Deribit IV feed, and the mempool-style UTXO indexer. Grounded on
// ksred-klear-api/internal/exchange's latency/success-rate simulation
// model and on original_source/mock_apis.rs's volatility-smile fallback
// formula (`0.5 + |strike-base|/base * 0.1`). Intended for local
// development and integration tests, never for production traffic.
package mockupstream

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// deribitTenorDays mirrors domain.ExpirySeconds' five quoted tenors
// (1d/2d/3d/5d/7d), expressed as day offsets from now.
var deribitTenorDays = []int{1, 2, 3, 5, 7}

// ExpiryUnixSeconds returns the unix timestamp for "daysFromNow" at
// Deribit's 08:00 UTC expiry convention, the same anchor iv.go's
// parseDeribitDate resolves instrument names to.
func ExpiryUnixSeconds(daysFromNow int) int64 {
	now := time.Now().UTC()
	expiry := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, time.UTC).AddDate(0, 0, daysFromNow)
	return expiry.Unix()
}

// DeribitExpiryFragment formats "daysFromNow" as a Deribit-style
// instrument date fragment (e.g. "6SEP25"), anchored the same way
// ExpiryUnixSeconds is.
func DeribitExpiryFragment(daysFromNow int) string {
	when := time.Unix(ExpiryUnixSeconds(daysFromNow), 0).UTC()
	return fmt.Sprintf("%d%s%02d", when.Day(), strings.ToUpper(when.Month().String()[:3]), when.Year()%100)
}

// Profile configures the simulated latency and failure rate of a mock
// upstream, mirroring exchange.go's Exchange.MinLatency/MaxLatency/SuccessRate.
type Profile struct {
	MinLatencyMS int
	MaxLatencyMS int
	SuccessRate  float64
}

var defaultProfile = Profile{MinLatencyMS: 5, MaxLatencyMS: 40, SuccessRate: 0.98}

func (p Profile) simulate(w http.ResponseWriter) bool {
	latency := p.MinLatencyMS
	if p.MaxLatencyMS > p.MinLatencyMS {
		latency += rand.Intn(p.MaxLatencyMS - p.MinLatencyMS)
	}
	time.Sleep(time.Duration(latency) * time.Millisecond)

	if rand.Float64() > p.SuccessRate {
		http.Error(w, "simulated upstream failure", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// AggregatorHandler simulates §6's spot RPC endpoint over plain HTTP
// (the transport this repo's Spot Source actually speaks, per
// internal/spot's documented fallback). basePrice drifts by a small
// random walk on every call so callers see the cache actually expire.
func AggregatorHandler(basePrice float64, profile Profile) http.HandlerFunc {
	price := basePrice
	return func(w http.ResponseWriter, r *http.Request) {
		if !profile.simulate(w) {
			return
		}
		price *= 1 + (rand.Float64()*0.004 - 0.002)

		resp := map[string]interface{}{
			"price":        price,
			"timestamp":    time.Now().Unix(),
			"source_count": 3 + rand.Intn(3),
		}
		writeJSON(w, resp)
	}
}

// DeribitHandler simulates the book-summary endpoint iv.Source polls.
// IV follows original_source/mock_apis.rs's volatility-smile formula
// around a handful of synthetic strikes at a handful of expiries.
func DeribitHandler(basePrice float64, profile Profile) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !profile.simulate(w) {
			return
		}

		type summary struct {
			InstrumentName string  `json:"instrument_name"`
			MarkIV         float64 `json:"mark_iv"`
		}
		var result []summary

		for _, days := range deribitTenorDays {
			exp := DeribitExpiryFragment(days)
			base := int(basePrice/5000) * 5000
			for i := -5; i <= 5; i++ {
				strike := base + i*5000
				iv := 0.5 + float64(abs(strike-base))/basePrice*0.1
				for _, side := range []string{"C", "P"} {
					result = append(result, summary{
						InstrumentName: fmt.Sprintf("BTC-%s-%d-%s", exp, strike, side),
						MarkIV:         iv,
					})
				}
			}
		}

		writeJSON(w, map[string]interface{}{"result": result})
	}
}

// IndexerHandler simulates the mempool.space-style address endpoint
// internal/pool polls, returning a chain_stats block whose
// funded/spent sums derive confirmedSats.
func IndexerHandler(confirmedSats int64, profile Profile) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !profile.simulate(w) {
			return
		}
		resp := map[string]interface{}{
			"chain_stats": map[string]interface{}{
				"funded_txo_sum": confirmedSats,
				"spent_txo_sum":  0,
			},
		}
		writeJSON(w, resp)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
