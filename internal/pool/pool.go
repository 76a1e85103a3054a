// Package pool reads the underwriting pool's on-chain BTC balance from
// a mempool.space-style UTXO indexer. Grounded on
// original_source/mutiny_wallet.rs's MutinyWallet client: the same
// AddressInfo/ChainStats response shape, the same
// confirmed_balance = funded_txo_sum - spent_txo_sum derivation, and the
// same satoshi-to-BTC conversion. original_source's Network-keyed base
// URL selection (mainnet/testnet/signet) is preserved as NetworkBaseURL.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/apperror"
)

const satoshisPerBTC = 100_000_000

// NetworkBaseURL mirrors mutiny_wallet.rs's Network enum base URLs; used
// when MUTINY_API_URL / indexer URL is left unset in Config.
func NetworkBaseURL(network string) string {
	switch strings.ToLower(network) {
	case "mainnet":
		return "https://mempool.space/api"
	case "testnet":
		return "https://mempool.space/testnet/api"
	case "signet":
		return "https://mempool.space/signet/api"
	default:
		return "https://mempool.space/signet/api"
	}
}

// chainStats is the indexer's per-address chain-state block, matching
// the subset of mutiny_wallet.rs's ChainStats the pool balance needs.
type chainStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

type addressInfo struct {
	ChainStats chainStats `json:"chain_stats"`
}

// Source reads the pool's available collateral balance on demand. No
// cache cell: §4.3 does not pin a TTL for the pool balance the way it
// does for spot and IV, so every call hits the indexer directly.
type Source struct {
	baseURL    string
	address    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(baseURL, address string, logger zerolog.Logger) *Source {
	return &Source{
		baseURL:    strings.TrimRight(baseURL, "/"),
		address:    address,
		httpClient: &http.Client{Timeout: 8 * time.Second},
		logger:     logger.With().Str("component", "pool").Logger(),
	}
}

// BalanceBTC returns the pool's confirmed on-chain balance in BTC.
func (s *Source) BalanceBTC(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/address/%s", s.baseURL, s.address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, apperror.ClassifyUpstream(
			fmt.Sprintf("pool indexer not reachable at %s; check MUTINY_API_URL/POOL_NETWORK", s.baseURL),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperror.UpstreamUnavailable(
			fmt.Sprintf("pool indexer returned status %d for address %s", resp.StatusCode, s.address),
			fmt.Errorf("status %d", resp.StatusCode),
		)
	}

	var info addressInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, apperror.UpstreamUnavailable("pool indexer returned a malformed response", err)
	}

	confirmedSats := info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum
	if confirmedSats < 0 {
		confirmedSats = 0
	}

	balance := float64(confirmedSats) / satoshisPerBTC
	s.logger.Debug().Float64("balance_btc", balance).Msg("pool balance refreshed")
	return balance, nil
}

func SatoshisToBTC(sats int64) float64 { return float64(sats) / satoshisPerBTC }
func BTCToSatoshis(btc float64) int64  { return int64(btc * satoshisPerBTC) }
