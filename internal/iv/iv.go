// Package iv implements §4.2: a background-refreshed implied-volatility
// surface. The refresher is a cron.Cron job on an "@every 15s" schedule
// rather than a hand-rolled time.Ticker loop; robfig/cron has no pack
// precedent (r3e-network-neo-miniapps-platform's own pricefeed refresher
// hand-rolls a time.Ticker/select loop instead), so the declarative
// schedule here is an ecosystem-idiom choice, not a grounded one. The
// instrument-name parser and the nearest-strike fallback are grounded on
// original_source/iv_oracle.rs's parse_instrument_name and get_iv. The
// per-lookup fallback to IV_API_URL is grounded on
// original_source/mock_apis.rs's get_iv, kept there as "a fallback when
// Deribit data is unavailable".
package iv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/domain"
)

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

type deribitResponse struct {
	Result []deribitSummary `json:"result"`
}

type deribitSummary struct {
	InstrumentName string  `json:"instrument_name"`
	MarkIV         float64 `json:"mark_iv"`
}

// surface is keyed by expiry (seconds since epoch) then by integer
// strike, holding annualized sigma as a decimal (e.g. 0.5).
type surface map[int64]map[int64]float64

// Source is the read-mostly IV surface. Readers take an RWMutex; the
// background refresher swaps a fully built map in with a single write
// so readers never observe a partially-built surface, per §5.
type Source struct {
	apiURL      string
	fallbackURL string
	httpClient  *http.Client
	logger      zerolog.Logger

	mu      sync.RWMutex
	surface surface

	cron *cron.Cron
}

// New builds a Source that polls deribitAPIURL in the background. When a
// Lookup misses the cached surface entirely, it falls back to a single
// synchronous call against fallbackAPIURL (§6's "IV fallback endpoint") —
// kept, per original_source/mock_apis.rs's get_iv, as the last resort for
// when Deribit data is unavailable. Pass an empty fallbackAPIURL to disable
// it.
func New(deribitAPIURL, fallbackAPIURL string, logger zerolog.Logger) *Source {
	return &Source{
		apiURL:      deribitAPIURL,
		fallbackURL: fallbackAPIURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger.With().Str("component", "iv").Logger(),
		surface:     make(surface),
	}
}

// StartRefresher launches the 15s background refresh job. Call Stop to
// release the cron goroutine on shutdown.
func (s *Source) StartRefresher() {
	s.cron = cron.New()
	_, err := s.cron.AddFunc("@every 15s", s.refreshOnce)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to schedule iv refresh job")
		return
	}
	s.cron.Start()

	// Prime the surface once synchronously before first tick so early
	// readers are not starved for 15s after startup.
	s.refreshOnce()
}

func (s *Source) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Source) refreshOnce() {
	next, err := s.fetchSurface()
	if err != nil {
		// On 4xx/5xx or transport failure, retain the previous surface
		// and log the failure, per §6's "IV REST (consumed)" contract.
		s.logger.Warn().Err(err).Msg("iv refresh failed, retaining previous surface")
		return
	}

	s.mu.Lock()
	s.surface = next
	s.mu.Unlock()

	s.logger.Debug().Int("expiries", len(next)).Msg("iv surface refreshed")
}

func (s *Source) fetchSurface() (surface, error) {
	url := fmt.Sprintf("%s/public/get_book_summary_by_currency?currency=BTC&kind=option", s.apiURL)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, apperror.ClassifyUpstream(
			fmt.Sprintf("deribit not reachable at %s; check DERIBIT_API_URL", s.apiURL),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, apperror.UpstreamUnavailable(
			fmt.Sprintf("deribit returned status %d", resp.StatusCode),
			fmt.Errorf("status %d", resp.StatusCode),
		)
	}

	var body deribitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode iv surface: %w", err)
	}

	next := make(surface)
	for _, opt := range body.Result {
		expires, strike, side, ok := parseInstrumentName(opt.InstrumentName)
		if !ok || side == "" {
			continue
		}
		if _, exists := next[expires]; !exists {
			next[expires] = make(map[int64]float64)
		}
		next[expires][strike] = opt.MarkIV
	}
	return next, nil
}

// Lookup returns sigma for (strike, expiresAt). Falls back to the
// nearest strike at the same expiry if the exact strike is missing; when
// the surface has no data for the expiry at all, it falls back once more
// to a synchronous call against the configured IV fallback endpoint
// before finally failing IvUnavailable.
func (s *Source) Lookup(strike float64, expiresAt int64) (float64, error) {
	if sigma, ok := s.lookupInSurface(strike, expiresAt); ok {
		return sigma, nil
	}

	if sigma, err := s.fetchFallbackSigma(strike); err == nil {
		return sigma, nil
	}

	return 0, apperror.IvUnavailable(fmt.Sprintf("no implied volatility for strike %v at expiry %d", strike, expiresAt))
}

func (s *Source) lookupInSurface(strike float64, expiresAt int64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strikes, ok := s.surface[expiresAt]
	if !ok || len(strikes) == 0 {
		return 0, false
	}

	strikeInt := int64(strike)
	if sigma, ok := strikes[strikeInt]; ok {
		return sigma, true
	}

	// Nearest-strike fallback at the same expiry (§4.2, §9: a pragmatic
	// choice, not a smile interpolation).
	var nearest int64
	var nearestDist int64 = -1
	for k := range strikes {
		dist := k - strikeInt
		if dist < 0 {
			dist = -dist
		}
		if nearestDist == -1 || dist < nearestDist {
			nearest, nearestDist = k, dist
		}
	}
	if nearestDist == -1 {
		return 0, false
	}
	return strikes[nearest], true
}

// fetchFallbackSigma calls the IV fallback endpoint for a single strike,
// mirroring original_source/mock_apis.rs's get_iv: a bare JSON number
// keyed only by strike_price (side and expire are accepted but unused by
// that endpoint, so placeholders are fine).
func (s *Source) fetchFallbackSigma(strike float64) (float64, error) {
	if s.fallbackURL == "" {
		return 0, fmt.Errorf("no iv fallback endpoint configured")
	}

	url := fmt.Sprintf("%s?side=Call&strike_price=%v&expire=fallback", s.fallbackURL, strike)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return 0, apperror.ClassifyUpstream(
			fmt.Sprintf("iv fallback not reachable at %s; check IV_API_URL", s.fallbackURL),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, apperror.UpstreamUnavailable(
			fmt.Sprintf("iv fallback returned status %d", resp.StatusCode),
			fmt.Errorf("status %d", resp.StatusCode),
		)
	}

	var sigma float64
	if err := json.NewDecoder(resp.Body).Decode(&sigma); err != nil {
		return 0, fmt.Errorf("failed to decode iv fallback response: %w", err)
	}
	return sigma, nil
}

// parseInstrumentName parses "BTC-6SEP25-60000-C" or "BTC-19SEP25-60000-P"
// into (expiresAtSeconds, strike, side). Accepts both single- and
// double-digit day fragments, per §4.2.
func parseInstrumentName(name string) (expiresAt int64, strike int64, side domain.Side, ok bool) {
	parts := strings.Split(name, "-")
	if len(parts) != 4 || parts[0] != "BTC" {
		return 0, 0, "", false
	}

	expiresAt, parseOK := parseDeribitDate(parts[1])
	if !parseOK {
		return 0, 0, "", false
	}

	strike, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, "", false
	}

	switch parts[3] {
	case "C":
		side = domain.Call
	case "P":
		side = domain.Put
	default:
		return 0, 0, "", false
	}

	return expiresAt, strike, side, true
}

// parseDeribitDate parses "6SEP25" or "19SEP25" into seconds since
// epoch at 08:00 UTC (Deribit's options expire at 08:00 UTC).
func parseDeribitDate(frag string) (int64, bool) {
	if len(frag) < 5 {
		return 0, false
	}
	// Month is always the three letters before the trailing two-digit
	// year; the day is whatever digits remain before that.
	year := frag[len(frag)-2:]
	month := frag[len(frag)-5 : len(frag)-2]
	day := frag[:len(frag)-5]
	if day == "" {
		return 0, false
	}

	dayNum, err := strconv.Atoi(day)
	if err != nil {
		return 0, false
	}
	mon, ok := monthAbbrev[strings.ToUpper(month)]
	if !ok {
		return 0, false
	}
	yearNum, err := strconv.Atoi(year)
	if err != nil {
		return 0, false
	}

	t := time.Date(2000+yearNum, mon, dayNum, 8, 0, 0, 0, time.UTC)
	return t.Unix(), true
}
