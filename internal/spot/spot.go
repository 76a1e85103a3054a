// Package spot implements §4.1: a single-cell, TTL-bounded cache in
// front of the remote price aggregator. The aggregator is specced as a
// "binary RPC over TCP" service, but the retrieval pack carries no
// .proto definitions for it — and original_source/price_oracle.rs hits
// exactly the same wall and falls back to a plain HTTP JSON GET ("For
// now we'll use HTTP as a fallback since we don't have the exact proto
// definitions... This can be replaced with proper gRPC client when proto
// files are available"). We follow that documented fallback rather than
// hand-author protobuf-generated code against a nonexistent schema.
package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ironvault/btc-options-engine/internal/apperror"
)

const cacheTTL = 10 * time.Second

// aggregatorResponse is the §6 "Spot RPC (consumed)" response shape.
type aggregatorResponse struct {
	Price       float64 `json:"price"`
	Timestamp   int64   `json:"timestamp"`
	SourceCount int     `json:"source_count"`
}

type cell struct {
	price    float64
	fetchedAt time.Time
}

// Source is the cached spot price reader. One Source per process; the
// cache cell is guarded by a mutex so readers that find it fresh never
// block on I/O, per §5.
type Source struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger

	mu   sync.RWMutex
	cell cell

	refresh singleflight.Group
}

func New(aggregatorURL string, logger zerolog.Logger) *Source {
	return &Source{
		url:        aggregatorURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger.With().Str("component", "spot").Logger(),
	}
}

// Current returns the cached price if fresh, otherwise refreshes.
// Concurrent cache misses collapse onto a single upstream fetch via
// singleflight, so a burst of requests at TTL expiry does not stampede
// the aggregator.
func (s *Source) Current(ctx context.Context) (float64, error) {
	s.mu.RLock()
	c := s.cell
	s.mu.RUnlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < cacheTTL {
		return c.price, nil
	}

	v, err, _ := s.refresh.Do("spot", func() (interface{}, error) {
		return s.fetchAndCache(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (s *Source) fetchAndCache(ctx context.Context) (float64, error) {
	price, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("spot refresh failed")
		return 0, apperror.ClassifyUpstream(
			fmt.Sprintf("aggregator not reachable at %s; start it, or set AGGREGATOR_URL to a running instance", s.url),
			err,
		)
	}

	s.mu.Lock()
	s.cell = cell{price: price, fetchedAt: time.Now()}
	s.mu.Unlock()

	s.logger.Debug().Float64("price", price).Msg("spot refreshed")
	return price, nil
}

func (s *Source) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("aggregator returned status %d", resp.StatusCode)
	}

	var body aggregatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode aggregator response: %w", err)
	}
	if body.Price <= 0 {
		return 0, fmt.Errorf("aggregator returned non-positive price %f", body.Price)
	}
	return body.Price, nil
}

// Probe performs the startup refresh required by §4.1: if it fails the
// caller should treat it as an explicit, remediation-bearing error and
// may abort the process.
func (s *Source) Probe(ctx context.Context) error {
	_, err := s.fetchAndCache(ctx)
	return err
}
