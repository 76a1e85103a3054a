// Package api implements §6's HTTP JSON surface over the underwriting
// engine. Grounded on ksred-klear-api/internal/trading's
// Service/GinHandlers split: a thin Handlers struct holding references
// to the engine's collaborators, one method per route, each delegating
// immediately to the domain packages.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/analyticscache"
	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/contracts"
	"github.com/ironvault/btc-options-engine/internal/domain"
	"github.com/ironvault/btc-options-engine/internal/grid"
	"github.com/ironvault/btc-options-engine/internal/metrics"
	"github.com/ironvault/btc-options-engine/internal/pricing"
	"github.com/ironvault/btc-options-engine/internal/risk"
	"github.com/ironvault/btc-options-engine/internal/snapshot"
	"github.com/ironvault/btc-options-engine/internal/underwriting"
	"github.com/ironvault/btc-options-engine/pkg/response"
)

// Handlers bundles everything the HTTP surface needs to serve §6's
// routes. One Handlers per process, constructed in cmd/server.
type Handlers struct {
	fuser   *snapshot.Fuser
	store   *contracts.Store
	risk    *risk.Manager
	gate    *underwriting.Gate
	cache   *analyticscache.Cache
	logger  zerolog.Logger
}

func NewHandlers(fuser *snapshot.Fuser, store *contracts.Store, riskManager *risk.Manager, gate *underwriting.Gate, cache *analyticscache.Cache, logger zerolog.Logger) *Handlers {
	return &Handlers{
		fuser:  fuser,
		store:  store,
		risk:   riskManager,
		gate:   gate,
		cache:  cache,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Register wires every §6 route onto r.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/optionsTable", h.GetOptionsTable)
	r.POST("/contract", h.PostContract)
	r.GET("/contracts", h.GetContracts)
	r.GET("/delta", h.GetDelta)
	r.GET("/topBanner", h.GetTopBanner)
	r.GET("/marketHighlights", h.GetMarketHighlights)
	r.GET("/topGainers", h.GetTopGainers)
	r.GET("/topVolume", h.GetTopVolume)
	r.GET("/health", h.GetHealth)
}

// gridCellDTO is §6's OptionGridCell wire shape.
type gridCellDTO struct {
	Side        domain.Side `json:"side"`
	StrikePrice float64     `json:"strike_price"`
	Expire      string      `json:"expire"`
	Premium     float64     `json:"premium"`
	MaxQuantity float64     `json:"max_quantity"`
	IV          float64     `json:"iv"`
	Delta       float64     `json:"delta"`
}

// GetOptionsTable serves GET /optionsTable: the full 110-cell grid.
func (h *Handlers) GetOptionsTable(c *gin.Context) {
	start := time.Now()

	snap, err := h.fuser.Build(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now().Unix()
	portfolio, err := h.store.ActiveContracts(now)
	if err != nil {
		response.Error(c, err)
		return
	}

	cells := grid.Generate(grid.Inputs{
		Spot:        snap.Spot,
		Now:         now,
		PoolBTC:     snap.PoolBTC,
		RiskManager: h.risk,
		Portfolio:   toRiskPortfolio(portfolio),
		LookupSigma: snap.LookupSigma,
	}, h.logger)

	out := make([]gridCellDTO, 0, len(cells))
	for _, cell := range cells {
		out = append(out, gridCellDTO{
			Side:        cell.Side,
			StrikePrice: cell.Strike,
			Expire:      string(cell.ExpireLabel),
			Premium:     cell.Premium,
			MaxQuantity: cell.MaxQuantity,
			IV:          cell.IV,
			Delta:       cell.Delta,
		})
	}

	metrics.RecordQuoteServed(time.Since(start))
	metrics.SetAvailableCollateral(h.risk.AvailableCollateral(snap.PoolBTC, snap.Spot, toRiskPortfolio(portfolio), now, snap.LookupSigma))
	response.OK(c, out)
}

// contractRequest is §6's POST /contract body.
type contractRequest struct {
	Side        domain.Side `json:"side"`
	StrikePrice float64     `json:"strike_price"`
	Quantity    float64     `json:"quantity"`
	Expires     int64       `json:"expires"`
	Premium     float64     `json:"premium"`
}

type contractAcceptedResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// PostContract serves POST /contract: §4.8's underwriting submission.
func (h *Handlers) PostContract(c *gin.Context) {
	var req contractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id, err := h.gate.Submit(c.Request.Context(), underwriting.Candidate{
		Side:       req.Side,
		StrikeUSD:  req.StrikePrice,
		Quantity:   req.Quantity,
		ExpiresAt:  req.Expires,
		PremiumBTC: req.Premium,
	})
	if err != nil {
		if ae, ok := apperror.As(err); ok {
			metrics.RecordContractRejected(kindLabel(ae.Kind))
		}
		response.Error(c, err)
		return
	}

	metrics.RecordContractAccepted()
	response.OK(c, contractAcceptedResponse{Message: "contract accepted", ID: id})
}

// contractDTO is §3/§6's Contract wire shape, decoupled from the
// gorm-tagged storage model in internal/contracts/models.go.
type contractDTO struct {
	ID        int64       `json:"id"`
	Side      domain.Side `json:"side"`
	Strike    float64     `json:"strike"`
	Quantity  float64     `json:"quantity"`
	ExpiresAt int64       `json:"expires_at"`
	Premium   float64     `json:"premium"`
	CreatedAt int64       `json:"created_at"`
}

// GetContracts serves GET /contracts.
func (h *Handlers) GetContracts(c *gin.Context) {
	all, err := h.store.AllContracts()
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]contractDTO, 0, len(all))
	for _, contract := range all {
		out = append(out, contractDTO{
			ID:        contract.ID,
			Side:      contract.SideValue(),
			Strike:    contract.StrikeUSD(),
			Quantity:  contract.Quantity(),
			ExpiresAt: contract.ExpiresAt,
			Premium:   contract.Premium(),
			CreatedAt: contract.CreatedAt,
		})
	}
	response.OK(c, out)
}

// GetDelta serves GET /delta: the signed sum of position deltas across
// the active portfolio, each priced at its own remaining T and current
// spot/sigma.
func (h *Handlers) GetDelta(c *gin.Context) {
	snap, err := h.fuser.Build(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now().Unix()
	portfolio, err := h.store.ActiveContracts(now)
	if err != nil {
		response.Error(c, err)
		return
	}

	var total float64
	for _, contract := range portfolio {
		t := float64(contract.ExpiresAt-now) / (365 * 24 * 3600)
		if t <= 0 {
			continue
		}
		sigma, err := snap.LookupSigma(contract.StrikeUSD(), contract.ExpiresAt)
		if err != nil {
			continue
		}
		result, err := pricing.Price(contract.SideValue(), snap.Spot, contract.StrikeUSD(), t, h.risk.RiskFreeRate, sigma)
		if err != nil {
			continue
		}
		total += result.Delta * contract.Quantity()
	}

	response.OK(c, total)
}

func (h *Handlers) GetTopBanner(c *gin.Context) {
	now := time.Now().Unix()

	var out contracts.TopBanner
	if h.cache.Get(c.Request.Context(), "topBanner", &out) {
		response.OK(c, out)
		return
	}

	out, err := h.store.TopBanner(now)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cache.Set(c.Request.Context(), "topBanner", out)
	response.OK(c, out)
}

func (h *Handlers) GetMarketHighlights(c *gin.Context) {
	now := time.Now().Unix()

	var out []contracts.ProductMove
	if h.cache.Get(c.Request.Context(), "marketHighlights", &out) {
		response.OK(c, out)
		return
	}

	out, err := h.store.MarketHighlights(now)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cache.Set(c.Request.Context(), "marketHighlights", out)
	response.OK(c, out)
}

func (h *Handlers) GetTopGainers(c *gin.Context) {
	now := time.Now().Unix()

	var out []contracts.ProductMove
	if h.cache.Get(c.Request.Context(), "topGainers", &out) {
		response.OK(c, out)
		return
	}

	out, err := h.store.TopGainers(now)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cache.Set(c.Request.Context(), "topGainers", out)
	response.OK(c, out)
}

func (h *Handlers) GetTopVolume(c *gin.Context) {
	now := time.Now().Unix()

	var out []contracts.ProductVolume
	if h.cache.Get(c.Request.Context(), "topVolume", &out) {
		response.OK(c, out)
		return
	}

	out, err := h.store.TopVolume(now)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cache.Set(c.Request.Context(), "topVolume", out)
	response.OK(c, out)
}

// GetHealth serves GET /health. It performs a live spot/pool probe so
// "healthy" actually reflects the two hard dependencies the engine
// cannot quote or underwrite without.
func (h *Handlers) GetHealth(c *gin.Context) {
	_, err := h.fuser.Build(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
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

func kindLabel(k apperror.Kind) string {
	switch k {
	case apperror.KindInvalidInput:
		return "invalid_input"
	case apperror.KindInsufficientCollateral:
		return "insufficient_collateral"
	case apperror.KindQuantityExceedsLimit:
		return "quantity_exceeds_limit"
	default:
		return "other"
	}
}
