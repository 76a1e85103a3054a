package underwriting

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/contracts"
	"github.com/ironvault/btc-options-engine/internal/contracts/migrations"
	"github.com/ironvault/btc-options-engine/internal/domain"
	"github.com/ironvault/btc-options-engine/internal/iv"
	"github.com/ironvault/btc-options-engine/internal/mockupstream"
	"github.com/ironvault/btc-options-engine/internal/pool"
	"github.com/ironvault/btc-options-engine/internal/risk"
	"github.com/ironvault/btc-options-engine/internal/snapshot"
	"github.com/ironvault/btc-options-engine/internal/spot"
)

const basePrice = 50000.0

// testGate wires a Gate against live (local, mocked) upstreams and a
// fresh in-memory contract store, the way cmd/server wires the real
// ones — this is §8's seed end-to-end scenario harness.
func testGate(t *testing.T, confirmedSats int64) *Gate {
	t.Helper()

	aggregator := httptest.NewServer(mockupstream.AggregatorHandler(basePrice, mockupstream.Profile{SuccessRate: 1}))
	t.Cleanup(aggregator.Close)

	deribit := httptest.NewServer(mockupstream.DeribitHandler(basePrice, mockupstream.Profile{SuccessRate: 1}))
	t.Cleanup(deribit.Close)

	indexerMux := http.NewServeMux()
	indexerMux.HandleFunc("/address/", mockupstream.IndexerHandler(confirmedSats, mockupstream.Profile{SuccessRate: 1}))
	indexer := httptest.NewServer(indexerMux)
	t.Cleanup(indexer.Close)

	logger := zerolog.Nop()
	spotSrc := spot.New(aggregator.URL, logger)
	ivSrc := iv.New(deribit.URL, "", logger)
	ivSrc.StartRefresher()
	t.Cleanup(ivSrc.Stop)
	poolSrc := pool.New(indexer.URL, "bc1qtest", logger)

	fuser := snapshot.NewFuser(spotSrc, ivSrc, poolSrc, 0.05, logger)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger2(),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	if err := migrations.InitSchema(db); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	store := contracts.NewStore(db)

	riskManager := risk.NewManager(0.5, 1.2, 0.05, logger)

	return NewGate(fuser, store, riskManager, logger)
}

func logger2() logger.Interface {
	return logger.Default.LogMode(logger.Silent)
}

func TestSubmitRejectsInvalidCandidate(t *testing.T) {
	g := testGate(t, 1_000_000_000)

	_, err := g.Submit(context.Background(), Candidate{
		Side:       domain.Side("Straddle"),
		StrikeUSD:  50000,
		Quantity:   1,
		ExpiresAt:  time.Now().Unix() + 86400,
		PremiumBTC: 0.01,
	})
	if err == nil {
		t.Fatal("expected rejection for an invalid side")
	}
	ae, ok := apperror.As(err)
	if !ok || ae.Kind != apperror.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestSubmitAcceptsASmallCandidateAgainstAnAmplePool(t *testing.T) {
	g := testGate(t, 10_000_000_000) // 100 BTC

	id, err := g.Submit(context.Background(), Candidate{
		Side:       domain.Call,
		StrikeUSD:  50000,
		Quantity:   0.001,
		ExpiresAt:  mockupstream.ExpiryUnixSeconds(1),
		PremiumBTC: 0.0001,
	})
	if err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero contract id")
	}
}

func TestSubmitRejectsOversizedCandidateAgainstATinyPool(t *testing.T) {
	g := testGate(t, 1000) // ~0.00001 BTC

	_, err := g.Submit(context.Background(), Candidate{
		Side:       domain.Call,
		StrikeUSD:  50000,
		Quantity:   1000,
		ExpiresAt:  mockupstream.ExpiryUnixSeconds(1),
		PremiumBTC: 0.01,
	})
	if err == nil {
		t.Fatal("expected rejection against a pool with negligible collateral")
	}
	ae, ok := apperror.As(err)
	if !ok {
		t.Fatalf("expected a classified apperror, got %v", err)
	}
	if ae.Kind != apperror.KindInsufficientCollateral && ae.Kind != apperror.KindQuantityExceedsLimit {
		t.Fatalf("expected collateral or quantity rejection, got %v", ae.Kind)
	}
}

func TestSubmitPersistsAcceptedContractAndPremiumHistory(t *testing.T) {
	g := testGate(t, 10_000_000_000)

	id, err := g.Submit(context.Background(), Candidate{
		Side:       domain.Put,
		StrikeUSD:  48000,
		Quantity:   0.002,
		ExpiresAt:  mockupstream.ExpiryUnixSeconds(2),
		PremiumBTC: 0.0002,
	})
	if err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}

	all, err := g.store.AllContracts()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range all {
		if c.ID == id {
			found = true
			if c.SideValue() != domain.Put {
				t.Fatalf("persisted side = %v, want Put", c.SideValue())
			}
		}
	}
	if !found {
		t.Fatal("expected the accepted contract to be persisted")
	}
}
