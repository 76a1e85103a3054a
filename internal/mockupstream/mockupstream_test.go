package mockupstream

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestAggregatorHandlerReturnsAPositivePrice(t *testing.T) {
	srv := httptest.NewServer(AggregatorHandler(50000, Profile{SuccessRate: 1}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Price <= 0 {
		t.Fatalf("expected a positive simulated price, got %v", body.Price)
	}
}

func TestDeribitHandlerReturnsAVolatilitySmile(t *testing.T) {
	srv := httptest.NewServer(DeribitHandler(50000, Profile{SuccessRate: 1}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Result []struct {
			InstrumentName string  `json:"instrument_name"`
			MarkIV         float64 `json:"mark_iv"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Result) != 5*11*2 {
		t.Fatalf("expected 5 expiries x 11 strikes x 2 sides = 110 rows, got %d", len(body.Result))
	}
}

func TestIndexerHandlerReportsConfirmedSats(t *testing.T) {
	srv := httptest.NewServer(IndexerHandler(12345, Profile{SuccessRate: 1}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		ChainStats struct {
			FundedTxoSum int64 `json:"funded_txo_sum"`
			SpentTxoSum  int64 `json:"spent_txo_sum"`
		} `json:"chain_stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ChainStats.FundedTxoSum != 12345 {
		t.Fatalf("expected funded_txo_sum 12345, got %d", body.ChainStats.FundedTxoSum)
	}
}
