package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ironvault/btc-options-engine/internal/apperror"
	"github.com/ironvault/btc-options-engine/internal/mockupstream"
)

func TestBalanceBTCDerivesConfirmedBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/address/", mockupstream.IndexerHandler(250_000_000, mockupstream.Profile{SuccessRate: 1}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := New(srv.URL, "bc1qtest", zerolog.Nop())
	balance, err := s.BalanceBTC(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if balance != 2.5 {
		t.Fatalf("expected 2.5 BTC from 250,000,000 confirmed sats, got %v", balance)
	}
}

func TestBalanceBTCWrapsErrorStatusAsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(srv.URL, "bc1qtest", zerolog.Nop())
	_, err := s.BalanceBTC(context.Background())
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
	if ae, ok := apperror.As(err); !ok || ae.Kind != apperror.KindUpstreamUnavailable {
		t.Fatalf("expected KindUpstreamUnavailable, got %v", err)
	}
}

func TestNetworkBaseURLSwitch(t *testing.T) {
	cases := map[string]string{
		"mainnet": "https://mempool.space/api",
		"testnet": "https://mempool.space/testnet/api",
		"signet":  "https://mempool.space/signet/api",
		"":        "https://mempool.space/signet/api",
	}
	for network, want := range cases {
		if got := NetworkBaseURL(network); got != want {
			t.Errorf("NetworkBaseURL(%q) = %q, want %q", network, got, want)
		}
	}
}

func TestSatoshiConversionRoundTrip(t *testing.T) {
	if got := SatoshisToBTC(100_000_000); got != 1.0 {
		t.Fatalf("SatoshisToBTC(100_000_000) = %v, want 1.0", got)
	}
	if got := BTCToSatoshis(1.0); got != 100_000_000 {
		t.Fatalf("BTCToSatoshis(1.0) = %v, want 100_000_000", got)
	}
}
