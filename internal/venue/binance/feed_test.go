package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"depthwatch/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/depth" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("Expected symbol BTCUSDT, got %s", got)
		}
		if got := r.URL.Query().Get("limit"); got != "500" {
			t.Errorf("Expected limit 500, got %s", got)
		}
		w.Write([]byte(`{
			"lastUpdateId": 1027024,
			"bids": [["50000.00", "1.5"], ["49999.00", "2.0"]],
			"asks": [["50001.00", "1.0"]]
		}`))
	}))
	defer server.Close()

	f := New(Config{
		Symbol:        "btcusdt",
		RestBaseURL:   server.URL,
		SnapshotLimit: 500,
	}, testLogger())

	snap, err := f.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snap.Symbol != "BTCUSDT" {
		t.Errorf("Expected symbol BTCUSDT, got %s", snap.Symbol)
	}
	if snap.LastUpdateID != 1027024 {
		t.Errorf("Expected lastUpdateId 1027024, got %d", snap.LastUpdateID)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Errorf("Expected 2 bids / 1 ask, got %d / %d", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price != "50000.00" || snap.Bids[0].Quantity != "1.5" {
		t.Errorf("Unexpected best bid %+v", snap.Bids[0])
	}
}

func TestSnapshotUnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	f := New(Config{Symbol: "NOPEUSDT", RestBaseURL: server.URL}, testLogger())

	_, err := f.Snapshot(context.Background())
	if !errors.Is(err, types.ErrSymbolNotFound) {
		t.Errorf("Expected ErrSymbolNotFound, got %v", err)
	}
}

func TestSnapshotServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := New(Config{Symbol: "BTCUSDT", RestBaseURL: server.URL}, testLogger())

	_, err := f.Snapshot(context.Background())
	if err == nil {
		t.Fatal("Expected error on 500 response")
	}
	if errors.Is(err, types.ErrSymbolNotFound) {
		t.Error("Generic server error must not map to symbol-not-found")
	}
	if f.Health().ErrorCount == 0 {
		t.Error("Error count must increment on failure")
	}
}

func TestStreamURLs(t *testing.T) {
	f := New(Config{
		Symbol:    "EthUsdt",
		WSBaseURL: "wss://stream.example.com:9443/",
	}, testLogger())

	want := "wss://stream.example.com:9443/stream?streams=ethusdt@depth@100ms/ethusdt@aggTrade"
	if f.wsURL != want {
		t.Errorf("wsURL = %s, want %s", f.wsURL, want)
	}
	if f.Symbol() != "ETHUSDT" {
		t.Errorf("Symbol() = %s", f.Symbol())
	}
	if !strings.Contains(f.restURL, "limit=1000") {
		t.Errorf("Default snapshot limit missing from %s", f.restURL)
	}
}

func TestConvertDepthUpdate(t *testing.T) {
	f := New(Config{Symbol: "BTCUSDT"}, testLogger())

	update := f.convertDepthUpdate(&DepthUpdate{
		EventType:     "depthUpdate",
		EventTime:     1700000000000,
		Symbol:        "BTCUSDT",
		FirstUpdateID: 157,
		FinalUpdateID: 160,
		Bids:          [][]string{{"50000.00", "1.5"}},
		Asks:          [][]string{{"50001.00", "0"}},
	})

	if update.FirstUpdateID != 157 || update.FinalUpdateID != 160 {
		t.Errorf("Sequence IDs lost: %+v", update)
	}
	if update.EventTime.UnixMilli() != 1700000000000 {
		t.Errorf("Event time lost: %v", update.EventTime)
	}
	if update.Asks[0].Quantity != "0" {
		t.Errorf("Zero quantity must survive conversion, got %q", update.Asks[0].Quantity)
	}
}

func TestConvertTrade(t *testing.T) {
	f := New(Config{Symbol: "BTCUSDT"}, testLogger())

	trade := f.convertTrade(&AggTrade{
		EventType:  "aggTrade",
		EventTime:  1700000000000,
		Symbol:     "BTCUSDT",
		Price:      "50000.50",
		Quantity:   "0.25",
		BuyerMaker: true,
	})

	if trade.Price != "50000.50" || trade.Quantity != "0.25" {
		t.Errorf("Trade fields lost: %+v", trade)
	}
	if !trade.BuyerMaker {
		t.Error("BuyerMaker flag lost")
	}
}
