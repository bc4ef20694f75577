package stream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"VammLedger/internal/amm"
	"VammLedger/internal/core"
	"VammLedger/internal/event"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/observability"
	"VammLedger/internal/state"
	"VammLedger/internal/stream"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

func mustMarket(t *testing.T, mi uint16) *state.Market {
	t.Helper()
	reserve := 100 * fpmath.AmmReservePrecision
	m, err := state.NewMarket(state.MarketConfig{
		MarketIndex: mi,
		Name:        "TEST-PERP",
		AMM:         amm.Config{BaseAssetReserve: reserve, QuoteAssetReserve: reserve, FundingPeriod: 3600},
	}, 1_700_000_000)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	return m
}

func output(m *state.Market, seq int64) core.CoreOutput {
	mi := m.MarketIndex
	return core.CoreOutput{
		Envelope: &event.EventEnvelope{Sequence: seq, EventType: event.EventTypeOpenPosition, MarketIndex: &mi},
		Market:   m,
	}
}

type testHub struct {
	hub *stream.Hub
	srv *httptest.Server
	in  chan core.CoreOutput
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	hub := stream.NewHub(observability.NewMetrics(prometheus.NewRegistry()))
	in := make(chan core.CoreOutput, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx, in)
		close(done)
	}()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &testHub{hub: hub, srv: srv, in: in}
}

func (h *testHub) dial(t *testing.T, query string, wantClients int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Clients() < wantClients {
		if time.Now().After(deadline) {
			t.Fatalf("clients: got %d, want %d", h.hub.Clients(), wantClients)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) stream.MarketUpdate {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var upd stream.MarketUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return upd
}

// ===========================================================================
// Message construction
// ===========================================================================

func TestNewMarketUpdate(t *testing.T) {
	m := mustMarket(t, 3)
	upd, ok := stream.NewMarketUpdate(output(m, 42))
	if !ok {
		t.Fatal("expected an update for a market output")
	}
	if upd.Sequence != 42 || upd.MarketIndex != 3 {
		t.Errorf("got seq=%d market=%d, want 42/3", upd.Sequence, upd.MarketIndex)
	}
	if upd.MarkPrice != "1.0000000000" {
		t.Errorf("mark: got %s, want 1.0000000000", upd.MarkPrice)
	}
	if upd.BaseAssetReserve != m.AMM.BaseAssetReserve || upd.SqrtK != m.AMM.SqrtK {
		t.Errorf("reserves not copied: %+v", upd)
	}
	if upd.EventType != event.EventTypeOpenPosition.String() {
		t.Errorf("event type: got %s", upd.EventType)
	}
}

func TestNewMarketUpdate_NoMarket(t *testing.T) {
	out := core.CoreOutput{Envelope: &event.EventEnvelope{Sequence: 1, EventType: event.EventTypeDeposit}}
	if _, ok := stream.NewMarketUpdate(out); ok {
		t.Error("an output without a market must not produce an update")
	}
}

// ===========================================================================
// Websocket fan-out
// ===========================================================================

func TestHub_BroadcastsCommittedMarkets(t *testing.T) {
	h := newTestHub(t)
	conn := h.dial(t, "", 1)

	h.in <- output(mustMarket(t, 0), 7)

	upd := readUpdate(t, conn)
	if upd.Type != "market" || upd.Sequence != 7 {
		t.Errorf("got type=%s seq=%d, want market/7", upd.Type, upd.Sequence)
	}
}

func TestHub_MarketFilter(t *testing.T) {
	h := newTestHub(t)
	conn := h.dial(t, "?market=2", 1)

	h.in <- output(mustMarket(t, 1), 1)
	h.in <- output(mustMarket(t, 2), 2)

	upd := readUpdate(t, conn)
	if upd.MarketIndex != 2 || upd.Sequence != 2 {
		t.Errorf("got market=%d seq=%d, want the market 2 update only", upd.MarketIndex, upd.Sequence)
	}
}

func TestHub_InvalidMarketFilter(t *testing.T) {
	h := newTestHub(t)
	resp, err := http.Get(h.srv.URL + "/ws?market=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	h := newTestHub(t)
	conn := h.dial(t, "", 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("clients after close: got %d, want 0", h.hub.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
