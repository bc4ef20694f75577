// Package stream pushes committed market state to websocket clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"VammLedger/internal/core"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/observability"
	"VammLedger/internal/state"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// MarketUpdate is sent after every committed command that touched a market.
type MarketUpdate struct {
	Type              string               `json:"type"`
	Sequence          int64                `json:"sequence"`
	EventType         string               `json:"event_type"`
	MarketIndex       uint16               `json:"market_index"`
	MarkPrice         string               `json:"mark_price"`
	BaseAssetReserve  int64                `json:"base_asset_reserve"`
	QuoteAssetReserve int64                `json:"quote_asset_reserve"`
	SqrtK             int64                `json:"sqrt_k"`
	PegMultiplier     int64                `json:"peg_multiplier"`
	UserLpShares      int64                `json:"user_lp_shares"`
	NetBase           int64                `json:"base_asset_amount_with_amm"`
	Funding           *state.FundingRecord `json:"funding,omitempty"`
}

// NewMarketUpdate builds the message for one committed output, or false
// when the command did not touch a market.
func NewMarketUpdate(out core.CoreOutput) (MarketUpdate, bool) {
	m := out.Market
	if m == nil || out.Envelope == nil {
		return MarketUpdate{}, false
	}
	mark, err := m.AMM.MarkPrice()
	if err != nil {
		return MarketUpdate{}, false
	}
	return MarketUpdate{
		Type:              "market",
		Sequence:          out.Envelope.Sequence,
		EventType:         out.Envelope.EventType.String(),
		MarketIndex:       m.MarketIndex,
		MarkPrice:         fpmath.FormatPrice(mark),
		BaseAssetReserve:  m.AMM.BaseAssetReserve,
		QuoteAssetReserve: m.AMM.QuoteAssetReserve,
		SqrtK:             m.AMM.SqrtK,
		PegMultiplier:     m.AMM.PegMultiplier,
		UserLpShares:      m.AMM.UserLpShares,
		NetBase:           m.AMM.BaseAssetAmountWithAmm,
		Funding:           out.Funding,
	}, true
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	market *uint16 // nil receives every market
}

// Hub manages websocket connections and fans market updates out to them.
// Slow clients are dropped rather than allowed to stall the feed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		log:     observability.NewLogger("stream"),
	}
}

// Run broadcasts committed outputs until ctx is done or in is closed.
func (h *Hub) Run(ctx context.Context, in <-chan core.CoreOutput) error {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-in:
			if !ok {
				return nil
			}
			if upd, ok := NewMarketUpdate(out); ok {
				h.Broadcast(upd)
			}
		}
	}
}

// Broadcast queues upd for every interested client.
func (h *Hub) Broadcast(upd MarketUpdate) {
	data, err := json.Marshal(upd)
	if err != nil {
		return
	}
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if c.market != nil && *c.market != upd.MarketIndex {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("dropping slow client")
		h.remove(c)
	}
	if h.metrics != nil {
		h.metrics.StreamBroadcasts.Inc()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request. ?market=N limits the feed to one market.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter *uint16
	if s := r.URL.Query().Get("market"); s != "" {
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			http.Error(w, "invalid market", http.StatusBadRequest)
			return
		}
		mi := uint16(v)
		filter = &mi
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), market: filter}
	h.add(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(n))
	}
	h.log.Debug().Int("clients", n).Msg("ws client connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(n))
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
