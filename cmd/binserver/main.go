// cmd/binserver — Demo WebSocket bin server.
// Broadcasts simulated one-minute equity bins for testing simengine without
// real exchange credentials. Bin JSON shape is identical to model.Bin.
//
// A virtual clock advances one minute per broadcast interval, so a full
// trading day replays in seconds. SKIP_MINUTES drops the Nth broadcasts
// entirely, which makes simengine's gap detector fire.
//
// Config (env vars):
//
//	BIN_SERVER_ADDR   listen address (default ":9101")
//	BIN_SYMBOLS       comma-separated SYMBOL:CCY:PRICE triples
//	                  (default "AAPL:USD:150,MSFT:USD:300")
//	BIN_INTERVAL_MS   broadcast interval milliseconds (default "1000")
//	BIN_START         virtual clock start, RFC3339 (default now truncated to minute)
//	SKIP_MINUTES      comma-separated broadcast ordinals to skip (default none)
//	TOTP_SECRET       when set, the X-TOTP dial header is validated
package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"

	"exchange-simv1/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol   string
	Currency string
	Price    decimal.Decimal
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop bin, simengine backfills from archive
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub, totpSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if totpSecret != "" && !totp.Validate(r.Header.Get("X-TOTP"), totpSecret) {
			log.Printf("[binserver] rejected %s: bad TOTP", r.RemoteAddr)
			http.Error(w, "invalid TOTP", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[binserver] upgrade error: %v", err)
			return
		}
		log.Printf("[binserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[binserver] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Bin generator ───────────────────────────────────────────────────────────

// walkPrice applies a small random walk (max 0.2% per minute).
func walkPrice(price decimal.Decimal, rng *rand.Rand) decimal.Decimal {
	pct := decimal.NewFromFloat((rng.Float64()*0.4 - 0.2) / 100.0)
	next := price.Add(price.Mul(pct)).Round(4)
	if next.LessThanOrEqual(decimal.Zero) {
		return price
	}
	return next
}

// makeBar builds one minute bar around the walked close price.
func makeBar(inst instrument, ts time.Time, rng *rand.Rand) model.EquityBar {
	spread := inst.Price.Mul(decimal.NewFromFloat(0.001))
	vol := int64(rng.Intn(50_000) + 1_000)
	return model.EquityBar{
		Symbol:   inst.Symbol,
		TS:       ts,
		Currency: inst.Currency,
		Open:     inst.Price.Sub(spread).Round(4),
		High:     inst.Price.Add(spread).Round(4),
		Low:      inst.Price.Sub(spread.Mul(decimal.NewFromInt(2))).Round(4),
		Close:    inst.Price,
		VWAP:     inst.Price,
		VWAS:     inst.Price.Mul(decimal.NewFromInt(vol)),
		VWAV:     decimal.NewFromInt(vol),
		Volume:   vol,
		Count:    rng.Intn(500) + 10,
	}
}

func runGenerator(h *hub, instruments []instrument, start time.Time, intervalMs int, skip map[int]bool) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	virtual := start
	ordinal := 0

	for range ticker.C {
		ordinal++
		ts := virtual
		virtual = virtual.Add(time.Minute)

		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price, rng)
		}

		if skip[ordinal] {
			log.Printf("[binserver] skipping bin #%d (%s)", ordinal, ts.Format(time.RFC3339))
			continue
		}

		bin := model.Bin{
			TS:   ts,
			Bars: make([]model.EquityBar, 0, len(instruments)),
			FX: []model.FXRate{
				{Base: "EUR", Quote: "USD", Rate: decimal.NewFromFloat(1.08), TS: ts},
			},
		}
		for _, inst := range instruments {
			bin.Bars = append(bin.Bars, makeBar(inst, ts, rng))
		}

		h.broadcast(bin.JSON())
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[binserver] starting demo bin server...")

	addr := envOrDefault("BIN_SERVER_ADDR", ":9101")
	symbolsEnv := envOrDefault("BIN_SYMBOLS", "AAPL:USD:150,MSFT:USD:300")
	intervalMs := envIntOrDefault("BIN_INTERVAL_MS", 1000)
	totpSecret := os.Getenv("TOTP_SECRET")

	start := time.Now().UTC().Truncate(time.Minute)
	if v := os.Getenv("BIN_START"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			log.Fatalf("[binserver] bad BIN_START %q: %v", v, err)
		}
		start = t.UTC().Truncate(time.Minute)
	}

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[binserver] no instruments configured via BIN_SYMBOLS")
	}
	skip := parseSkips(os.Getenv("SKIP_MINUTES"))

	log.Printf("[binserver] instruments: %d, virtual start: %s, interval: %dms, skips: %d",
		len(instruments), start.Format(time.RFC3339), intervalMs, len(skip))

	h := newHub()
	go runGenerator(h, instruments, start, intervalMs, skip)

	http.HandleFunc("/ws", wsHandler(h, totpSecret))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"binserver"}`)
	})

	log.Printf("[binserver] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[binserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 3)
		if len(seg) != 3 {
			log.Printf("[binserver] skipping invalid symbol spec: %q", part)
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(seg[2]))
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			log.Printf("[binserver] skipping symbol %q: bad price %q", seg[0], seg[2])
			continue
		}
		result = append(result, instrument{
			Symbol:   strings.TrimSpace(seg[0]),
			Currency: strings.TrimSpace(seg[1]),
			Price:    price,
		})
	}
	return result
}

// parseSkips parses "31,32,95" into the set of broadcast ordinals to drop.
func parseSkips(s string) map[int]bool {
	skip := make(map[int]bool)
	if s == "" {
		return skip
	}
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			log.Printf("[binserver] skipping invalid SKIP_MINUTES entry: %q", part)
			continue
		}
		skip[n] = true
	}
	return skip
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
