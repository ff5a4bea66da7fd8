package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"exchange-simv1/internal/model"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStart_DeliversDecodedBins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := []byte(`{"ts":"2026-01-05T14:30:00Z","bars":[{"symbol":"AAPL","currency":"USD","close":"150.25","volume":1200}]}`)
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
		// Hold the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := New(Config{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	binCh := make(chan model.Bin, 1)
	done := make(chan struct{})
	go func() {
		c.Start(ctx, binCh)
		close(done)
	}()

	select {
	case bin := <-binCh:
		want := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
		if !bin.TS.Equal(want) {
			t.Errorf("bin TS = %v, want %v", bin.TS, want)
		}
		if len(bin.Bars) != 1 || bin.Bars[0].Symbol != "AAPL" {
			t.Errorf("bin bars = %+v, want one AAPL bar", bin.Bars)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no bin delivered within 2s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStart_ReconnectFlappingDoesNotLeakGoroutines(t *testing.T) {
	// Server accepts every dial and drops the connection immediately,
	// forcing the client through rapid reconnect cycles.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	c, err := New(Config{
		URL:               wsURL(srv),
		ReconnectDelay:    5 * time.Millisecond,
		MaxReconnectDelay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var reconnects int32
	c.OnReconnect = func() { atomic.AddInt32(&reconnects, 1) }

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	binCh := make(chan model.Bin, 1)
	done := make(chan struct{})
	go func() {
		c.Start(ctx, binCh)
		close(done)
	}()

	time.Sleep(400 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	if n := atomic.LoadInt32(&reconnects); n < 10 {
		t.Fatalf("expected repeated reconnects, got %d", n)
	}

	// Per-connection watchers must unwind once their attempt ends;
	// poll briefly to let in-flight ones finish.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("goroutines leaked across reconnects: before=%d after=%d",
		before, runtime.NumGoroutine())
}
