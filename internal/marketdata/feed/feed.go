// Package feed provides the WebSocket bin feed client. It connects to
// the upstream market-data provider (or cmd/binserver in staging),
// authenticates with an API key plus a TOTP code when the provider
// requires one, and pushes decoded bins into the pipeline channel.
//
// The expected JSON message format on the wire is identical to model.Bin:
//
//	{"ts":"2024-01-02T14:31:00Z","bars":[{"symbol":"AAPL",...}],"fx":[...]}
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"exchange-simv1/internal/model"
)

// Config holds configuration for the bin feed client.
type Config struct {
	// URL of the bin WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// APIKey and ClientCode identify this engine to the provider.
	// Sent as headers on dial; empty values are omitted.
	APIKey     string
	ClientCode string

	// TOTPSecret, when set, generates a fresh TOTP code for every dial
	// (providers rotate the challenge per connection).
	TOTPSecret string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client connects to the bin feed and pushes model.Bin values into binCh.
type Client struct {
	cfg Config

	// Optional hooks — called on each successful dial and on each
	// disconnect before the reconnection backoff.
	OnConnect   func()
	OnReconnect func()
}

// New creates a Client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// dialHeader builds the auth headers for one connection attempt.
func (c *Client) dialHeader() (http.Header, error) {
	h := http.Header{}
	if c.cfg.APIKey != "" {
		h.Set("X-API-Key", c.cfg.APIKey)
	}
	if c.cfg.ClientCode != "" {
		h.Set("X-Client-Code", c.cfg.ClientCode)
	}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return nil, fmt.Errorf("feed: generate totp: %w", err)
		}
		h.Set("X-TOTP", code)
	}
	return h, nil
}

// Start connects to the feed and streams bins into binCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (c *Client) Start(ctx context.Context, binCh chan<- model.Bin) error {
	delay := c.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.runOnce(ctx, binCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (c *Client) runOnce(ctx context.Context, binCh chan<- model.Bin) error {
	header, err := c.dialHeader()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", c.cfg.URL)
	if c.OnConnect != nil {
		c.OnConnect()
	}

	// Async context watcher — closes the connection when ctx is cancelled.
	// done releases the watcher when this attempt ends, so reconnect
	// cycles don't pile up blocked goroutines.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Check if it's a context cancellation
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var bin model.Bin
		if err := json.Unmarshal(raw, &bin); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if bin.TS.IsZero() {
			log.Printf("[feed] skipping bin with zero timestamp")
			continue
		}

		select {
		case binCh <- bin:
		case <-ctx.Done():
			return nil
		}
	}
}
