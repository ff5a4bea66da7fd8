package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotEntry summarizes one symbol's state after a bin completes.
type SnapshotEntry struct {
	Symbol   string          `json:"symbol"`
	Currency string          `json:"currency"`
	Close    decimal.Decimal `json:"close"`
	VWAP     decimal.Decimal `json:"vwap"`
	Volume   int64           `json:"volume"`
}

// Snapshot is the derived payload delivered to registered listeners once
// per bin, after all tenants have been processed.
type Snapshot struct {
	TS      time.Time       `json:"ts"`
	Entries []SnapshotEntry `json:"entries"`
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *Snapshot) JSON() []byte {
	data, _ := json.Marshal(s)
	return data
}
