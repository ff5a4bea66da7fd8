// Package equity holds the group-level equity snapshot state: the latest
// price book fed by exchange updates and the listener registry notified
// once per bin. Listeners are shared at the group level, not per tenant.
package equity

import (
	"log"
	"sync"

	"exchange-simv1/internal/model"
)

// Callback receives the prepared snapshot after a bin completes.
type Callback func(snap model.Snapshot)

// Manager is the shared group-level equity manager.
type Manager struct {
	mu        sync.RWMutex
	callbacks []Callback
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{}
}

// RegisterCallback subscribes a listener. Callbacks fire once per bin,
// in registration order, after all tenants have been attempted.
func (m *Manager) RegisterCallback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// ListenerCount returns the number of registered callbacks.
func (m *Manager) ListenerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.callbacks)
}

// PrepareSnapshot derives the listener payload from a bin's equity bars.
func (m *Manager) PrepareSnapshot(bin model.Bin) model.Snapshot {
	snap := model.Snapshot{
		TS:      bin.TS,
		Entries: make([]model.SnapshotEntry, 0, len(bin.Bars)),
	}
	for _, bar := range bin.Bars {
		snap.Entries = append(snap.Entries, model.SnapshotEntry{
			Symbol:   bar.Symbol,
			Currency: bar.Currency,
			Close:    bar.Close,
			VWAP:     bar.VWAP,
			Volume:   bar.Volume,
		})
	}
	return snap
}

// NotifyCallbacks delivers a snapshot to every registered listener.
// A listener panic is recovered and logged so one bad subscriber cannot
// take down the engine goroutine.
func (m *Manager) NotifyCallbacks(snap model.Snapshot) {
	m.mu.RLock()
	callbacks := make([]Callback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	for i, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[equity] snapshot callback %d panicked: %v", i, r)
				}
			}()
			cb(snap)
		}()
	}
}
