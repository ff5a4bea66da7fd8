// Package bridge connects the orchestration engine to downstream session
// services: it registers as a snapshot listener on the group equity
// manager and republishes each per-bin snapshot over Redis PubSub.
package bridge

import (
	"context"
	"log"
	"time"

	"exchange-simv1/internal/equity"
	"exchange-simv1/internal/model"
	redisstore "exchange-simv1/internal/store/redis"
)

const publishTimeout = 3 * time.Second

// Bridge forwards snapshots for one exchange group.
type Bridge struct {
	writer *redisstore.Writer
	group  string

	// OnPublishError is called when a publish fails (optional metrics hook).
	OnPublishError func()
}

// New creates a Bridge for the given group.
func New(writer *redisstore.Writer, group string) *Bridge {
	return &Bridge{writer: writer, group: group}
}

// Callback returns the listener to register on the equity manager.
// Publish failures are logged, never propagated — a flaky downstream
// must not fail the bin that produced the snapshot.
func (b *Bridge) Callback() equity.Callback {
	return func(snap model.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := b.writer.PublishSnapshot(ctx, b.group, snap); err != nil {
			log.Printf("[bridge] snapshot publish failed for bin %s: %v",
				snap.TS.Format(time.RFC3339), err)
			if b.OnPublishError != nil {
				b.OnPublishError()
			}
		}
	}
}
