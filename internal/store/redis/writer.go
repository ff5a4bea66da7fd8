package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"exchange-simv1/internal/model"
)

const (
	watermarkKeyPrefix = "exchangesim:watermark:"
	snapshotChPrefix   = "pub:snapshot:"

	latestSnapshotTTL = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer persists group watermarks and publishes snapshots to downstream
// session services over PubSub. Implements model.WatermarkStore.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// LastSnapTime loads a group's watermark. Returns the zero time when no
// watermark has ever been persisted.
func (w *Writer) LastSnapTime(ctx context.Context, group string) (time.Time, error) {
	val, err := w.client.Get(ctx, watermarkKeyPrefix+group).Result()
	if err == goredis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis get watermark: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis parse watermark %q: %w", val, err)
	}
	return ts.UTC(), nil
}

// SetLastSnapTime persists a group's watermark.
func (w *Writer) SetLastSnapTime(ctx context.Context, group string, ts time.Time) error {
	err := w.client.Set(ctx, watermarkKeyPrefix+group, ts.UTC().Format(time.RFC3339), 0).Err()
	if err != nil {
		return fmt.Errorf("redis set watermark: %w", err)
	}
	return nil
}

// PublishSnapshot delivers a bin snapshot to subscribers on the group's
// PubSub channel and caches it under a latest key for late joiners.
func (w *Writer) PublishSnapshot(ctx context.Context, group string, snap model.Snapshot) error {
	data := snap.JSON()
	ch := snapshotChPrefix + group
	if err := w.client.Publish(ctx, ch, data).Err(); err != nil {
		return fmt.Errorf("redis publish snapshot: %w", err)
	}
	if err := w.client.Set(ctx, ch+":latest", data, latestSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis cache latest snapshot: %w", err)
	}
	return nil
}

// Close releases the client.
func (w *Writer) Close() error {
	return w.client.Close()
}
