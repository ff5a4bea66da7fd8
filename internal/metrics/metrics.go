package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestration engine.
type Metrics struct {
	BinsProcessed   prometheus.Counter
	BinsQueued      prometheus.Counter
	FeedReconnects  prometheus.Counter
	GapsDetected    prometheus.Counter
	ReplayBins      prometheus.Counter
	TenantFailures  *prometheus.CounterVec // labels: tenant
	Callbacks       prometheus.Counter
	SnapshotPubErrs prometheus.Counter

	StepDuration    *prometheus.HistogramVec // labels: step
	ArchiveCommit   prometheus.Histogram
	WatermarkDelay  prometheus.Gauge
	ReplayActive    prometheus.Gauge
	FanoutDrops     *prometheus.CounterVec // labels: subscriber
	LiveQueueLength prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BinsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_bins_processed_total",
			Help: "Bins fully processed (all tenants succeeded, watermark advanced)",
		}),
		BinsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_bins_queued_total",
			Help: "Live bins queued because a replay was active",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_feed_reconnects_total",
			Help: "Bin feed reconnection attempts",
		}),
		GapsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_gaps_detected_total",
			Help: "Timeline gaps flagged by the gap detector",
		}),
		ReplayBins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_replay_bins_total",
			Help: "Bins backfilled by the replay coordinator",
		}),
		TenantFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simengine_tenant_failures_total",
			Help: "Per-tenant pipeline failures (by tenant)",
		}, []string{"tenant"}),
		Callbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_snapshot_callbacks_total",
			Help: "Snapshot callback notifications fired (once per bin)",
		}),
		SnapshotPubErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_snapshot_publish_errors_total",
			Help: "Failed snapshot publishes to downstream session services",
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simengine_pipeline_step_duration_seconds",
			Help:    "Per-tenant pipeline step latency (by step)",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}, []string{"step"}),
		ArchiveCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simengine_archive_commit_duration_seconds",
			Help:    "SQLite bin archive batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		WatermarkDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simengine_watermark_delay_seconds",
			Help: "Age of the group watermark vs wall clock",
		}),
		ReplayActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simengine_replay_active",
			Help: "1 while a replay/backfill is in flight, else 0",
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simengine_fanout_drops_total",
			Help: "Bins dropped for a slow fan-out subscriber (by subscriber)",
		}, []string{"subscriber"}),
		LiveQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simengine_replay_live_queue_length",
			Help: "Live bins currently queued behind an active replay",
		}),
	}

	prometheus.MustRegister(
		m.BinsProcessed, m.BinsQueued, m.FeedReconnects, m.GapsDetected,
		m.ReplayBins, m.TenantFailures, m.Callbacks, m.SnapshotPubErrs,
		m.StepDuration, m.ArchiveCommit, m.WatermarkDelay, m.ReplayActive,
		m.FanoutDrops, m.LiveQueueLength,
	)
	return m
}

// HealthStatus represents the engine health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastBinTime    time.Time `json:"last_bin_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Replaying      bool      `json:"replaying"`
	Group          string    `json:"group"`
	Tenants        int       `json:"tenants"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBinTime(t time.Time) {
	h.mu.Lock()
	h.LastBinTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetReplaying(v bool) {
	h.mu.Lock()
	h.Replaying = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetGroup(group string, tenants int) {
	h.mu.Lock()
	h.Group = group
	h.Tenants = tenants
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	binAge := ""
	if !h.LastBinTime.IsZero() {
		binAge = time.Since(h.LastBinTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastBinTime     string  `json:"last_bin_time"`
		BinAge          string  `json:"bin_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Replaying       bool    `json:"replaying"`
		Group           string  `json:"group"`
		Tenants         int     `json:"tenants"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastBinTime:     h.LastBinTime.Format(time.RFC3339),
		BinAge:          binAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Replaying:       h.Replaying,
		Group:           h.Group,
		Tenants:         h.Tenants,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
