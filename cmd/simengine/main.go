// cmd/simengine — Market-data orchestration engine for one exchange group.
//
// Connects to the upstream bin feed (or cmd/binserver in staging), fans
// incoming bins out to the orchestration engine and the SQLite bin
// archive, processes each bin across all onboarded tenants, and
// publishes per-bin snapshots to downstream session services over Redis.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"exchange-simv1/config"
	"exchange-simv1/internal/account"
	"exchange-simv1/internal/bridge"
	"exchange-simv1/internal/equity"
	"exchange-simv1/internal/exchange"
	"exchange-simv1/internal/fxrate"
	"exchange-simv1/internal/logger"
	"exchange-simv1/internal/marketdata/bus"
	"exchange-simv1/internal/marketdata/feed"
	"exchange-simv1/internal/marketdata/replay"
	"exchange-simv1/internal/metrics"
	"exchange-simv1/internal/model"
	"exchange-simv1/internal/notification"
	"exchange-simv1/internal/orchestrator"
	"exchange-simv1/internal/orders"
	"exchange-simv1/internal/pipeline"
	"exchange-simv1/internal/portfolio"
	"exchange-simv1/internal/returns"
	redisstore "exchange-simv1/internal/store/redis"
	sqlitestore "exchange-simv1/internal/store/sqlite"
	"exchange-simv1/internal/tenant"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	slogger := logger.Init("simengine", slog.LevelInfo)

	cfg := config.Load()
	tenants := cfg.ParseTenants()
	slogger.Info("starting", "group", cfg.Group, "tenants", len(tenants))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetGroup(cfg.Group, len(tenants))
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite bin archive (off the hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	archive, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[simengine] sqlite init failed: %v", err)
	}
	defer archive.Close()
	archive.OnCommit = func(bins int, d time.Duration) {
		prom.ArchiveCommit.Observe(d.Seconds())
	}
	health.SetSQLiteOK(true)

	archiveReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[simengine] sqlite reader init failed: %v", err)
	}
	defer archiveReader.Close()

	// ---- Redis: watermark store + snapshot publisher ----
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[simengine] redis init failed: %v", err)
	}
	defer redisWriter.Close()
	health.SetRedisConnected(true)

	health.StartLivenessChecker(ctx, redisWriter.Client(), archive.DB(), 10*time.Second)

	// ---- Alerting ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.AlertWebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.AlertWebhookURL, "simengine")
	}

	// ---- Tenant onboarding ----
	registry := tenant.NewRegistry()
	seedCash := decimal.NewFromInt(int64(cfg.SeedCash))
	for _, id := range tenants {
		registry.Add(newTenant(id, seedCash))
		log.Printf("[simengine] onboarded tenant %s", id)
	}

	// ---- Group equity manager + session bridge ----
	eq := equity.New()
	snapBridge := bridge.New(redisWriter, cfg.Group)
	snapBridge.OnPublishError = func() { prom.SnapshotPubErrs.Inc() }
	eq.RegisterCallback(snapBridge.Callback())

	// ---- Pipeline ----
	pl := pipeline.New()
	pl.OnStepDuration = func(step string, d time.Duration) {
		prom.StepDuration.WithLabelValues(step).Observe(d.Seconds())
	}

	// ---- Replay coordinator + orchestration engine ----
	coordinator := replay.New(ctx, archiveReader, cfg.ReplayQueueCap)
	coordinator.OnBackfilledBin = func() { prom.ReplayBins.Inc() }
	coordinator.OnComplete = func(processed int) {
		prom.ReplayActive.Set(0)
		health.SetReplaying(false)
		log.Printf("[simengine] replay complete: %d bins", processed)
	}

	engine, err := orchestrator.New(ctx, cfg.Group, registry, pl, eq, coordinator, redisWriter)
	if err != nil {
		log.Fatalf("[simengine] engine init failed: %v", err)
	}
	engine.TenantDeadline = cfg.TenantDeadline()
	coordinator.SetProcessor(engine.ProcessBin)

	engine.OnBinProcessed = func() {
		prom.BinsProcessed.Inc()
		last := engine.LastSnapTime()
		health.SetLastBinTime(last)
		prom.WatermarkDelay.Set(time.Since(last).Seconds())
	}
	engine.OnBinQueued = func() {
		prom.BinsQueued.Inc()
		prom.LiveQueueLength.Set(float64(coordinator.QueueLen()))
	}
	engine.OnTenantFailure = func(id string) {
		prom.TenantFailures.WithLabelValues(id).Inc()
	}
	engine.OnCallbackNotified = func() { prom.Callbacks.Inc() }
	engine.OnBatchError = func(berr *orchestrator.BatchError, ts time.Time) {
		if err := notifier.Send(ctx, notification.BatchFailureAlert(cfg.Group, ts, berr.Failed, berr.Total)); err != nil {
			log.Printf("[simengine] batch-failure alert not delivered: %v", err)
		}
	}
	engine.Detector.OnGap = func(start, end time.Time) {
		prom.GapsDetected.Inc()
		prom.ReplayActive.Set(1)
		health.SetReplaying(true)
		if err := notifier.Send(ctx, notification.GapAlert(cfg.Group, start, end)); err != nil {
			log.Printf("[simengine] gap alert not delivered: %v", err)
		}
	}

	// ---- Fan-out: feed → engine + archive ----
	fanout := bus.New(256)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDrops.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}
	engineCh := fanout.Subscribe()
	archiveCh := fanout.Subscribe()

	binCh := make(chan model.Bin, 256)
	go fanout.Run(ctx, binCh)
	go archive.Run(ctx, archiveCh)
	go engine.Run(ctx, engineCh)

	// ---- Feed client ----
	feedClient, err := feed.New(feed.Config{
		URL:        cfg.FeedURL,
		APIKey:     cfg.FeedAPIKey,
		ClientCode: cfg.FeedClientCode,
		TOTPSecret: cfg.FeedTOTPSecret,
	})
	if err != nil {
		log.Fatalf("[simengine] feed init failed: %v", err)
	}
	feedClient.OnConnect = func() {
		health.SetFeedConnected(true)
	}
	feedClient.OnReconnect = func() {
		prom.FeedReconnects.Inc()
		health.SetFeedConnected(false)
	}

	go func() {
		if err := feedClient.Start(ctx, binCh); err != nil {
			log.Printf("[simengine] feed stopped: %v", err)
		}
	}()

	slogger.Info("running", "feed", cfg.FeedURL, "metrics", cfg.MetricsAddr)

	<-sigCh
	slogger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
}

// newTenant builds one tenant's full manager bundle. Every tenant gets
// the required exchange/portfolio/account managers plus the optional
// fx/returns/orders/cash-flow set, seeded with starting cash.
func newTenant(id string, seedCash decimal.Decimal) *tenant.Context {
	book := exchange.NewBook()
	pf := portfolio.New()
	acct := account.New(pf)
	acct.Deposit(account.Cash, seedCash)

	return tenant.NewContext(id, tenant.Managers{
		FX:        fxrate.New(),
		Exchange:  book,
		Portfolio: pf,
		Account:   acct,
		Returns:   returns.New(acct),
		Orders:    orders.New(book),
		CashFlow:  account.NewCashFlowLedger(),
	})
}
