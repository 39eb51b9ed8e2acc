package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/geojson"
	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/homeassistant"
	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/http"
	natsadapter "github.com/aaronvogel/hass-timezone-updater/internal/adapters/nats"
	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/postgres"
	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/valkey"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/boundary"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/ports"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/usecases"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/config"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/logging"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/metrics"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("timezone-tracker")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database. The journal is optional: a failed connection degrades to
	// tracking without transition history instead of refusing to start.
	var db *postgres.DB
	var journal ports.TransitionJournal
	if cfg.Database.Enabled {
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			slog.Warn("database unavailable, transitions will not be journaled", "error", err)
			db = nil
		} else {
			defer db.Close()
			journal = postgres.NewTransitionRepo(db)
			go reportDBPoolStats(ctx, db)
		}
	}

	// Cache, doubling as the restart-surviving state store
	var store ports.StateStore
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, state will not survive restarts", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		store = valkey.NewStateStore(cache)
	}

	// NATS
	var publisher ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer nc.Close()
		publisher = nc
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Home Assistant client: position source and notification sink
	var haClient *homeassistant.Client
	var notifier ports.ZoneNotifier
	if cfg.HomeAssistant.BaseURL != "" {
		eventType := ""
		if cfg.HomeAssistant.FireEvents {
			eventType = cfg.HomeAssistant.EventType
		}
		haClient = homeassistant.NewClient(homeassistant.Config{
			BaseURL:      cfg.HomeAssistant.BaseURL,
			Token:        cfg.HomeAssistant.Token,
			Timeout:      time.Duration(cfg.HomeAssistant.TimeoutSeconds) * time.Second,
			EventType:    eventType,
			ApplyService: cfg.HomeAssistant.ApplyService,
		})
		notifier = haClient
	}

	// Engine
	policy := usecases.NewCategoricalInterval(cfg.Tracker.MinIntervalSeconds, cfg.Tracker.MaxIntervalSeconds)
	tracker := usecases.NewTrackerService(usecases.TrackerConfig{
		DefaultEntityID:        cfg.Tracker.EntityID,
		HysteresisThreshold:    cfg.Tracker.HysteresisThreshold,
		SearchRadiusMiles:      cfg.Tracker.SearchRadiusMiles,
		UnresolvedRetrySeconds: cfg.Tracker.UnresolvedRetrySeconds,
		PendingProbeSeconds:    cfg.Tracker.PendingProbeSeconds,
	}, policy, journal, store, publisher, notifier)

	// Boundary dataset
	loader := geojson.NewLoader(cfg.Dataset.Path, cfg.Dataset.Region)
	var fetcher ports.BoundaryFetcher
	if cfg.Dataset.URL != "" {
		fetcher = geojson.NewFetcher(cfg.Dataset.URL, cfg.Dataset.Path, cfg.Dataset.Region)
	}
	datasets := usecases.NewDatasetService(tracker, loader, fetcher, boundary.CompileOptions{
		AdjacencyToleranceDeg: cfg.Dataset.AdjacencyToleranceDeg,
	})

	if err := initialLoad(ctx, datasets, fetcher, cfg.Dataset.Path); err != nil {
		slog.Warn("starting without a boundary dataset", "error", err)
	}

	if cfg.Dataset.RefreshDays > 0 && fetcher != nil {
		go datasets.RefreshLoop(ctx, time.Duration(cfg.Dataset.RefreshDays)*24*time.Hour)
	}

	// Broker-fed evaluation path
	var subscriber *natsadapter.Subscriber
	if sub, err := natsadapter.NewSubscriber(cfg.NATS.URL); err != nil {
		slog.Warn("nats subscriber unavailable", "error", err)
	} else {
		subscriber = sub
		defer subscriber.Close()
		err := subscriber.SubscribePositionSamples(ctx, func(ctx context.Context, sample *domain.PositionSample) error {
			_, err := tracker.Evaluate(ctx, sample)
			return err
		})
		if err != nil {
			slog.Warn("position sample subscription failed", "error", err)
		}
	}

	// Adaptive Home Assistant poll loop
	if cfg.HomeAssistant.Poll && haClient != nil {
		go pollLoop(ctx, haClient, tracker, cfg.Tracker.EntityID,
			cfg.Tracker.MinIntervalSeconds, cfg.Tracker.UnresolvedRetrySeconds)
	}

	deps := &http.Dependencies{
		Tracker:   tracker,
		Datasets:  datasets,
		Journal:   journal,
		Publisher: publisher,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Timezone Tracker",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("tracker server starting", "addr", addr, "entity", cfg.Tracker.EntityID)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// initialLoad brings up the first dataset: straight from disk when the file
// exists, via a download when it does not and a URL is configured.
func initialLoad(ctx context.Context, datasets *usecases.DatasetService, fetcher ports.BoundaryFetcher, path string) error {
	if _, err := os.Stat(path); err != nil {
		if fetcher == nil {
			return fmt.Errorf("dataset file %s missing and no download URL configured", path)
		}
		_, err := datasets.Refresh(ctx)
		return err
	}
	_, err := datasets.Reload(ctx)
	return err
}

// pollLoop polls the position source on the engine's adaptive schedule:
// tight near a border, relaxed deep inside a zone, backed off while the
// tracker has no fix.
func pollLoop(ctx context.Context, source ports.PositionProvider, tracker *usecases.TrackerService, entityID string, minSeconds, retrySeconds int) {
	next := time.Duration(minSeconds) * time.Second
	retry := time.Duration(retrySeconds) * time.Second

	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next = pollOnce(ctx, source, tracker, entityID, retry)
		timer.Reset(next)
	}
}

func pollOnce(ctx context.Context, source ports.PositionProvider, tracker *usecases.TrackerService, entityID string, retry time.Duration) time.Duration {
	start := time.Now()
	metrics.PositionPolls.WithLabelValues(entityID).Inc()

	sample, err := source.FetchSample(ctx, entityID)
	metrics.PositionPollDuration.WithLabelValues(entityID).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PositionPollErrors.WithLabelValues(entityID).Inc()
		if errors.Is(err, domain.ErrNoFix) {
			slog.Debug("no position fix", "entity", entityID, "error", err)
		} else {
			slog.Warn("position poll failed", "entity", entityID, "error", err)
		}
		return retry
	}

	ev, err := tracker.Evaluate(ctx, sample)
	if err != nil {
		slog.Warn("evaluation failed", "entity", entityID, "error", err)
		return retry
	}

	if ev.ZoneChanged {
		slog.Info("timezone changed",
			"entity", ev.EntityID,
			"zone", ev.ConfirmedZone,
			"next_interval", ev.NextInterval)
	}
	return time.Duration(ev.NextInterval) * time.Second
}

// reportDBPoolStats feeds pgx pool gauges on a fixed period.
func reportDBPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		}
	}
}
