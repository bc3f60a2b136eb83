// The worker binary runs the whole delivery engine: the scheduler sweep,
// the stats aggregator, and the HTTP surface for campaign management and
// tracking callbacks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/mailing"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/renderer"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/resolver"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/worker"
)

func main() {
	if err := run(); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg.Logging)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	locks, redisClient := lockFactory(cfg.Redis, db)
	if redisClient != nil {
		defer redisClient.Close()
	}

	campaigns := postgres.NewCampaignRepo(db)
	subscribers := postgres.NewSubscriberRepo(db)
	subscriptions := postgres.NewSubscriptionRepo(db)
	lists := postgres.NewListRepo(db)
	templates := postgres.NewTemplateRepo(db)
	events := postgres.NewTrackingEventRepo(db)
	links := postgres.NewLinkRepo(db)
	progress := postgres.NewProgressRepo(db)

	signer := renderer.NewURLSigner(cfg.Tracking.SigningKey, cfg.Tracking.BaseURL)
	rend := renderer.New(links, signer, cfg.Tracking.TrackLinks)

	mailer, err := mailing.NewMailer(cfg.Mailer)
	if err != nil {
		return fmt.Errorf("build mailer: %w", err)
	}

	res := resolver.New(subscribers, subscriptions, lists)
	disp := worker.NewDispatcher(campaigns, subscribers, progress, rend, mailer)

	orch := worker.NewOrchestrator(campaigns, templates, progress, res, disp, locks)
	orch.SetBatchSize(cfg.Delivery.BatchSize)
	orch.SetConcurrency(cfg.Delivery.Concurrency)

	agg := worker.NewAggregator(campaigns, events, locks)
	agg.SetBatchSize(cfg.Delivery.AggregateBatch)

	sched := worker.NewScheduler(campaigns, orch, agg, cfg.Delivery.SweepInterval(), cfg.Delivery.AggregateInterval())
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	svc := campaign.NewService(campaigns, templates, lists, subscriptions)
	handlers := api.NewHandlers(api.HandlerDeps{
		Service:       svc,
		Campaigns:     campaigns,
		Subscribers:   subscribers,
		Subscriptions: subscriptions,
		Templates:     templates,
		Events:        events,
		Links:         links,
		Verifier:      signer,
		Renderer:      rend,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		sched.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	sched.Stop()
	logger.Info("worker stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	return config.LoadFromEnv(path)
}

func configureLogging(cfg config.LoggingConfig) {
	switch cfg.Level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}
	if cfg.RedactPII != nil {
		logger.SetRedactPII(*cfg.RedactPII)
	}
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// lockFactory prefers Redis when configured, falling back to Postgres
// advisory locks so a single-node deployment needs no Redis at all.
func lockFactory(cfg config.RedisConfig, db *sql.DB) (distlock.Factory, *redis.Client) {
	if cfg.Addr == "" {
		logger.Info("using postgres advisory locks")
		return distlock.PGFactory(db), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	logger.Info("using redis locks", "addr", cfg.Addr)
	return distlock.RedisFactory(client), client
}
