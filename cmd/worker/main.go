package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"medikasir/backend/internal/cache"
	"medikasir/backend/internal/config"
	"medikasir/backend/internal/events"
	"medikasir/backend/internal/logger"
	"medikasir/backend/internal/metrics"
	"medikasir/backend/internal/notify"
	"medikasir/backend/internal/service"
	"medikasir/backend/internal/store"
	"medikasir/backend/internal/store/memory"
	pgstore "medikasir/backend/internal/store/postgres"
	"medikasir/backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("worker stopped with error", zap.Error(err))
	}
	log.Info("worker stopped")
}

// app is the wired runtime. consumer is nil when events are dispatched
// in-process.
type app struct {
	svc      *service.Service
	emitter  *notify.Emitter
	consumer *events.Consumer
	runner   *worker.Runner
	metrics  *metrics.Recorder
	closers  []func() error
}

func (a *app) close(log *zap.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := buildApp(startCtx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer a.close(log)

	server := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           metricsMux(a.metrics),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", cfg.Worker.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		a.runner.Start(gctx)
		return nil
	})
	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gctx)
		})
	}
	return g.Wait()
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	var repo interface {
		store.Repository
		notify.Sinks
	}
	if cfg.Database.URL != "" {
		pg, err := pgstore.New(ctx, cfg.Database.URL, pgstore.Options{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and database.url is set: %w", err)
		}
		repo = pg
		a.closers = append(a.closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	var client *redis.Client
	if cfg.Redis.Addr != "" {
		client = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, using in-process cache, dedup and bus", zap.Error(err))
			_ = client.Close()
			client = nil
		} else {
			a.closers = append(a.closers, client.Close)
			log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		}
	}

	var (
		summaryCache cache.SummaryCache  = cache.NoopSummaryCache{}
		deduper      notify.AlertDeduper = notify.NewMemoryDeduper()
	)
	if client != nil {
		summaryCache = cache.NewRedisSummaryCache(client)
		deduper = notify.NewRedisDeduper(client, "")
	}

	a.emitter = notify.NewEmitter(repo, deduper, notify.Config{
		Roles:               cfg.EOD.LowStockRoles,
		DefaultReorderLevel: cfg.EOD.DefaultReorderLevel,
		DedupWindow:         cfg.EOD.AlertDedupWindow,
	}, a.metrics, log.Named("emitter"))

	var publisher events.Publisher
	if client != nil {
		publisher = events.NewRedisStream(client, cfg.Worker.Stream)
		a.consumer = events.NewConsumer(client, a.emitter, events.ConsumerConfig{
			Stream:   cfg.Worker.Stream,
			Group:    cfg.Worker.ConsumerGroup,
			Consumer: cfg.Worker.ConsumerName,
		}, log.Named("consumer"))
	} else {
		bus := events.NewInMemoryBus(log.Named("bus"))
		bus.Subscribe(a.emitter, a.emitter.EventTypes()...)
		publisher = bus
	}

	a.svc = service.New(repo, service.Config{
		PriceTolerance:  cfg.EOD.PriceTolerance,
		VarianceRemark:  cfg.EOD.VarianceRemark,
		SummaryCacheTTL: cfg.EOD.SummaryCacheTTL,
		Publisher:       publisher,
		Cache:           summaryCache,
		Metrics:         a.metrics,
		Logger:          log,
	})

	a.runner = worker.NewRunner(log)
	a.runner.Register(worker.NewPreviewRefresher(a.svc, cfg.Worker.RefreshInterval, a.metrics, log.Named("refresher")))
	return a, nil
}

func metricsMux(recorder *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
