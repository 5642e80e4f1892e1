// autoapply-service
//
// Scrapes Chilean job portals (and Adzuna) on a schedule for every user with
// an active search filter, and runs the application pipeline:
//   - cron-scheduled scrape passes, bounded by per-portal daily quotas
//   - auto-apply of new matching postings, and manual apply over HTTP
//   - AI-generated cover letters and form answers with deterministic fallbacks
//   - submission to the portal and EVENT_APPLICATION_UPDATED on Redis
//
// Exposes a REST API (gin), /metrics, /health and the gRPC health service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"jobmate/autoapply-service/internal/ai"
	"jobmate/autoapply-service/internal/application"
	"jobmate/autoapply-service/internal/config"
	"jobmate/autoapply-service/internal/db"
	"jobmate/autoapply-service/internal/events"
	"jobmate/autoapply-service/internal/grpcserver"
	"jobmate/autoapply-service/internal/httpapi"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/notify"
	"jobmate/autoapply-service/internal/pacing"
	"jobmate/autoapply-service/internal/pipeline"
	"jobmate/autoapply-service/internal/portal"
	"jobmate/autoapply-service/internal/profile"
	"jobmate/autoapply-service/internal/queue"
	"jobmate/autoapply-service/internal/quota"
	"jobmate/autoapply-service/internal/scheduler"
	"jobmate/autoapply-service/internal/scraper"
	"jobmate/autoapply-service/internal/store"
	"jobmate/autoapply-service/migrations"
)

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[autoapply-service] Config error: %v", err)
	}

	lg := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format).
		With(logger.Fields{"service": cfg.App.Name, "version": cfg.App.Version})
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("service stopped with error", logger.Fields{"error": err.Error()})
		_ = lg.Sync()
		os.Exit(1)
	}
	lg.Info("stopped", nil)
}

func run(ctx context.Context, cfg *config.Config, lg logger.Logger) error {
	// ── Connections ─────────────────────────────────────────────────────────
	conns, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer conns.Close()

	if conns.SQL != nil && cfg.Database.Postgres.AutoMigrate {
		if err := migrations.Run(conns.SQL); err != nil {
			return err
		}
		lg.Info("migrations applied", nil)
	}

	// ── Backends ────────────────────────────────────────────────────────────
	var st store.Store = store.NewMemory()
	if conns.SQL != nil {
		st = store.NewPostgres(conns.SQL)
	}

	var tracker quota.Tracker = quota.NewMemory(cfg.Quota.PortalLimits(), nil)
	if cfg.Quota.Backend == config.DriverRedis {
		tracker = quota.NewRedis(conns.Redis, cfg.Quota.PortalLimits(), nil)
	}

	scrapeQ, appQ, closeQueues := newQueues(cfg, conns)
	dispatcher := queue.NewDispatcher(scrapeQ, appQ)

	var pub events.Publisher = events.Nop{}
	if conns.Redis != nil {
		pub = events.NewRedisPublisher(conns.Redis, lg)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifications.Email.Enabled {
		ses, err := notify.NewSESFromRegion(ctx, cfg.Notifications.Email.Region, cfg.Notifications.Email.FromEmail)
		if err != nil {
			return err
		}
		notifier = ses
	}

	// ── Domain services ─────────────────────────────────────────────────────
	provider := ai.NewService(st, ai.NewGoogleAIFactory(cfg.AI.Model, cfg.AI.Temperature), config.Duration(cfg.AI.Timeout), lg)
	pacer := pacing.New()
	portals := portal.FromConfig(cfg.Portals, cfg.Pacing, pacer, lg)

	apps := application.NewService(st, dispatcher, pub, lg).WithProvider(provider)
	profiles := profile.NewService(st, provider, lg)
	processor := pipeline.NewProcessor(st, provider, portals, pub, notifier, lg)
	worker := scraper.NewWorker(st, portals, tracker, pacer, apps, pub, lg, scraper.Options{
		FetchLimit:   cfg.Portals.FetchLimit,
		FetchTimeout: config.Duration(cfg.Portals.FetchTimeout),
		PortalDelay: pacing.Range{
			Min: config.Duration(cfg.Pacing.PortalMin),
			Max: config.Duration(cfg.Pacing.PortalMax),
		},
	})
	sched := scheduler.New(st, dispatcher, cfg.Scheduler.IntervalHours, cfg.Scheduler.RunOnStart, lg)

	scrapePool := queue.NewPool(queue.KindScrapePass, scrapeQ, cfg.Queue.ScrapeWorkers,
		config.Duration(cfg.Queue.PassTimeout), worker.Handle, lg)
	appPool := queue.NewPool(queue.KindProcessApplication, appQ, cfg.Queue.Workers,
		config.Duration(cfg.Queue.TaskTimeout), processor.Handle, lg)

	// ── Servers ─────────────────────────────────────────────────────────────
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	router := httpapi.NewRouter(profiles, apps, sched, httpapi.Options{
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		MetricsPath: metricsPath,
		Checks:      map[string]httpapi.Check{"backends": conns.Ping},
	}, lg)
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}

	grpcSrv := grpcserver.New(map[string]grpcserver.Check{"backends": conns.Ping}, 10*time.Second, lg)
	grpcLis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	// ── Run ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Scheduler.Enabled {
		if err := sched.Start(gctx); err != nil {
			_ = grpcLis.Close()
			return err
		}
	} else {
		lg.Info("scheduler disabled, passes only start on demand", nil)
	}

	g.Go(func() error { return scrapePool.Run(gctx) })
	g.Go(func() error { return appPool.Run(gctx) })
	g.Go(func() error {
		lg.Info("http listening", logger.Fields{"addr": httpSrv.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return grpcSrv.Serve(grpcLis) })
	g.Go(func() error {
		grpcSrv.Watch(gctx)
		return nil
	})

	// ── Graceful shutdown ───────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
		defer cancel()

		if cfg.Scheduler.Enabled {
			sched.Stop()
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			lg.Warn("http shutdown error", logger.Fields{"error": err.Error()})
		}
		grpcSrv.Stop(shutdownCtx)
		closeQueues()
		return nil
	})

	return g.Wait()
}

// newQueues builds the scrape and application queues on the configured
// driver. The returned func releases in-process queues on shutdown.
func newQueues(cfg *config.Config, conns *db.Connections) (scrape, apps queue.Queue, closeFn func()) {
	if cfg.Queue.Driver == config.DriverRedis {
		return queue.NewRedis(conns.Redis, string(queue.KindScrapePass)),
			queue.NewRedis(conns.Redis, string(queue.KindProcessApplication)),
			func() {}
	}
	s := queue.NewMemory(cfg.Queue.Buffer)
	a := queue.NewMemory(cfg.Queue.Buffer)
	return s, a, func() {
		_ = s.Close()
		_ = a.Close()
	}
}
