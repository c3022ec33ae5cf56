// Package server builds the job crawler's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/api"
	"github.com/JakeFAU/sitemap-job-crawler/internal/archive"
	"github.com/JakeFAU/sitemap-job-crawler/internal/clock/system"
	"github.com/JakeFAU/sitemap-job-crawler/internal/config"
	"github.com/JakeFAU/sitemap-job-crawler/internal/coordinator"
	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/sitemap-job-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/sitemap-job-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/sitemap-job-crawler/internal/hash/sha256"
	"github.com/JakeFAU/sitemap-job-crawler/internal/id/uuid"
	"github.com/JakeFAU/sitemap-job-crawler/internal/logging"
	"github.com/JakeFAU/sitemap-job-crawler/internal/metrics"
	"github.com/JakeFAU/sitemap-job-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/sitemap-job-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/sitemap-job-crawler/internal/reconcile"
	"github.com/JakeFAU/sitemap-job-crawler/internal/scheduler"
	"github.com/JakeFAU/sitemap-job-crawler/internal/sitemap"
	gcsstorage "github.com/JakeFAU/sitemap-job-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitemap-job-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitemap-job-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitemap-job-crawler/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/sitemap-job-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/sitemap-job-crawler/internal/worker"
)

const headerTimeout = 5 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       crawler.JobStore
	coordinator *coordinator.Coordinator
	apiServer   *api.Server
	scheduler   *scheduler.Scheduler
	closers     []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("sitemap", cfg.Sitemap.URL),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("fetcher", cfg.Fetcher.Mode),
		zap.String("status_mode", cfg.Status.Mode),
	)

	if err := app.build(ctx); err != nil {
		app.closeAll()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	store, err := a.setupStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	sitemapFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.HTTPTimeout(),
	})
	pageFetcher, err := a.setupPageFetcher(sitemapFetcher)
	if err != nil {
		return err
	}

	var limiter crawler.Limiter
	if a.cfg.Status.RateLimit.RPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Status.RateLimit.RPS,
			Burst: a.cfg.Status.RateLimit.Burst,
		})
	}

	clock := system.New()
	deps := coordinator.Deps{
		Sitemap: sitemap.New(sitemapFetcher, sitemap.Config{
			SkipMalformedIDs: a.cfg.Sitemap.SkipMalformedIDs,
		}, a.logger.Named("sitemap")),
		Reconciler: reconcile.New(store, a.logger.Named("reconcile")),
		Status: worker.NewStatusUpdater(store, pageFetcher, limiter, clock, worker.Config{
			Mode:          worker.Mode(a.cfg.Status.Mode),
			Workers:       a.cfg.Status.Workers,
			TitleSelector: a.cfg.Status.TitleSelector,
		}, a.logger.Named("status")),
		IDs:   uuid.New(),
		Clock: clock,
	}

	blobStore, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	if blobStore != nil {
		deps.Archiver = archive.New(blobStore, sha256.New(), clock, a.cfg.Archive.Prefix, a.logger.Named("archive"))
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		deps.Publisher = publisher
	}

	a.coordinator = coordinator.New(deps, coordinator.Config{
		SitemapURL: a.cfg.Sitemap.URL,
		Topic:      a.cfg.PubSub.TopicName,
	}, a.logger.Named("coordinator"))

	a.apiServer = api.NewServer(a.coordinator, store, api.Config{
		RandomJobsCount: a.cfg.API.RandomJobsCount,
		RequestTimeout:  a.cfg.HTTPTimeout() * 2,
		CrawlTimeout:    a.cfg.CrawlTimeout(),
	}, a.logger.Named("api"))

	if a.cfg.Schedule.Cron != "" {
		a.scheduler, err = scheduler.New(a.cfg.Schedule.Cron, a.coordinator, a.logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
	}
	return nil
}

func (a *App) setupStore(ctx context.Context) (crawler.JobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StoragePostgres:
		a.logger.Info("using postgres job store", zap.String("table", a.cfg.Storage.Table))
		store, err := pgstore.NewJobStore(ctx, pgstore.Config{
			DSN:   a.cfg.Storage.DSN,
			Table: a.cfg.Storage.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres job store init failed: %w", err)
		}
		a.addCloser("postgres job store", store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		return store, nil
	case config.StorageSQLite:
		a.logger.Info("using sqlite job store", zap.String("path", a.cfg.Storage.Path))
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{
			Path:  a.cfg.Storage.Path,
			Table: a.cfg.Storage.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("sqlite job store init failed: %w", err)
		}
		a.addCloser("sqlite job store", store.Close)
		return store, nil
	default:
		a.logger.Warn("using in-memory job store, records do not survive a restart")
		return memorystorage.NewJobStore(), nil
	}
}

func (a *App) setupPageFetcher(fallback crawler.Fetcher) (crawler.Fetcher, error) {
	if a.cfg.Fetcher.Mode != config.FetcherHeadless {
		return fallback, nil
	}
	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Fetcher.MaxParallel,
		UserAgent:         a.cfg.HTTP.UserAgent,
		NavigationTimeout: a.cfg.NavTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.addCloser("headless fetcher", headless.Close)
	a.logger.Info("job pages fetched with headless chrome", zap.Int("max_parallel", a.cfg.Fetcher.MaxParallel))
	return headless, nil
}

// setupArchive returns a nil store when archiving is disabled.
func (a *App) setupArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.addCloser("gcs client", blobStore.Close)
		a.logger.Info("archiving sitemaps to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return blobStore, nil
	case config.ArchiveLocal:
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving sitemaps to disk", zap.String("path", a.cfg.Archive.BaseDir))
		return blobStore, nil
	case config.ArchiveMemory:
		a.logger.Info("archiving sitemaps in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

// setupPublisher returns a nil publisher when Pub/Sub is not configured.
func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, run events are not published")
		return nil, nil
	}
	publisher, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.addCloser("pubsub publisher", publisher.Close)
	a.logger.Info("publishing run events", zap.String("topic", a.cfg.PubSub.TopicName))
	return publisher, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Handler exposes the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Coordinator exposes the crawl coordinator.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// RunOnce performs a single crawl and waits for its status pass.
func (a *App) RunOnce(ctx context.Context) (crawler.RunSnapshot, error) {
	snap, err := a.coordinator.Start(ctx)
	if err != nil {
		return snap, fmt.Errorf("start crawl: %w", err)
	}
	snap, err = a.coordinator.Wait(ctx)
	if err != nil {
		return snap, fmt.Errorf("wait for crawl %s: %w", snap.RunID, err)
	}
	return snap, nil
}

// Run serves HTTP and the optional schedule until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: headerTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close stops the scheduler, cancels any in-flight status pass and releases
// infrastructure clients in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}
	if a.coordinator != nil {
		a.coordinator.Close()
	}
	a.closeAll()
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
