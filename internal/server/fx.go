// Package server wires the datasheet service dependencies and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/api"
	"github.com/JakeFAU/datasheet-crawler/internal/clock/system"
	"github.com/JakeFAU/datasheet-crawler/internal/config"
	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/dispatcher"
	"github.com/JakeFAU/datasheet-crawler/internal/extract"
	autofetcher "github.com/JakeFAU/datasheet-crawler/internal/fetcher/auto"
	collyfetcher "github.com/JakeFAU/datasheet-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/datasheet-crawler/internal/fetcher/headless"
	stealthfetcher "github.com/JakeFAU/datasheet-crawler/internal/fetcher/stealth"
	"github.com/JakeFAU/datasheet-crawler/internal/hash/sha256"
	"github.com/JakeFAU/datasheet-crawler/internal/headless/detector"
	"github.com/JakeFAU/datasheet-crawler/internal/id/uuid"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
	"github.com/JakeFAU/datasheet-crawler/internal/metrics"
	"github.com/JakeFAU/datasheet-crawler/internal/notify"
	"github.com/JakeFAU/datasheet-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/datasheet-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/datasheet-crawler/internal/render"
	"github.com/JakeFAU/datasheet-crawler/internal/sites"
	gcsstorage "github.com/JakeFAU/datasheet-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/datasheet-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/datasheet-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/datasheet-crawler/internal/storage/postgres"
	"github.com/JakeFAU/datasheet-crawler/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	ledger    *memorystorage.Ledger
	worker    *worker.Worker

	headless        *headlessfetcher.Fetcher
	stealth         *stealthfetcher.Fetcher
	gcsStore        *gcsstorage.BlobStore
	archive         *pgstore.ResultArchive
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher

	closeOnce sync.Once
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("output_dir", cfg.Output.Dir),
	)

	if err := app.buildPipeline(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.dispatch = dispatcher.New(
		app.ledger,
		uuid.New(),
		system.New(),
		app.worker,
		dispatcher.Config{FixedCallbackURL: cfg.Callback.FixedURL},
		logger.Named("dispatcher"),
	)
	app.apiServer = api.NewServer(app.dispatch, app.ledger, *cfg, logger.Named("api"))
	return app, nil
}

// buildPipeline assembles fetchers, strategies, renderer, sinks and the worker.
func (a *App) buildPipeline(ctx context.Context) error {
	cfg := a.cfg
	clock := system.New()
	ids := uuid.New()

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Fetch.PerHostRPS,
		DefaultBurst: cfg.Fetch.PerHostBurst,
		OnDelay:      metrics.ObserveRateLimitDelay,
	})
	a.logger.Info("per-host rate limiter",
		zap.Float64("rps", cfg.Fetch.PerHostRPS),
		zap.Int("burst", cfg.Fetch.PerHostBurst),
	)

	var static datasheet.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, limiter)

	tk := sites.Toolkit{
		HTTPClient: &http.Client{Timeout: cfg.FetchTimeout()},
		Logger:     a.logger.Named("extract"),
		PDF: extract.PDFConfig{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		},
	}
	tk.Images = extract.NewImageDownloader(&http.Client{}, extract.ImageDownloaderConfig{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
	}, a.logger.Named("images"))

	if cfg.Headless.Enabled {
		var err error
		a.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			ProductWait:       time.Duration(cfg.Headless.ProductWaitSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("headless fetcher init failed: %w", err)
		}
		browser := limiter.Throttle(a.headless)
		tk.Headless = browser
		// Static sites that turn out to be JS shells are retried in the browser.
		static = autofetcher.New(static, browser,
			detector.NewHeuristic(cfg.Headless.PromotionThresh), a.logger.Named("auto_fetcher"))
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}
	tk.Static = static

	if cfg.Stealth.Enabled {
		var err error
		a.stealth, err = stealthfetcher.New(stealthfetcher.Config{
			ChromePath:        cfg.Stealth.ChromePath,
			RemoteURL:         cfg.Stealth.RemoteURL,
			MaxParallel:       cfg.Stealth.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Stealth.NavTimeoutSec) * time.Second,
			ProductWait:       time.Duration(cfg.Stealth.ProductWaitSec) * time.Second,
		}, a.logger.Named("stealth"))
		if err != nil {
			return fmt.Errorf("stealth fetcher init failed: %w", err)
		}
		tk.Stealth = limiter.Throttle(a.stealth)
		a.logger.Info("using stealth fetcher", zap.Int("max_parallel", cfg.Stealth.MaxParallel))
	}

	registry := sites.NewRegistry()
	sites.RegisterBuiltins(registry, tk)
	router := sites.NewRouter(sites.DefaultTable())
	a.logger.Info("site table loaded",
		zap.Int("sites", len(router.Definitions())),
		zap.Int("strategies", len(registry.Keys())),
	)

	renderer, err := render.New(render.Config{
		OutputDir: cfg.Output.Dir,
		Letterhead: render.Letterhead{
			Company:  cfg.Render.Company,
			TaxID:    cfg.Render.TaxID,
			Address:  cfg.Render.Address,
			LogoPath: cfg.Render.LogoPath,
		},
		ImageSize:      cfg.Render.ImageSize,
		MaxDescription: cfg.Render.MaxDescription,
	}, clock, ids.ShortToken, a.logger.Named("render"))
	if err != nil {
		return fmt.Errorf("renderer init failed: %w", err)
	}

	opts := []worker.Option{worker.WithDigests(sha256.New())}
	mirror, err := a.setupMirror(ctx)
	if err != nil {
		return err
	}
	if mirror != nil {
		opts = append(opts, worker.WithMirror(mirror))
	}
	if err := a.setupArchive(ctx); err != nil {
		return err
	}
	if a.archive != nil {
		opts = append(opts, worker.WithArchive(a.archive))
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		opts = append(opts, worker.WithPublisher(publisher))
	}

	sender := notify.NewSender(&http.Client{}, notify.SenderConfig{
		Timeout:   cfg.CallbackTimeout(),
		UserAgent: cfg.Callback.UserAgent,
	}, a.logger.Named("notify"))

	a.ledger = memorystorage.NewLedger()
	a.worker = worker.New(
		router,
		registry,
		renderer,
		a.ledger,
		sender,
		clock,
		worker.Config{
			OutputDir:    cfg.Output.Dir,
			BaseURL:      cfg.Server.BaseURL,
			MirrorPrefix: cfg.Storage.Prefix,
			Topic:        cfg.PubSub.TopicName,
		},
		a.logger.Named("worker"),
		opts...,
	)
	return nil
}

func (a *App) setupMirror(ctx context.Context) (datasheet.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcsStore = store
		a.logger.Info("mirroring datasheets to GCS", zap.String("bucket", a.cfg.Storage.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("mirroring datasheets locally", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return store, nil
	default:
		a.logger.Debug("datasheet mirror disabled")
		return nil, nil
	}
}

func (a *App) setupArchive(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Debug("no database DSN, result archive disabled")
		return nil
	}
	archive, err := pgstore.NewResultArchive(ctx, pgstore.ResultArchiveConfig{
		DSN:             a.cfg.Database.DSN,
		Table:           a.cfg.Database.Table,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("result archive init failed: %w", err)
	}
	a.archive = archive
	a.logger.Info("result archive initialized", zap.String("table", a.cfg.Database.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (datasheet.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Debug("no Pub/Sub topic configured, fan-out disabled")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = a.pubsubClient.Publisher(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(a.pubsubPublisher), nil
}

// Run serves HTTP until the context is canceled or a signal arrives, then
// drains in-flight workers for at most the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: time.Duration(a.cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.dispatch.Wait(shutdownCtx); err != nil {
		a.logger.Warn("in-flight requests abandoned", zap.Error(err))
	}
	return a.Close()
}

// Close releases browsers, clients and pools. It is safe to call twice.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeInfrastructure()
		// Sync on stderr-backed loggers fails with EINVAL on some platforms.
		_ = a.logger.Sync()
	})
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.stealth != nil {
		if err := a.stealth.Close(); err != nil {
			a.logger.Warn("stealth browser close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.archive != nil {
		a.archive.Close()
	}
}

// ExtractOnce runs the full pipeline for one URL in-process, without a
// callback, and returns the terminal record.
func (a *App) ExtractOnce(ctx context.Context, rawURL string) (datasheet.RequestRecord, error) {
	id, err := uuid.New().NewID()
	if err != nil {
		return datasheet.RequestRecord{}, err
	}
	record := datasheet.RequestRecord{
		InternalID: id,
		SourceURL:  rawURL,
		Origin:     datasheet.OriginFlexible,
		Status:     datasheet.StatusProcessing,
		CreatedAt:  system.New().Now(),
	}
	if err := a.ledger.Put(ctx, record); err != nil {
		return datasheet.RequestRecord{}, fmt.Errorf("record request: %w", err)
	}
	return a.worker.Process(ctx, record), nil
}
