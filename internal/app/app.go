// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/classifier"
	"github.com/JakeFAU/pricewatch/internal/clock/system"
	"github.com/JakeFAU/pricewatch/internal/config"
	collyfetcher "github.com/JakeFAU/pricewatch/internal/fetcher/colly"
	"github.com/JakeFAU/pricewatch/internal/fetcher/headless"
	"github.com/JakeFAU/pricewatch/internal/fetcher/promote"
	sha "github.com/JakeFAU/pricewatch/internal/hash/sha256"
	"github.com/JakeFAU/pricewatch/internal/headless/detector"
	"github.com/JakeFAU/pricewatch/internal/id/uuid"
	"github.com/JakeFAU/pricewatch/internal/importer"
	"github.com/JakeFAU/pricewatch/internal/media"
	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/notify/discord"
	"github.com/JakeFAU/pricewatch/internal/orchestrator"
	"github.com/JakeFAU/pricewatch/internal/pricing"
	"github.com/JakeFAU/pricewatch/internal/publisher/pubsub"
	"github.com/JakeFAU/pricewatch/internal/sites"
	"github.com/JakeFAU/pricewatch/internal/storage/gcs"
	"github.com/JakeFAU/pricewatch/internal/storage/local"
	"github.com/JakeFAU/pricewatch/internal/storage/memory"
	"github.com/JakeFAU/pricewatch/internal/storage/postgres"
	"github.com/JakeFAU/pricewatch/internal/storage/sqlite"
	"github.com/JakeFAU/pricewatch/internal/telemetry"
)

// App holds all the shared, long-lived services for the application. It is
// built once at startup and handed to the command that runs.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        pricing.Store
	Registry     *sites.Registry
	Orchestrator *orchestrator.Orchestrator
	Importer     *importer.Importer

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Option overrides a collaborator, mostly for tests.
type Option func(*overrides)

type overrides struct {
	store     pricing.Store
	pages     pricing.PageFetcher
	blobs     pricing.BlobStore
	publisher pricing.Publisher
	sender    notify.Sender
}

// WithStore uses store instead of opening the configured driver.
func WithStore(store pricing.Store) Option {
	return func(o *overrides) { o.store = store }
}

// WithPageFetcher replaces both the page and image fetchers.
func WithPageFetcher(pages pricing.PageFetcher) Option {
	return func(o *overrides) { o.pages = pages }
}

// WithBlobStore replaces the configured image backend.
func WithBlobStore(blobs pricing.BlobStore) Option {
	return func(o *overrides) { o.blobs = blobs }
}

// WithPublisher replaces the Pub/Sub event publisher.
func WithPublisher(p pricing.Publisher) Option {
	return func(o *overrides) { o.publisher = p }
}

// WithSender replaces the Discord webhook sender.
func WithSender(s notify.Sender) Option {
	return func(o *overrides) { o.sender = s }
}

// New creates and initializes an App from cfg. A store that cannot be opened
// or migrated is fatal; every other collaborator is optional or has a default.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	logger.Debug("initializing application services", zap.String("storage", cfg.Storage.Driver))

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: "pricewatch",
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		a.onClose("tracer provider", func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tp.Shutdown(shutdownCtx)
		})
	}

	store := o.store
	if store == nil {
		var err error
		store, err = openStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Store = store

	pages := o.pages
	imagePages := o.pages
	if pages == nil {
		colly := collyfetcher.New(collyfetcher.Config{UserAgent: cfg.Fetch.UserAgent, Timeout: cfg.FetchTimeout()})
		pages, imagePages = colly, colly
		if cfg.Fetch.Headless {
			chrome := headless.NewChromedp(headless.Config{
				UserAgent:         cfg.Fetch.UserAgent,
				NavigationTimeout: cfg.NavTimeout(),
			})
			a.onClose("headless browser", chrome.Close)
			heuristic := detector.NewHeuristic(cfg.Fetch.PromoteMinText, sites.PriceMarkers()...)
			pages = promote.New(colly, chrome, heuristic, logger)
		}
	}

	blobs := o.blobs
	imageBase := cfg.Images.WebBasePath
	if blobs == nil {
		var err error
		blobs, imageBase, err = a.openBlobStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	publisher := o.publisher
	if publisher == nil && cfg.Events.Topic != "" {
		p, err := pubsub.Dial(ctx, cfg.Events.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("events: %w", err)
		}
		a.onClose("pubsub publisher", p.Close)
		publisher = p
	}

	sender := o.sender
	if sender == nil {
		sender = discord.NewSender(cfg.NotifyTimeout())
	}

	clock := system.New()
	a.Registry = sites.Builtin(pages, media.NewLoader(imagePages), clock, logger)
	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Products: store,
		Resolver: a.Registry,
		Engine:   classifier.New(store, logger),
		Formatter: notify.NewFormatter(notify.FormatterConfig{
			CurrencySymbol: cfg.Notify.CurrencySymbol,
			ImageBasePath:  imageBase,
		}),
		Dispatcher: notify.NewDispatcher(sender, logger),
		Sleeper:    clock,
		Clock:      clock,
		IDs:        uuid.New(),
		Publisher:  publisher,
	}, orchestrator.Config{Delay: cfg.ScrapeDelay(), Topic: cfg.Events.Topic}, logger)
	a.Importer = importer.New(a.Registry, store, blobs, sha.New(), logger)

	logger.Debug("application services initialized", zap.Strings("sites", a.Registry.Hosts()))
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config) (pricing.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:      cfg.Storage.Postgres.DSN,
			MaxConns: cfg.Storage.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// openBlobStore returns the configured image backend and the public base URL
// images are served from.
func (a *App) openBlobStore(ctx context.Context, cfg config.Config) (pricing.BlobStore, string, error) {
	switch cfg.Images.Backend {
	case config.ImagesLocal:
		blobs, err := local.New(local.Config{BaseDir: cfg.Images.SavePath})
		if err != nil {
			return nil, "", fmt.Errorf("images: %w", err)
		}
		return blobs, cfg.Images.WebBasePath, nil
	case config.ImagesGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("images: gcs client: %w", err)
		}
		a.onClose("gcs client", client.Close)
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.Images.GCSBucket})
		if err != nil {
			return nil, "", fmt.Errorf("images: %w", err)
		}
		base := cfg.Images.WebBasePath
		if base == "" {
			base = "https://storage.googleapis.com/" + strings.Trim(cfg.Images.GCSBucket, "/")
		}
		return blobs, base, nil
	default:
		return nil, "", fmt.Errorf("unknown images backend: %s", cfg.Images.Backend)
	}
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Close gracefully shuts down all services in the App container, newest first,
// then the store.
func (a *App) Close() {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logger.Warn("error closing store", zap.Error(err))
		}
	}
	_ = logger.Sync()
}
