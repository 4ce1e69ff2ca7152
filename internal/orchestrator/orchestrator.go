// Package orchestrator runs one scrape pass over every tracked product.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/classifier"
	"github.com/JakeFAU/pricewatch/internal/metrics"
	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/pricing"
	"github.com/JakeFAU/pricewatch/internal/sites"
)

var tracer = otel.Tracer("github.com/JakeFAU/pricewatch/internal/orchestrator")

// Resolver picks the storefront adapter for a product URL.
type Resolver interface {
	Resolve(rawURL string) (sites.Adapter, error)
}

// Config controls Orchestrator behavior.
type Config struct {
	// Delay is slept after every product, whether it succeeded or not.
	Delay time.Duration
	// Topic receives a PriceEvent per ingested price when a Publisher is set.
	Topic string
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Products   pricing.ProductSource
	Resolver   Resolver
	Engine     *classifier.Engine
	Formatter  *notify.Formatter
	Dispatcher *notify.Dispatcher
	Sleeper    pricing.Sleeper
	Clock      pricing.Clock
	IDs        pricing.IDGenerator
	// Publisher is optional.
	Publisher pricing.Publisher
}

// Summary describes a finished run.
type Summary struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Products        int            `json:"products"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	Delivered       int            `json:"delivered"`
	Classifications map[string]int `json:"classifications"`
}

// Orchestrator processes tracked products one at a time, in registration order.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu   sync.RWMutex
	last *Summary
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("orchestrator")}
}

// Run scrapes every tracked product once. A product's failure is logged and
// the run moves on; only a failure to list products or a canceled context
// ends the run early.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("run id: %w", err)
	}
	summary := Summary{
		RunID:           runID,
		StartedAt:       o.deps.Clock.Now(),
		Classifications: make(map[string]int),
	}
	logger := o.logger.With(zap.String("run_id", runID))
	ctx, span := tracer.Start(ctx, "scrape.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	products, err := o.deps.Products.ListTrackedProducts(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "list tracked products")
		return summary, fmt.Errorf("list tracked products: %w", err)
	}
	logger.Info("scrape started", zap.Int("products", len(products)))

	for _, product := range products {
		summary.Products++
		result, delivered, err := o.processProduct(ctx, runID, product)
		if err != nil {
			summary.Failed++
			logger.Warn("scrape failed",
				zap.Int64("product_id", product.ProductID),
				zap.String("url", product.URL),
				zap.String("kind", pricing.ErrorKind(err)),
				zap.Error(err),
			)
		} else {
			summary.Succeeded++
			summary.Delivered += delivered
			summary.Classifications[result.String()]++
		}

		if err := o.deps.Sleeper.Sleep(ctx, o.cfg.Delay); err != nil {
			summary.FinishedAt = o.deps.Clock.Now()
			span.SetStatus(codes.Error, "run interrupted")
			return summary, err
		}
	}

	summary.FinishedAt = o.deps.Clock.Now()
	o.record(summary)
	metrics.ObserveRun()
	span.SetAttributes(
		attribute.Int("products", summary.Products),
		attribute.Int("failed", summary.Failed),
	)
	logger.Info("scrape finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("delivered", summary.Delivered),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// LastRun returns the summary of the most recent completed run.
func (o *Orchestrator) LastRun() (Summary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return Summary{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) record(summary Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = &summary
}

func (o *Orchestrator) processProduct(
	ctx context.Context,
	runID string,
	product pricing.TrackedProduct,
) (_ pricing.Classification, _ int, err error) {
	ctx, span := tracer.Start(ctx, "scrape.product", trace.WithAttributes(
		attribute.Int64("product_id", product.ProductID),
		attribute.String("url", product.URL),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, pricing.ErrorKind(err))
		}
		span.End()
	}()

	adapter, err := o.deps.Resolver.Resolve(product.URL)
	if err != nil {
		metrics.ObserveScrape(product.URL, pricing.ErrorKind(err), 0)
		return pricing.ClassificationError, 0, err
	}

	start := o.deps.Clock.Now()
	reading, err := adapter.FetchPrice(ctx, product.URL)
	metrics.ObserveScrape(product.URL, pricing.ErrorKind(err), o.deps.Clock.Now().Sub(start))
	if err != nil {
		return pricing.ClassificationError, 0, err
	}
	if reading.ObservedAt.IsZero() {
		reading.ObservedAt = o.deps.Clock.Now()
	}
	o.logger.Info("price found",
		zap.Int64("product_id", product.ProductID),
		zap.String("site", adapter.Name),
		zap.String("price", reading.Price.StringFixed(2)),
	)

	result, err := o.deps.Engine.Ingest(ctx, product.ProductID, product.SiteID, reading)
	if err != nil {
		return pricing.ClassificationError, 0, err
	}
	metrics.ObserveClassification(result.Classification.String())
	o.publish(ctx, runID, product, result)

	if !result.Classification.Notifies() {
		return result.Classification, 0, nil
	}
	delivered, err := o.notify(ctx, product, result)
	return result.Classification, delivered, err
}

func (o *Orchestrator) notify(ctx context.Context, product pricing.TrackedProduct, result classifier.Result) (int, error) {
	endpoints, err := o.deps.Products.SubscribedEndpoints(ctx, product.ProductID)
	if err != nil {
		return 0, fmt.Errorf("subscribed endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return 0, nil
	}
	imageRef, err := o.deps.Products.ImageReference(ctx, product.ProductID)
	if err != nil && !errors.Is(err, pricing.ErrNotFound) {
		o.logger.Warn("image reference unavailable",
			zap.Int64("product_id", product.ProductID),
			zap.Error(err),
		)
		imageRef = ""
	}

	content := o.deps.Formatter.Format(product, result, imageRef)
	delivered := 0
	for _, outcome := range o.deps.Dispatcher.Dispatch(ctx, content, endpoints) {
		if outcome.Delivered() {
			delivered++
		}
	}
	return delivered, nil
}

func (o *Orchestrator) publish(ctx context.Context, runID string, product pricing.TrackedProduct, result classifier.Result) {
	if o.deps.Publisher == nil || o.cfg.Topic == "" {
		return
	}
	event := pricing.PriceEvent{
		RunID:          runID,
		ProductID:      product.ProductID,
		SiteID:         product.SiteID,
		URL:            product.URL,
		Price:          result.Observation.Price,
		PreviousPrice:  result.Observation.PreviousPrice,
		Classification: result.Classification.String(),
		ObservedAt:     result.Observation.ObservedAt,
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, event); err != nil {
		metrics.ObserveEventPublished("failed")
		o.logger.Warn("price event publish failed",
			zap.Int64("product_id", product.ProductID),
			zap.String("topic", o.cfg.Topic),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveEventPublished("ok")
}
