// Package classifier decides what kind of price change an observation is and
// persists it against the product's history.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of ingesting one reading.
type Result struct {
	Classification pricing.Classification
	Observation    pricing.Observation
	// HistoricalLow is the lowest observation recorded before this one, if any.
	HistoricalLow *pricing.Observation
}

// Engine classifies and persists price readings.
type Engine struct {
	store  pricing.HistoryStore
	logger *zap.Logger
}

// New constructs an Engine.
func New(store pricing.HistoryStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// Ingest persists reading for the product and returns its classification.
// Storage failures yield ClassificationError and an error wrapping
// pricing.ErrStorageFailed; nothing downstream should be notified.
func (e *Engine) Ingest(
	ctx context.Context,
	productID int64,
	siteID int64,
	reading pricing.PriceReading,
) (Result, error) {
	history, err := e.store.PriceContext(ctx, productID)
	if err != nil {
		return Result{Classification: pricing.ClassificationError}, fmt.Errorf("load price history: %w", asStorage(err))
	}

	obs := pricing.Observation{
		ProductID:  productID,
		SiteID:     siteID,
		Price:      reading.Price,
		ObservedAt: reading.ObservedAt,
	}
	if history.Previous != nil {
		obs.PreviousPrice = decimal.NullDecimal{Decimal: history.Previous.Price, Valid: true}
	}

	if err := e.store.AppendObservation(ctx, obs); err != nil {
		return Result{Classification: pricing.ClassificationError}, fmt.Errorf("append observation: %w", asStorage(err))
	}

	class := Classify(reading.Price, history)
	e.logger.Debug("price classified",
		zap.Int64("product_id", productID),
		zap.String("price", reading.Price.StringFixed(2)),
		zap.Stringer("classification", class),
	)
	return Result{
		Classification: class,
		Observation:    obs,
		HistoricalLow:  history.HistoricalLow,
	}, nil
}

// Classify compares price with the product's prior history.
func Classify(price decimal.Decimal, history pricing.PriceContext) pricing.Classification {
	if history.Previous == nil {
		return pricing.FirstObservation
	}
	previous := history.Previous.Price
	switch price.Cmp(previous) {
	case -1:
		if history.HistoricalLow == nil || price.LessThanOrEqual(history.HistoricalLow.Price) {
			return pricing.NewHistoricalLow
		}
		return pricing.PriceDecreased
	case 1:
		return pricing.PriceIncreased
	default:
		return pricing.NoNotification
	}
}

// PercentageDifference reports the change from previous to current as a
// presentation percentage: (previous-current)/previous*100, negative whenever
// current >= previous and positive otherwise. A zero previous price reports
// exactly 100.
func PercentageDifference(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return hundred
	}
	pct := previous.Sub(current).Div(previous).Mul(hundred).Abs()
	if current.GreaterThanOrEqual(previous) {
		return pct.Neg()
	}
	return pct
}

func asStorage(err error) error {
	if errors.Is(err, pricing.ErrStorageFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", pricing.ErrStorageFailed, err)
}
