package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/pricing"
	"github.com/JakeFAU/pricewatch/internal/storage/memory"
)

func TestEngineIngestSequence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	engine := New(store, zap.NewNop())
	base := time.Unix(1_700_000_000, 0).UTC()

	prices := []string{"10.00", "8.00", "8.00", "12.00", "5.00"}
	want := []pricing.Classification{
		pricing.FirstObservation,
		pricing.NewHistoricalLow,
		pricing.NoNotification,
		pricing.PriceIncreased,
		pricing.NewHistoricalLow,
	}
	wantPct := []string{"", "20.00", "", "-50.00", "58.33"}

	for i, raw := range prices {
		price := decimal.RequireFromString(raw)
		res, err := engine.Ingest(ctx, 1, 7, pricing.PriceReading{
			Price:      price,
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		require.Equalf(t, want[i], res.Classification, "observation %d", i)

		if i == 0 {
			require.False(t, res.Observation.PreviousPrice.Valid, "first observation has no previous price")
			require.Nil(t, res.HistoricalLow)
			continue
		}
		prev := decimal.RequireFromString(prices[i-1])
		require.True(t, res.Observation.PreviousPrice.Valid)
		require.Truef(t, res.Observation.PreviousPrice.Decimal.Equal(prev), "previous price of observation %d", i)
		if wantPct[i] != "" {
			require.Equal(t, wantPct[i], PercentageDifference(price, prev).StringFixed(2))
		}
	}

	history, err := store.PriceHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, len(prices))
	require.Equal(t, int64(7), history[0].SiteID)
}

func TestEngineIngestDecreaseAboveLow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := New(memory.NewStore(), nil)
	base := time.Unix(0, 0).UTC()

	var last Result
	for i, raw := range []string{"5", "10", "7"} {
		var err error
		last, err = engine.Ingest(ctx, 1, 1, pricing.PriceReading{
			Price:      decimal.RequireFromString(raw),
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.Equal(t, pricing.PriceDecreased, last.Classification)
	require.NotNil(t, last.HistoricalLow)
	require.True(t, last.HistoricalLow.Price.Equal(decimal.NewFromInt(5)))
}

func TestEngineIngestTieWithLowIsNewLow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := New(memory.NewStore(), nil)
	base := time.Unix(0, 0).UTC()

	var last Result
	for i, raw := range []string{"5", "10", "5"} {
		var err error
		last, err = engine.Ingest(ctx, 1, 1, pricing.PriceReading{
			Price:      decimal.RequireFromString(raw),
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.Equal(t, pricing.NewHistoricalLow, last.Classification)
}

func TestEngineIngestStorageFailure(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	store.Err = errors.New("database is locked")
	engine := New(store, nil)

	res, err := engine.Ingest(context.Background(), 1, 1, pricing.PriceReading{Price: decimal.NewFromInt(3)})
	require.ErrorIs(t, err, pricing.ErrStorageFailed)
	require.Equal(t, pricing.ClassificationError, res.Classification)
}

func TestEngineIngestAppendFailureDoesNotClassify(t *testing.T) {
	t.Parallel()

	store := &appendFailStore{Store: memory.NewStore()}
	engine := New(store, nil)

	res, err := engine.Ingest(context.Background(), 1, 1, pricing.PriceReading{Price: decimal.NewFromInt(3)})
	require.ErrorIs(t, err, pricing.ErrStorageFailed)
	require.Equal(t, pricing.ClassificationError, res.Classification)
}

func TestPercentageDifference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  string
		previous string
		want     string
	}{
		{"decrease is positive", "8", "10", "20.00"},
		{"increase is negative", "12", "8", "-50.00"},
		{"equal is non-positive", "10", "10", "0.00"},
		{"zero previous is 100", "5", "0", "100.00"},
		{"zero to zero is 100", "0", "0", "100.00"},
		{"drop to zero", "0", "4", "100.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := PercentageDifference(decimal.RequireFromString(tt.current), decimal.RequireFromString(tt.previous))
			require.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestClassifyFirstObservation(t *testing.T) {
	t.Parallel()

	require.Equal(t, pricing.FirstObservation, Classify(decimal.NewFromInt(1), pricing.PriceContext{}))
}

type appendFailStore struct {
	*memory.Store
}

func (s *appendFailStore) AppendObservation(context.Context, pricing.Observation) error {
	return errors.New("constraint violation")
}
