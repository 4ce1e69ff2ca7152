package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/app"
	"github.com/JakeFAU/pricewatch/internal/config"
	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/pricing"
	pubmemory "github.com/JakeFAU/pricewatch/internal/publisher/memory"
	"github.com/JakeFAU/pricewatch/internal/storage/memory"
)

const productURL = "https://www.cdkeys.com/elden-ring"

const productPage = `<html><body>
<h1 class="page-title" data-text="Elden Ring"></h1>
<span id="product-price-4411" data-price-amount="32.49"></span>
<div class="description"><p>Rise, Tarnished.</p><p>Read More</p></div>
<img class="gallery-placeholder__image" src="/media/elden.jpg"/>
</body></html>`

var jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Fetch:   config.FetchConfig{UserAgent: "test", TimeoutSeconds: 5},
		Images: config.ImagesConfig{
			Backend:     config.ImagesLocal,
			SavePath:    t.TempDir(),
			WebBasePath: "https://img.example",
		},
		Notify: config.NotifyConfig{CurrencySymbol: "£", TimeoutSeconds: 5},
		Events: config.EventsConfig{Topic: "price-events", ProjectID: "test"},
		Server: config.ServerConfig{Port: 8080},
	}
}

func TestNew_ImportSubscribeAndScrape(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pages := fakePages{
		productURL:                               []byte(productPage),
		"https://www.cdkeys.com/media/elden.jpg": jpegBytes,
	}
	sender := &recordingSender{}
	events := pubmemory.New()
	blobs := memory.NewBlobStore()

	a, err := app.New(ctx, baseConfig(t), zap.NewNop(),
		app.WithPageFetcher(pages),
		app.WithSender(sender),
		app.WithPublisher(events),
		app.WithBlobStore(blobs),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.Equal(t, []string{"www.cdkeys.com", "www.greenmangaming.com"}, a.Registry.Hosts())

	tracked, err := a.Importer.Import(ctx, productURL)
	require.NoError(t, err)
	require.Equal(t, "Elden Ring", tracked.Name)
	require.NotEmpty(t, tracked.ImageRef)
	_, ok := blobs.Object(tracked.ImageRef)
	require.True(t, ok, "image saved under its reference")

	require.NoError(t, a.Store.AddSubscription(ctx, tracked.ProductID, "https://discord.com/api/webhooks/1/a"))

	summary, err := a.Orchestrator.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Delivered)

	require.Len(t, sender.sent, 1)
	require.Equal(t, "**PRICE FOUND**\n£32.49", sender.sent[0].Body)
	require.Equal(t, "https://img.example/"+tracked.ImageRef, sender.sent[0].ImageURL)
	require.Len(t, events.Messages(), 1)

	last, ok := a.Orchestrator.LastRun()
	require.True(t, ok)
	require.Equal(t, summary.RunID, last.RunID)
}

func TestNew_SQLiteDriver(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Storage = config.StorageConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "prices.db")},
	}
	cfg.Events = config.EventsConfig{}

	a, err := app.New(context.Background(), cfg, nil, app.WithPageFetcher(fakePages{}))
	require.NoError(t, err)
	defer a.Close()

	products, err := a.Store.ListTrackedProducts(context.Background())
	require.NoError(t, err)
	require.Empty(t, products)
}

// Not parallel: tracing installs a global tracer provider.
func TestNew_HeadlessAndTracing(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Events = config.EventsConfig{}
	cfg.Fetch.Headless = true
	cfg.Fetch.NavTimeoutSeconds = 5
	cfg.Tracing = config.TracingConfig{Enabled: true, SampleRatio: 1}

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"www.cdkeys.com", "www.greenmangaming.com"}, a.Registry.Hosts())
	a.Close()
}

func TestNew_ConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown storage driver", func(c *config.Config) { c.Storage.Driver = "mysql" }, "unknown storage driver: mysql"},
		{"unknown images backend", func(c *config.Config) { c.Images.Backend = "s3" }, "unknown images backend: s3"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Driver = config.DriverPostgres }, "storage.postgres.dsn is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig(t)
			cfg.Events = config.EventsConfig{}
			tt.mutate(&cfg)
			_, err := app.New(context.Background(), cfg, nil, app.WithPageFetcher(fakePages{}))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestApp_CloseClosesStore(t *testing.T) {
	t.Parallel()

	store := new(mockStore)
	store.On("Close").Return(nil).Once()

	a := &app.App{Logger: zap.NewNop(), Store: store}
	a.Close()

	store.AssertExpectations(t)
}

func TestApp_CloseWithErrors(t *testing.T) {
	t.Parallel()

	store := new(mockStore)
	store.On("Close").Return(errors.New("database is locked")).Once()

	a := &app.App{Store: store}
	a.Close()

	store.AssertExpectations(t)
}

// mockStore embeds the memory store and mocks Close.
type mockStore struct {
	mock.Mock
	*memory.Store
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type fakePages map[string][]byte

func (f fakePages) Fetch(_ context.Context, req pricing.FetchRequest) (pricing.FetchResponse, error) {
	body, ok := f[req.URL]
	if !ok {
		return pricing.FetchResponse{}, pricing.ErrFetchFailed
	}
	return pricing.FetchResponse{URL: req.URL, StatusCode: 200, Body: body}, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Content
}

func (r *recordingSender) Send(_ context.Context, _ string, content notify.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, content)
	return nil
}
