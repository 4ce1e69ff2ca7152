package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/app"
	"github.com/JakeFAU/pricewatch/internal/config"
	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/pricing"
)

const productURL = "https://www.cdkeys.com/elden-ring"

const productPage = `<html><body>
<h1 class="page-title" data-text="Elden Ring"></h1>
<span id="product-price-4411" data-price-amount="32.49"></span>
<div class="description"><p>Rise, Tarnished.</p><p>Read More</p></div>
</body></html>`

type fakePages map[string]string

func (f fakePages) Fetch(_ context.Context, req pricing.FetchRequest) (pricing.FetchResponse, error) {
	body, ok := f[req.URL]
	if !ok {
		return pricing.FetchResponse{}, fmt.Errorf("%w: %s", pricing.ErrFetchFailed, req.URL)
	}
	return pricing.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

type recordingSender struct {
	mu        sync.Mutex
	endpoints []string
	sent      []notify.Content
}

func (r *recordingSender) Send(_ context.Context, endpoint string, content notify.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, endpoint)
	r.sent = append(r.sent, content)
	return nil
}

// withFakes swaps the application factory for one that never touches the
// network, and writes a config file backed by a temporary SQLite database.
func withFakes(t *testing.T) (string, *recordingSender) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf(`
storage:
  driver: sqlite
  sqlite:
    path: %s
scrape:
  delay_seconds: 0
images:
  save_path: %s
`, filepath.Join(dir, "prices.db"), filepath.Join(dir, "images"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	sender := &recordingSender{}
	original := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, zap.NewNop(),
			app.WithPageFetcher(fakePages{productURL: productPage}),
			app.WithSender(sender),
		)
	}
	t.Cleanup(func() { newApp = original })
	return cfgPath, sender
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_ImportSubscribeScrapeHistory(t *testing.T) {
	cfgPath, sender := withFakes(t)

	out, err := runCLI(t, "--config", cfgPath, "import", productURL)
	require.NoError(t, err)
	require.Contains(t, out, "imported product 1: Elden Ring")

	out, err = runCLI(t, "--config", cfgPath, "subscribe", "1", "https://discord.com/api/webhooks/1/token")
	require.NoError(t, err)
	require.Contains(t, out, "subscribed to product 1")

	out, err = runCLI(t, "--config", cfgPath, "scrape")
	require.NoError(t, err)
	require.Contains(t, out, "scraped 1 products: 1 succeeded, 0 failed, 1 notifications delivered")
	require.Equal(t, []string{"https://discord.com/api/webhooks/1/token"}, sender.endpoints)
	require.Equal(t, "**PRICE FOUND**\n£32.49", sender.sent[0].Body)

	// No subcommand runs a scrape; an unchanged price sends nothing.
	out, err = runCLI(t, "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "0 notifications delivered")
	require.Len(t, sender.sent, 1)

	out, err = runCLI(t, "--config", cfgPath, "history", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Elden Ring ("+productURL+")")
	require.Contains(t, out, "£32.49")
	require.Contains(t, out, "PREVIOUS")

	out, err = runCLI(t, "--config", cfgPath, "history", "1", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"prices"`)
}

func TestCLI_ConfigPathFromEnv(t *testing.T) {
	cfgPath, _ := withFakes(t)
	t.Setenv(configPathEnv, cfgPath)

	out, err := runCLI(t, "scrape")
	require.NoError(t, err)
	require.Contains(t, out, "scraped 0 products")
}

func TestCLI_ArgumentErrors(t *testing.T) {
	cfgPath, _ := withFakes(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"subscribe bad id", []string{"subscribe", "abc", "https://hooks.example/1"}, "invalid product id"},
		{"subscribe bad url", []string{"subscribe", "1", "not a url"}, "invalid webhook url"},
		{"subscribe unknown product", []string{"subscribe", "9", "https://hooks.example/1"}, "not found"},
		{"history unknown product", []string{"history", "9"}, "not found"},
		{"import unsupported site", []string{"import", "https://shop.example/item"}, "unsupported site"},
		{"import missing arg", []string{"import"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"--config", cfgPath}, tt.args...)...)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCLI_StorageFailureAbortsCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	// A directory cannot be opened as a database file.
	cfgYAML := fmt.Sprintf("storage:\n  sqlite:\n    path: %s\nimages:\n  save_path: %s\n", dir, filepath.Join(dir, "images"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	_, err := runCLI(t, "--config", cfgPath, "scrape")
	require.ErrorContains(t, err, "failed to initialize application services")
}

func TestCLI_ServeReturnsListenError(t *testing.T) {
	cfgPath, _ := withFakes(t)

	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })
	port := busy.Addr().(*net.TCPAddr).Port

	f, err := os.OpenFile(cfgPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "server:\n  port: %d\n", port)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = runCLI(t, "--config", cfgPath, "serve")
	require.ErrorContains(t, err, "http server")
}

func TestSchedule_RunsImmediatelyThenOnEachTick(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	runs := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		schedule(ctx, 5*time.Millisecond, func(context.Context) {
			mu.Lock()
			defer mu.Unlock()
			runs++
			if runs == 3 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not stop after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, runs)
}
