package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultNavTimeout, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	fetcher := NewChromedp(Config{})
	t.Cleanup(func() { _ = fetcher.Close() })
	require.Equal(t, "body", fetcher.cfg.WaitSelector)
	require.Equal(t, defaultNavTimeout, fetcher.cfg.NavigationTimeout)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{"X-Multi": {"a", "b"}, "X-One": {"c"}, "X-None": {}})
	require.Equal(t, []string{"a", "b"}, got["X-Multi"])
	require.Equal(t, "c", got["X-One"])
	require.NotContains(t, got, "X-None")
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := &responseMeta{}
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://www.cdkeys.com/game",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://ads.example/frame"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 200, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://www.cdkeys.com/game", url)
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	status, headers, url := (&responseMeta{}).snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://final", url)

	_, _, url = (&responseMeta{}).snapshotWithFallbacks("https://req", "")
	require.Equal(t, "https://req", url)
}
