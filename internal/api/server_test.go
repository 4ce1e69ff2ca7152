package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/orchestrator"
	"github.com/JakeFAU/pricewatch/internal/pricing"
	"github.com/JakeFAU/pricewatch/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewServer(store, nil, zap.NewNop()), store
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	rec := serve(t, server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	serve(t, server, "/healthz")
	rec := serve(t, server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ListProducts(t *testing.T) {
	t.Parallel()

	server, store := newTestServer(t)
	rec := serve(t, server, "/v1/products")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"products":[]}`, rec.Body.String())

	store.Track("Game", "https://www.cdkeys.com/game")
	rec = serve(t, server, "/v1/products")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Products []pricing.TrackedProduct `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Products, 1)
	require.Equal(t, "Game", body.Products[0].Name)
}

func TestServer_ListProductsStorageFailure(t *testing.T) {
	t.Parallel()

	server, store := newTestServer(t)
	store.Err = errors.New("disk I/O error")
	rec := serve(t, server, "/v1/products")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ProductPrices(t *testing.T) {
	t.Parallel()

	server, store := newTestServer(t)
	p := store.Track("Game", "https://www.cdkeys.com/game")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendObservation(context.Background(), pricing.Observation{
		ProductID:  p.ProductID,
		SiteID:     p.SiteID,
		Price:      decimal.RequireFromString("19.99"),
		ObservedAt: at,
	}))

	rec := serve(t, server, "/v1/products/1/prices")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Product pricing.TrackedProduct `json:"product"`
		Prices  []pricing.Observation  `json:"prices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, p, body.Product)
	require.Len(t, body.Prices, 1)
	require.True(t, body.Prices[0].Price.Equal(decimal.RequireFromString("19.99")))
	require.False(t, body.Prices[0].PreviousPrice.Valid)
	require.True(t, at.Equal(body.Prices[0].ObservedAt))
}

func TestServer_ProductLookupErrors(t *testing.T) {
	t.Parallel()

	server, store := newTestServer(t)
	store.Track("Game", "https://www.cdkeys.com/game")

	tests := []struct {
		path string
		want int
	}{
		{"/v1/products/1", http.StatusOK},
		{"/v1/products/99", http.StatusNotFound},
		{"/v1/products/99/prices", http.StatusNotFound},
		{"/v1/products/abc/prices", http.StatusBadRequest},
		{"/v1/products/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, serve(t, server, tt.path).Code)
		})
	}
}

func TestServer_LatestRun(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	runs := &fakeRuns{}
	server := NewServer(store, runs, nil)
	require.Equal(t, http.StatusNotFound, serve(t, server, "/v1/runs/latest").Code)

	runs.summary = orchestrator.Summary{RunID: "run-7", Products: 3, Succeeded: 2, Failed: 1}
	runs.ok = true
	rec := serve(t, server, "/v1/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got orchestrator.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-7", got.RunID)
	require.Equal(t, 1, got.Failed)

	noRuns := NewServer(store, nil, nil)
	require.Equal(t, http.StatusNotFound, serve(t, noRuns, "/v1/runs/latest").Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

type fakeRuns struct {
	summary orchestrator.Summary
	ok      bool
}

func (f *fakeRuns) LastRun() (orchestrator.Summary, bool) {
	return f.summary, f.ok
}
