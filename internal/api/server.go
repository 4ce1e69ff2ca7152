package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/metrics"
	"github.com/JakeFAU/pricewatch/internal/orchestrator"
	"github.com/JakeFAU/pricewatch/internal/pricing"
)

const requestTimeout = 10 * time.Second

// Catalog is the read side of the store the API needs.
type Catalog interface {
	ListTrackedProducts(ctx context.Context) ([]pricing.TrackedProduct, error)
	Product(ctx context.Context, productID int64) (pricing.TrackedProduct, error)
	PriceHistory(ctx context.Context, productID int64) ([]pricing.Observation, error)
}

// RunReporter exposes the last completed scrape pass.
type RunReporter interface {
	LastRun() (orchestrator.Summary, bool)
}

// Server wires HTTP handlers to the store.
type Server struct {
	router  chi.Router
	handler http.Handler
	catalog Catalog
	runs    RunReporter
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs may be nil.
func NewServer(catalog Catalog, runs RunReporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		runs:    runs,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs/latest", s.latestRun)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Route("/{product_id}", func(r chi.Router) {
				r.Get("/", s.getProduct)
				r.Get("/prices", s.getPrices)
			})
		})
	})

	s.router = r
	s.handler = otelhttp.NewHandler(r, "pricewatch.api")
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) latestRun(w http.ResponseWriter, _ *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	summary, ok := s.runs.LastRun()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.ListTrackedProducts(r.Context())
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []pricing.TrackedProduct{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := s.productID(w, r)
	if !ok {
		return
	}
	product, err := s.catalog.Product(r.Context(), productID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	productID, ok := s.productID(w, r)
	if !ok {
		return
	}
	product, err := s.catalog.Product(r.Context(), productID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	history, err := s.catalog.PriceHistory(r.Context(), productID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if history == nil {
		history = []pricing.Observation{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"product": product, "prices": history})
}

func (s *Server) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "product_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid product_id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, pricing.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	s.logger.Error("store query failed", zap.Error(err), zap.String("kind", pricing.ErrorKind(err)))
	s.writeError(w, http.StatusInternalServerError, "storage failure")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
