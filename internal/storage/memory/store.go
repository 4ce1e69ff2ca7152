// Package memory provides in-memory store implementations for development and tests.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

type product struct {
	id       int64
	name     string
	imageRef string
}

// Store implements pricing.Store in memory.
type Store struct {
	mu            sync.RWMutex
	products      map[int64]product
	sources       []pricing.TrackedProduct
	observations  map[int64][]pricing.Observation
	subscriptions map[int64][]string
	nextProduct   int64
	nextSite      int64
	// Err, when set, is returned by every call wrapped in pricing.ErrStorageFailed.
	Err error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		products:      make(map[int64]product),
		observations:  make(map[int64][]pricing.Observation),
		subscriptions: make(map[int64][]string),
	}
}

func (s *Store) failure() error {
	if s.Err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", pricing.ErrStorageFailed, s.Err)
}

// SaveProduct creates a product with a single source.
func (s *Store) SaveProduct(_ context.Context, p pricing.NewProduct) (pricing.TrackedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return pricing.TrackedProduct{}, err
	}
	for _, src := range s.sources {
		if src.URL == p.URL {
			return pricing.TrackedProduct{}, fmt.Errorf("%w: source %s already tracked", pricing.ErrStorageFailed, p.URL)
		}
	}
	s.nextProduct++
	s.nextSite++
	s.products[s.nextProduct] = product{id: s.nextProduct, name: p.Name, imageRef: p.ImageRef}
	tracked := pricing.TrackedProduct{
		ProductID: s.nextProduct,
		SiteID:    s.nextSite,
		URL:       p.URL,
		Name:      p.Name,
		ImageRef:  p.ImageRef,
	}
	s.sources = append(s.sources, tracked)
	return tracked, nil
}

// Track adds a product directly, bypassing import. Useful in tests.
func (s *Store) Track(name, rawURL string) pricing.TrackedProduct {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	tracked, _ := s.SaveProduct(context.Background(), pricing.NewProduct{Name: name, URL: rawURL, Host: host})
	return tracked
}

// AddSubscription registers endpoint for notifications about productID.
func (s *Store) AddSubscription(_ context.Context, productID int64, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return err
	}
	if _, ok := s.products[productID]; !ok {
		return fmt.Errorf("product %d: %w", productID, pricing.ErrNotFound)
	}
	for _, existing := range s.subscriptions[productID] {
		if existing == endpoint {
			return nil
		}
	}
	s.subscriptions[productID] = append(s.subscriptions[productID], endpoint)
	return nil
}

// Product returns the first tracked source for productID.
func (s *Store) Product(_ context.Context, productID int64) (pricing.TrackedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return pricing.TrackedProduct{}, err
	}
	for _, src := range s.sources {
		if src.ProductID == productID {
			return src, nil
		}
	}
	return pricing.TrackedProduct{}, fmt.Errorf("product %d: %w", productID, pricing.ErrNotFound)
}

// ListTrackedProducts returns sources in registration order.
func (s *Store) ListTrackedProducts(_ context.Context) ([]pricing.TrackedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	out := make([]pricing.TrackedProduct, len(s.sources))
	copy(out, s.sources)
	return out, nil
}

// SubscribedEndpoints returns a copy of the endpoints for productID.
func (s *Store) SubscribedEndpoints(_ context.Context, productID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.subscriptions[productID]...), nil
}

// ImageReference returns the saved image path for productID, or "".
func (s *Store) ImageReference(_ context.Context, productID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return "", err
	}
	return s.products[productID].imageRef, nil
}

// PriceContext returns the latest and lowest prior observations.
func (s *Store) PriceContext(_ context.Context, productID int64) (pricing.PriceContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return pricing.PriceContext{}, err
	}
	history := s.observations[productID]
	if len(history) == 0 {
		return pricing.PriceContext{}, nil
	}
	latest := history[len(history)-1]
	low := history[0]
	for _, obs := range history[1:] {
		if obs.Price.LessThan(low.Price) {
			low = obs
		}
	}
	return pricing.PriceContext{Previous: &latest, HistoricalLow: &low}, nil
}

// AppendObservation records obs, keeping history ordered by time.
func (s *Store) AppendObservation(_ context.Context, obs pricing.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return err
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}
	history := append(s.observations[obs.ProductID], obs)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].ObservedAt.Before(history[j].ObservedAt)
	})
	s.observations[obs.ProductID] = history
	return nil
}

// PriceHistory returns a copy of the observations for productID, oldest first.
func (s *Store) PriceHistory(_ context.Context, productID int64) ([]pricing.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	return append([]pricing.Observation(nil), s.observations[productID]...), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
