// Package sites routes product URLs to the storefront adapter registered for
// their hostname.
package sites

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// Adapter is the capability set a storefront supports. Either capability may
// be nil; calling a missing one fails with pricing.ErrUnsupportedCapability.
type Adapter struct {
	Name     string
	Price    pricing.PriceFetcher
	Metadata pricing.MetadataFetcher
}

// AdapterFor builds an Adapter from impl, picking up whichever capabilities it
// implements.
func AdapterFor(name string, impl any) Adapter {
	a := Adapter{Name: name}
	if p, ok := impl.(pricing.PriceFetcher); ok {
		a.Price = p
	}
	if m, ok := impl.(pricing.MetadataFetcher); ok {
		a.Metadata = m
	}
	return a
}

// FetchPrice delegates to the adapter's price capability.
func (a Adapter) FetchPrice(ctx context.Context, rawURL string) (pricing.PriceReading, error) {
	if a.Price == nil {
		return pricing.PriceReading{}, fmt.Errorf("%s: fetch price: %w", a.Name, pricing.ErrUnsupportedCapability)
	}
	return a.Price.FetchPrice(ctx, rawURL)
}

// FetchMetadata delegates to the adapter's metadata capability.
func (a Adapter) FetchMetadata(ctx context.Context, rawURL string) (pricing.ProductMetadata, error) {
	if a.Metadata == nil {
		return pricing.ProductMetadata{}, fmt.Errorf("%s: fetch metadata: %w", a.Name, pricing.ErrUnsupportedCapability)
	}
	return a.Metadata.FetchMetadata(ctx, rawURL)
}

// Registry maps exact hostnames to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds adapter under host. Registering a host twice is an error.
func (r *Registry) Register(host string, adapter Adapter) error {
	if host == "" {
		return fmt.Errorf("register adapter %q: empty host", adapter.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.adapters[host]; ok {
		return fmt.Errorf("host %s already served by %q", host, existing.Name)
	}
	r.adapters[host] = adapter
	return nil
}

// Resolve returns the adapter for rawURL's hostname.
func (r *Registry) Resolve(rawURL string) (Adapter, error) {
	host, err := Host(rawURL)
	if err != nil {
		return Adapter{}, err
	}
	r.mu.RLock()
	adapter, ok := r.adapters[host]
	r.mu.RUnlock()
	if !ok {
		return Adapter{}, fmt.Errorf("%w: %s", pricing.ErrUnsupportedSite, host)
	}
	return adapter, nil
}

// Hosts lists the registered hostnames, sorted.
func (r *Registry) Hosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make([]string, 0, len(r.adapters))
	for h := range r.adapters {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Host extracts the hostname of rawURL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pricing.ErrInvalidURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", pricing.ErrInvalidURL, rawURL)
	}
	return u.Hostname(), nil
}
