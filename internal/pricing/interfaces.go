package pricing

import (
	"context"
	"io"
	"time"
)

// HistoryStore is the storage surface the classification engine needs.
type HistoryStore interface {
	PriceContext(ctx context.Context, productID int64) (PriceContext, error)
	AppendObservation(ctx context.Context, obs Observation) error
}

// ProductSource lists tracked products and their notification settings.
type ProductSource interface {
	ListTrackedProducts(ctx context.Context) ([]TrackedProduct, error)
	SubscribedEndpoints(ctx context.Context, productID int64) ([]string, error)
	ImageReference(ctx context.Context, productID int64) (string, error)
}

// Catalog manages the lifecycle of tracked products and subscriptions.
type Catalog interface {
	SaveProduct(ctx context.Context, product NewProduct) (TrackedProduct, error)
	AddSubscription(ctx context.Context, productID int64, endpoint string) error
	Product(ctx context.Context, productID int64) (TrackedProduct, error)
	PriceHistory(ctx context.Context, productID int64) ([]Observation, error)
}

// Store is the full persistence contract. Every failure wraps ErrStorageFailed,
// except lookups of missing rows which wrap ErrNotFound.
type Store interface {
	HistoryStore
	ProductSource
	Catalog
	Close() error
}

// PageFetcher fetches a URL and returns the body plus metadata.
type PageFetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PriceFetcher is the price capability of a site adapter.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, url string) (PriceReading, error)
}

// MetadataFetcher is the import capability of a site adapter.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, url string) (ProductMetadata, error)
}

// ImageLoader downloads and validates product images.
type ImageLoader interface {
	Download(ctx context.Context, src string) (Image, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes price events to a feed.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for the pacing delay between products.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
