package pricing

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// TrackedProduct identifies one monitored (product, source) pair.
type TrackedProduct struct {
	ProductID int64  `json:"product_id"`
	SiteID    int64  `json:"site_id"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	ImageRef  string `json:"image_ref,omitempty"`
}

// PriceReading is a single price scraped from a storefront.
type PriceReading struct {
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Observation is one persisted price for a product. Observations are append-only.
type Observation struct {
	ProductID     int64               `json:"product_id"`
	SiteID        int64               `json:"site_id"`
	Price         decimal.Decimal     `json:"price"`
	PreviousPrice decimal.NullDecimal `json:"previous_price"`
	ObservedAt    time.Time           `json:"observed_at"`
}

// PriceContext is the history a new observation is compared against. Both
// fields are nil for a product that has never been observed.
type PriceContext struct {
	Previous      *Observation
	HistoricalLow *Observation
}

// Image is a downloaded and content-validated product image.
type Image struct {
	Data        []byte
	Extension   string
	ContentType string
}

// ProductMetadata is what a site adapter extracts when importing a product.
type ProductMetadata struct {
	Title       string
	Description string
	Edition     string
	Platform    string
	URL         string
	Image       *Image
}

// NewProduct captures everything needed to start tracking a product.
type NewProduct struct {
	Name        string
	Description string
	Edition     string
	Platform    string
	URL         string
	Host        string
	ImageRef    string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a PageFetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PriceEvent is published to the event feed after each ingestion.
type PriceEvent struct {
	RunID          string              `json:"run_id"`
	ProductID      int64               `json:"product_id"`
	SiteID         int64               `json:"site_id"`
	URL            string              `json:"url"`
	Price          decimal.Decimal     `json:"price"`
	PreviousPrice  decimal.NullDecimal `json:"previous_price"`
	Classification string              `json:"classification"`
	ObservedAt     time.Time           `json:"observed_at"`
}
