// Package notify turns classified prices into notifications and delivers them
// to subscribed webhook endpoints.
package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/classifier"
	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// Embed colors keyed by classification.
const (
	ColorNeutral  = 0xFFFFFF
	ColorDecrease = 0x77DD77
	ColorIncrease = 0xDD7777
	ColorFirst    = 0xDDDD77
	ColorError    = 0x865AB3
)

// Content is a rendered notification. The zero value is empty and is never sent.
type Content struct {
	Title    string
	Body     string
	URL      string
	Color    int
	Footer   string
	ImageURL string
}

// IsEmpty reports whether there is nothing to deliver.
func (c Content) IsEmpty() bool {
	return c.Body == ""
}

// Color returns the embed color for class.
func Color(class pricing.Classification) int {
	switch class {
	case pricing.PriceDecreased, pricing.NewHistoricalLow:
		return ColorDecrease
	case pricing.PriceIncreased:
		return ColorIncrease
	case pricing.FirstObservation:
		return ColorFirst
	case pricing.ClassificationError:
		return ColorError
	default:
		return ColorNeutral
	}
}

// FormatterConfig controls how prices and images are rendered.
type FormatterConfig struct {
	// CurrencySymbol prefixes every amount. Defaults to "£".
	CurrencySymbol string
	// ImageBasePath is joined with a product's image reference to build its URL.
	// It must be an absolute http(s) URL or images are left off.
	ImageBasePath string
	// Location is used to render the historical low date. Defaults to time.Local.
	Location *time.Location
}

// Formatter renders Content. It holds no state beyond its configuration.
type Formatter struct {
	cfg FormatterConfig
}

// NewFormatter builds a Formatter.
func NewFormatter(cfg FormatterConfig) *Formatter {
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "£"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	cfg.ImageBasePath = strings.TrimRight(cfg.ImageBasePath, "/")
	return &Formatter{cfg: cfg}
}

// Format renders the notification for an ingestion result. NoNotification and
// ClassificationError produce empty Content.
func (f *Formatter) Format(product pricing.TrackedProduct, result classifier.Result, imageRef string) Content {
	body := f.body(result.Classification, result.Observation)
	if body == "" {
		return Content{}
	}
	content := Content{
		Title:  product.Name,
		Body:   body,
		URL:    product.URL,
		Color:  Color(result.Classification),
		Footer: f.footer(result.Observation.Price, result.HistoricalLow),
	}
	content.ImageURL = f.imageURL(imageRef)
	return content
}

// imageURL joins ref onto the base path. Webhooks only accept absolute
// http(s) image URLs, so anything else yields "".
func (f *Formatter) imageURL(ref string) string {
	if ref == "" || f.cfg.ImageBasePath == "" {
		return ""
	}
	joined := f.cfg.ImageBasePath + "/" + strings.TrimLeft(ref, "/")
	u, err := url.Parse(joined)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return joined
}

func (f *Formatter) body(class pricing.Classification, obs pricing.Observation) string {
	var label string
	switch class {
	case pricing.FirstObservation:
		return fmt.Sprintf("**PRICE FOUND**\n%s", f.money(obs.Price))
	case pricing.PriceDecreased:
		label = "**PRICE DECREASED**"
	case pricing.PriceIncreased:
		label = "**PRICE INCREASED**"
	case pricing.NewHistoricalLow:
		label = "**NEW HISTORICAL LOW**"
	default:
		return ""
	}
	if !obs.PreviousPrice.Valid {
		return fmt.Sprintf("%s\n**%s**", label, f.money(obs.Price))
	}
	previous := obs.PreviousPrice.Decimal
	pct := classifier.PercentageDifference(obs.Price, previous)
	return fmt.Sprintf("%s\n**%s** changed from %s | %s%%",
		label, f.money(obs.Price), f.money(previous), pct.StringFixed(2))
}

func (f *Formatter) footer(current decimal.Decimal, low *pricing.Observation) string {
	if low == nil {
		return ""
	}
	return fmt.Sprintf("Historical low: %s, which occurred on: %s Difference of: %s",
		f.money(low.Price),
		low.ObservedAt.In(f.cfg.Location).Format("02-01-2006"),
		f.money(low.Price.Sub(current).Abs()),
	)
}

func (f *Formatter) money(d decimal.Decimal) string {
	return f.cfg.CurrencySymbol + d.StringFixed(2)
}
