// Package greenmangaming scrapes prices from www.greenmangaming.com. The
// storefront supports price tracking only; products cannot be imported from it.
package greenmangaming

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// Host is the storefront hostname this adapter serves.
const Host = "www.greenmangaming.com"

const priceSelector = "gmgprice.current-price.pdp-price"

// PriceMarker appears only in a rendered product page.
const PriceMarker = "<gmgprice"

// Adapter implements pricing.PriceFetcher.
type Adapter struct {
	pages pricing.PageFetcher
	clock pricing.Clock
}

// New builds an Adapter.
func New(pages pricing.PageFetcher, clock pricing.Clock) *Adapter {
	return &Adapter{pages: pages, clock: clock}
}

// FetchPrice reads the current price from a product page.
func (a *Adapter) FetchPrice(ctx context.Context, rawURL string) (pricing.PriceReading, error) {
	resp, err := a.pages.Fetch(ctx, pricing.FetchRequest{URL: rawURL})
	if err != nil {
		return pricing.PriceReading{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return pricing.PriceReading{}, fmt.Errorf("%w: %s: %w", pricing.ErrParseFailed, rawURL, err)
	}
	price, err := ParsePrice(doc)
	if err != nil {
		return pricing.PriceReading{}, fmt.Errorf("%s: %w", rawURL, err)
	}
	return pricing.PriceReading{Price: price, ObservedAt: a.clock.Now().UTC()}, nil
}

// ParsePrice reads the displayed price, dropping its leading currency symbol.
func ParsePrice(doc *goquery.Document) (decimal.Decimal, error) {
	node := doc.Find(priceSelector).First()
	if node.Length() == 0 {
		return decimal.Decimal{}, pricing.ErrPriceNotFound
	}
	text := strings.TrimSpace(node.Text())
	if text == "" {
		return decimal.Decimal{}, pricing.ErrPriceNotFound
	}
	_, size := utf8.DecodeRuneInString(text)
	amount := strings.ReplaceAll(strings.TrimSpace(text[size:]), ",", "")
	price, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q: %w", pricing.ErrParseFailed, text, err)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative price %q", pricing.ErrParseFailed, text)
	}
	return price, nil
}
