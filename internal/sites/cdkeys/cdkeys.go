// Package cdkeys scrapes prices and product details from www.cdkeys.com.
package cdkeys

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// Host is the storefront hostname this adapter serves.
const Host = "www.cdkeys.com"

// PriceMarker appears only in a rendered product page.
const PriceMarker = priceAttr

const (
	outOfStockSelector  = ".product-usps-item.attribute.stock.unavailable"
	priceSelector       = `span[id^="product-price-"]`
	priceAttr           = "data-price-amount"
	titleSelector       = ".page-title"
	descriptionSelector = ".description"
	editionSelector     = "div.product-info-selection_editions select"
	platformSelector    = "div.product.attribute-icon.attribute.platforms .value"
	imageSelector       = "img.gallery-placeholder__image"
)

var priceID = regexp.MustCompile(`^product-price-\d+$`)

// Adapter implements pricing.PriceFetcher and pricing.MetadataFetcher.
type Adapter struct {
	pages     pricing.PageFetcher
	images    pricing.ImageLoader
	clock     pricing.Clock
	logger    *zap.Logger
	sanitizer *bluemonday.Policy
	markdown  *converter.Converter
}

// New builds an Adapter. images may be nil, in which case imports carry no image.
func New(pages pricing.PageFetcher, images pricing.ImageLoader, clock pricing.Clock, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		pages:     pages,
		images:    images,
		clock:     clock,
		logger:    logger.Named("cdkeys"),
		sanitizer: bluemonday.UGCPolicy(),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// FetchPrice reads the current price from a product page.
func (a *Adapter) FetchPrice(ctx context.Context, rawURL string) (pricing.PriceReading, error) {
	doc, _, err := a.document(ctx, rawURL)
	if err != nil {
		return pricing.PriceReading{}, err
	}
	price, err := ParsePrice(doc)
	if err != nil {
		return pricing.PriceReading{}, fmt.Errorf("%s: %w", rawURL, err)
	}
	return pricing.PriceReading{Price: price, ObservedAt: a.clock.Now().UTC()}, nil
}

// ParsePrice extracts the price from a parsed product page.
func ParsePrice(doc *goquery.Document) (decimal.Decimal, error) {
	if doc.Find(outOfStockSelector).Length() > 0 {
		return decimal.Decimal{}, pricing.ErrOutOfStock
	}
	span := doc.Find(priceSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return priceID.MatchString(s.AttrOr("id", ""))
	}).First()
	if span.Length() == 0 {
		return decimal.Decimal{}, pricing.ErrPriceNotFound
	}
	raw, ok := span.Attr(priceAttr)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s missing on #%s", pricing.ErrParseFailed, priceAttr, span.AttrOr("id", ""))
	}
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q: %w", pricing.ErrParseFailed, raw, err)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative price %s", pricing.ErrParseFailed, raw)
	}
	return price, nil
}

// FetchMetadata imports product details. Only the title is required; a
// missing description or a failed image download is logged and skipped.
func (a *Adapter) FetchMetadata(ctx context.Context, rawURL string) (pricing.ProductMetadata, error) {
	doc, pageURL, err := a.document(ctx, rawURL)
	if err != nil {
		return pricing.ProductMetadata{}, err
	}

	title, ok := doc.Find(titleSelector).First().Attr("data-text")
	if !ok || strings.TrimSpace(title) == "" {
		return pricing.ProductMetadata{}, fmt.Errorf("%w: %s: no page title", pricing.ErrParseFailed, rawURL)
	}

	meta := pricing.ProductMetadata{
		Title:    strings.TrimSpace(title),
		Edition:  edition(doc),
		Platform: strings.TrimSpace(doc.Find(platformSelector).First().Text()),
		URL:      rawURL,
	}

	if desc, err := a.description(doc, pageURL); err != nil {
		a.logger.Warn("product description unavailable", zap.String("url", rawURL), zap.Error(err))
	} else {
		meta.Description = desc
	}

	if src, ok := doc.Find(imageSelector).First().Attr("src"); ok && a.images != nil {
		img, err := a.images.Download(ctx, resolve(pageURL, src))
		if err != nil {
			a.logger.Warn("product image download failed", zap.String("url", rawURL), zap.Error(err))
		} else {
			meta.Image = &img
		}
	}
	return meta, nil
}

func (a *Adapter) document(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	resp, err := a.pages.Fetch(ctx, pricing.FetchRequest{URL: rawURL})
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", pricing.ErrParseFailed, rawURL, err)
	}
	pageURL, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		pageURL, _ = url.Parse(rawURL)
	}
	return doc, pageURL, nil
}

// description converts every paragraph but the trailing "Read More" link to markdown.
func (a *Adapter) description(doc *goquery.Document, pageURL *url.URL) (string, error) {
	container := doc.Find(descriptionSelector).First()
	if container.Length() == 0 {
		return "", fmt.Errorf("%w: no description block", pricing.ErrParseFailed)
	}
	paragraphs := container.Find("p")
	if paragraphs.Length() == 0 {
		return "", fmt.Errorf("%w: description has no paragraphs", pricing.ErrParseFailed)
	}

	var html strings.Builder
	paragraphs.Slice(0, paragraphs.Length()-1).Each(func(_ int, p *goquery.Selection) {
		if outer, err := goquery.OuterHtml(p); err == nil {
			html.WriteString(outer)
		}
	})
	clean := a.sanitizer.Sanitize(html.String())
	if strings.TrimSpace(clean) == "" {
		return "", nil
	}
	domain := ""
	if pageURL != nil {
		domain = pageURL.Scheme + "://" + pageURL.Host
	}
	md, err := a.markdown.ConvertString(clean, converter.WithDomain(domain))
	if err != nil {
		return "", fmt.Errorf("%w: description markdown: %w", pricing.ErrParseFailed, err)
	}
	return strings.TrimSpace(md), nil
}

func edition(doc *goquery.Document) string {
	options := doc.Find(editionSelector).First().Find("option")
	selected := options.FilterFunction(func(_ int, s *goquery.Selection) bool {
		_, ok := s.Attr("selected")
		return ok
	}).First()
	if selected.Length() == 0 {
		selected = options.First()
	}
	return strings.TrimSpace(selected.Text())
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
