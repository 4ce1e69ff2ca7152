// Package importer starts tracking a product from its storefront URL.
package importer

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/pricing"
	"github.com/JakeFAU/pricewatch/internal/sites"
)

// Resolver picks the storefront adapter for a product URL.
type Resolver interface {
	Resolve(rawURL string) (sites.Adapter, error)
}

// Importer fetches product metadata, saves its image, and records the product.
type Importer struct {
	resolver Resolver
	catalog  pricing.Catalog
	blobs    pricing.BlobStore
	hasher   pricing.Hasher
	logger   *zap.Logger
}

// New constructs an Importer. blobs may be nil, in which case images are dropped.
func New(
	resolver Resolver,
	catalog pricing.Catalog,
	blobs pricing.BlobStore,
	hasher pricing.Hasher,
	logger *zap.Logger,
) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		resolver: resolver,
		catalog:  catalog,
		blobs:    blobs,
		hasher:   hasher,
		logger:   logger.Named("importer"),
	}
}

// Import adds the product at rawURL to the tracked set.
func (i *Importer) Import(ctx context.Context, rawURL string) (pricing.TrackedProduct, error) {
	adapter, err := i.resolver.Resolve(rawURL)
	if err != nil {
		return pricing.TrackedProduct{}, err
	}
	host, err := sites.Host(rawURL)
	if err != nil {
		return pricing.TrackedProduct{}, err
	}
	meta, err := adapter.FetchMetadata(ctx, rawURL)
	if err != nil {
		return pricing.TrackedProduct{}, fmt.Errorf("import %s: %w", rawURL, err)
	}

	product := pricing.NewProduct{
		Name:        meta.Title,
		Description: meta.Description,
		Edition:     meta.Edition,
		Platform:    meta.Platform,
		URL:         rawURL,
		Host:        host,
	}
	if meta.Image != nil {
		ref, err := i.saveImage(ctx, *meta.Image)
		if err != nil {
			i.logger.Warn("image not saved", zap.String("url", rawURL), zap.Error(err))
		} else {
			product.ImageRef = ref
		}
	}

	tracked, err := i.catalog.SaveProduct(ctx, product)
	if err != nil {
		return pricing.TrackedProduct{}, fmt.Errorf("save product: %w", err)
	}
	i.logger.Info("product imported",
		zap.Int64("product_id", tracked.ProductID),
		zap.String("name", tracked.Name),
		zap.String("url", rawURL),
		zap.String("image_ref", tracked.ImageRef),
	)
	return tracked, nil
}

// saveImage stores img as <sha256>.<ext> and returns that name.
func (i *Importer) saveImage(ctx context.Context, img pricing.Image) (string, error) {
	if i.blobs == nil {
		return "", fmt.Errorf("no image store configured")
	}
	digest, err := i.hasher.Hash(img.Data)
	if err != nil {
		return "", fmt.Errorf("hash image: %w", err)
	}
	name := digest + "." + img.Extension
	if _, err := i.blobs.PutObject(ctx, name, img.ContentType, bytes.NewReader(img.Data)); err != nil {
		return "", fmt.Errorf("store image %s: %w", name, err)
	}
	return name, nil
}
