// Package media downloads product images and validates them by content
// sniffing rather than trusting the server's Content-Type.
package media

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// allowed maps sniffed MIME types to the file extension images are saved with.
var allowed = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
}

// Loader implements pricing.ImageLoader.
type Loader struct {
	pages pricing.PageFetcher
}

// NewLoader builds a Loader that downloads through pages.
func NewLoader(pages pricing.PageFetcher) *Loader {
	return &Loader{pages: pages}
}

// Download fetches src and returns it if it is a PNG or JPEG image.
func (l *Loader) Download(ctx context.Context, src string) (pricing.Image, error) {
	resp, err := l.pages.Fetch(ctx, pricing.FetchRequest{URL: src})
	if err != nil {
		return pricing.Image{}, err
	}
	img, err := Validate(resp.Body)
	if err != nil {
		return pricing.Image{}, fmt.Errorf("%s: %w", src, err)
	}
	return img, nil
}

// Validate sniffs data and rejects anything other than PNG or JPEG.
func Validate(data []byte) (pricing.Image, error) {
	if len(data) == 0 {
		return pricing.Image{}, fmt.Errorf("%w: empty body", pricing.ErrDisallowedContent)
	}
	mtype := mimetype.Detect(data)
	ext, ok := allowed[mtype.String()]
	if !ok {
		return pricing.Image{}, fmt.Errorf("%w: %s", pricing.ErrDisallowedContent, mtype.String())
	}
	return pricing.Image{Data: data, Extension: ext, ContentType: mtype.String()}, nil
}
