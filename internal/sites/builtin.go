package sites

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/pricing"
	"github.com/JakeFAU/pricewatch/internal/sites/cdkeys"
	"github.com/JakeFAU/pricewatch/internal/sites/greenmangaming"
)

// Builtin returns a Registry holding every storefront this build supports.
func Builtin(pages pricing.PageFetcher, images pricing.ImageLoader, clock pricing.Clock, logger *zap.Logger) *Registry {
	r := NewRegistry()
	mustRegister(r, cdkeys.Host, AdapterFor("cdkeys", cdkeys.New(pages, images, clock, logger)))
	mustRegister(r, greenmangaming.Host, AdapterFor("greenmangaming", greenmangaming.New(pages, clock)))
	return r
}

// PriceMarkers lists the markup each built-in storefront renders around its
// price. A fetched page carrying none of them was not rendered.
func PriceMarkers() []string {
	return []string{cdkeys.PriceMarker, greenmangaming.PriceMarker}
}

func mustRegister(r *Registry, host string, a Adapter) {
	if err := r.Register(host, a); err != nil {
		panic(err)
	}
}
