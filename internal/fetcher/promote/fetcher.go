// Package promote fetches pages cheaply and re-fetches them with a headless
// browser only when the cheap response looks unrendered.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// Detector decides whether a response needs a headless render.
type Detector interface {
	ShouldPromote(resp pricing.FetchResponse) bool
}

// Fetcher implements pricing.PageFetcher.
type Fetcher struct {
	fast     pricing.PageFetcher
	headless pricing.PageFetcher
	detector Detector
	logger   *zap.Logger
}

// New builds a promoting fetcher.
func New(fast, headless pricing.PageFetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{fast: fast, headless: headless, detector: detector, logger: logger.Named("fetch")}
}

// Fetch returns the fast response unless the detector asks for a render. A
// failed render falls back to the fast response.
func (f *Fetcher) Fetch(ctx context.Context, request pricing.FetchRequest) (pricing.FetchResponse, error) {
	resp, err := f.fast.Fetch(ctx, request)
	if err != nil {
		return resp, err
	}
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, nil
	}
	f.logger.Debug("promoting to headless", zap.String("url", request.URL))
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		f.logger.Warn("headless fetch failed, using fast response",
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return resp, nil
	}
	return rendered, nil
}
