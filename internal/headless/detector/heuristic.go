// Package detector decides when a storefront page needs a headless render.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

const defaultMinText = 200

// Heuristic promotes pages that look like an unrendered single-page app
// shell: empty, carrying a known framework mount point, or with almost no
// visible text once scripts and styles are removed.
type Heuristic struct {
	// MinTextBytes is the visible text below which a page is promoted.
	MinTextBytes int
	// Required, when set, lists markers of a rendered product page. A page
	// carrying none of them is promoted.
	Required [][]byte
}

// NewHeuristic creates a detector. minText <= 0 uses the default.
func NewHeuristic(minText int, required ...string) *Heuristic {
	if minText <= 0 {
		minText = defaultMinText
	}
	h := &Heuristic{MinTextBytes: minText}
	for _, r := range required {
		h.Required = append(h.Required, []byte(r))
	}
	return h
}

var spaMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
}

// ShouldPromote decides whether resp should be fetched again headlessly.
// Error responses are never promoted.
func (h *Heuristic) ShouldPromote(resp pricing.FetchResponse) bool {
	if resp.StatusCode != 0 && resp.StatusCode != 200 {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if len(h.Required) > 0 && !containsAny(body, h.Required) {
		return true
	}
	return visibleTextLen(body) < h.MinTextBytes
}

func containsAny(body []byte, markers [][]byte) bool {
	for _, m := range markers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}

func visibleTextLen(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return len(body)
	}
	doc.Find("script, style, noscript, template").Remove()
	return len(strings.Join(strings.Fields(doc.Text()), " "))
}
