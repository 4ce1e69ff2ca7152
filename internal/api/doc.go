// Package api hosts the read-only HTTP server used by `pricewatch serve`.
// Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/products and /v1/products/{product_id} for tracked products.
//   - GET /v1/products/{product_id}/prices for price history.
//   - GET /v1/runs/latest for the summary of the most recent scrape pass.
package api
