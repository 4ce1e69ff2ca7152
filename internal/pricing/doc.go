// Package pricing defines the core types, interfaces, and error kinds shared by
// the price ingestion pipeline: site adapters, the classification engine, the
// notification formatter and dispatcher, and the scrape orchestrator.
package pricing
