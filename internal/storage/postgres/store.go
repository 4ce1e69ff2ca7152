// Package postgres provides a Postgres-backed pricing.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT        NOT NULL,
	description TEXT        NOT NULL DEFAULT '',
	edition     TEXT        NOT NULL DEFAULT '',
	platform    TEXT        NOT NULL DEFAULT '',
	image_ref   TEXT        NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sources (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	url        TEXT   NOT NULL UNIQUE,
	host       TEXT   NOT NULL
);
CREATE TABLE IF NOT EXISTS prices (
	id             BIGSERIAL PRIMARY KEY,
	product_id     BIGINT        NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	site_id        BIGINT        NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	price          NUMERIC(12,2) NOT NULL,
	previous_price NUMERIC(12,2),
	observed_at    TIMESTAMPTZ   NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_product_time ON prices(product_id, observed_at);
CREATE TABLE IF NOT EXISTS subscriptions (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	endpoint   TEXT   NOT NULL,
	UNIQUE (product_id, endpoint)
);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store implements pricing.Store on Postgres. Prices travel as text so the
// NUMERIC column round-trips exactly into decimal.Decimal.
type Store struct {
	pool pool
}

// NewStore connects to Postgres using cfg. Call Migrate before first use.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", pricing.ErrStorageFailed, err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return failed("migrate", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const trackedColumns = `s.product_id, s.id, s.url, p.name, p.image_ref
FROM sources s JOIN products p ON p.id = s.product_id`

// ListTrackedProducts returns every (product, source) pair ordered by source id.
func (s *Store) ListTrackedProducts(ctx context.Context) ([]pricing.TrackedProduct, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+trackedColumns+` ORDER BY s.id`)
	if err != nil {
		return nil, failed("list tracked products", err)
	}
	defer rows.Close()

	var out []pricing.TrackedProduct
	for rows.Next() {
		var p pricing.TrackedProduct
		if err := rows.Scan(&p.ProductID, &p.SiteID, &p.URL, &p.Name, &p.ImageRef); err != nil {
			return nil, failed("scan tracked product", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, failed("list tracked products", err)
	}
	return out, nil
}

// SubscribedEndpoints returns the webhook endpoints for productID in subscription order.
func (s *Store) SubscribedEndpoints(ctx context.Context, productID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint FROM subscriptions WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, failed("subscribed endpoints", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var endpoint string
		if err := rows.Scan(&endpoint); err != nil {
			return nil, failed("scan endpoint", err)
		}
		out = append(out, endpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, failed("subscribed endpoints", err)
	}
	return out, nil
}

// ImageReference returns the saved image name for productID, or "" if none.
func (s *Store) ImageReference(ctx context.Context, productID int64) (string, error) {
	var ref string
	err := s.pool.QueryRow(ctx, `SELECT image_ref FROM products WHERE id = $1`, productID).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", failed("image reference", err)
	}
	return ref, nil
}

const observationColumns = `product_id, site_id, price::text, previous_price::text, observed_at FROM prices`

// PriceContext returns the latest observation and the earliest lowest one.
func (s *Store) PriceContext(ctx context.Context, productID int64) (pricing.PriceContext, error) {
	latest, err := s.observation(ctx,
		`SELECT `+observationColumns+` WHERE product_id = $1 ORDER BY observed_at DESC, id DESC LIMIT 1`, productID)
	if err != nil || latest == nil {
		return pricing.PriceContext{}, err
	}
	low, err := s.observation(ctx,
		`SELECT `+observationColumns+` WHERE product_id = $1 ORDER BY price ASC, observed_at ASC, id ASC LIMIT 1`, productID)
	if err != nil {
		return pricing.PriceContext{}, err
	}
	return pricing.PriceContext{Previous: latest, HistoricalLow: low}, nil
}

func (s *Store) observation(ctx context.Context, query string, args ...any) (*pricing.Observation, error) {
	obs, err := scanObservation(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, failed("price context", err)
	}
	return &obs, nil
}

// AppendObservation inserts obs.
func (s *Store) AppendObservation(ctx context.Context, obs pricing.Observation) error {
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}
	var previous *string
	if obs.PreviousPrice.Valid {
		v := obs.PreviousPrice.Decimal.String()
		previous = &v
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO prices (product_id, site_id, price, previous_price, observed_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5)`,
		obs.ProductID, obs.SiteID, obs.Price.String(), previous, obs.ObservedAt)
	if err != nil {
		return failed("append observation", err)
	}
	return nil
}

// PriceHistory returns every observation for productID, oldest first.
func (s *Store) PriceHistory(ctx context.Context, productID int64) ([]pricing.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+observationColumns+` WHERE product_id = $1 ORDER BY observed_at, id`, productID)
	if err != nil {
		return nil, failed("price history", err)
	}
	defer rows.Close()

	var out []pricing.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, failed("scan observation", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, failed("price history", err)
	}
	return out, nil
}

// SaveProduct inserts a product and its single source in one transaction.
func (s *Store) SaveProduct(ctx context.Context, p pricing.NewProduct) (pricing.TrackedProduct, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pricing.TrackedProduct{}, failed("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var productID, siteID int64
	err = tx.QueryRow(ctx, `
INSERT INTO products (name, description, edition, platform, image_ref)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.Name, p.Description, p.Edition, p.Platform, p.ImageRef).Scan(&productID)
	if err != nil {
		return pricing.TrackedProduct{}, failed("insert product", err)
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO sources (product_id, url, host) VALUES ($1, $2, $3) RETURNING id`,
		productID, p.URL, p.Host).Scan(&siteID)
	if err != nil {
		return pricing.TrackedProduct{}, failed("insert source", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return pricing.TrackedProduct{}, failed("commit", err)
	}
	committed = true
	return pricing.TrackedProduct{
		ProductID: productID,
		SiteID:    siteID,
		URL:       p.URL,
		Name:      p.Name,
		ImageRef:  p.ImageRef,
	}, nil
}

// AddSubscription subscribes endpoint to productID. Re-subscribing is a no-op.
func (s *Store) AddSubscription(ctx context.Context, productID int64, endpoint string) error {
	if _, err := s.Product(ctx, productID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (product_id, endpoint) VALUES ($1, $2) ON CONFLICT (product_id, endpoint) DO NOTHING`,
		productID, endpoint)
	if err != nil {
		return failed("add subscription", err)
	}
	return nil
}

// Product returns the first source of productID.
func (s *Store) Product(ctx context.Context, productID int64) (pricing.TrackedProduct, error) {
	var p pricing.TrackedProduct
	err := s.pool.QueryRow(ctx,
		`SELECT `+trackedColumns+` WHERE s.product_id = $1 ORDER BY s.id LIMIT 1`, productID).
		Scan(&p.ProductID, &p.SiteID, &p.URL, &p.Name, &p.ImageRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.TrackedProduct{}, fmt.Errorf("product %d: %w", productID, pricing.ErrNotFound)
	}
	if err != nil {
		return pricing.TrackedProduct{}, failed("product", err)
	}
	return p, nil
}

func scanObservation(row pgx.Row) (pricing.Observation, error) {
	var (
		obs      pricing.Observation
		price    string
		previous *string
	)
	if err := row.Scan(&obs.ProductID, &obs.SiteID, &price, &previous, &obs.ObservedAt); err != nil {
		return pricing.Observation{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return pricing.Observation{}, fmt.Errorf("price %q: %w", price, err)
	}
	obs.Price = d
	if previous != nil {
		prev, err := decimal.NewFromString(*previous)
		if err != nil {
			return pricing.Observation{}, fmt.Errorf("previous price %q: %w", *previous, err)
		}
		obs.PreviousPrice = decimal.NewNullDecimal(prev)
	}
	obs.ObservedAt = obs.ObservedAt.UTC()
	return obs, nil
}

func failed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", pricing.ErrStorageFailed, op, err)
}
