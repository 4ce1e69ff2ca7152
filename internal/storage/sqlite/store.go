// Package sqlite implements pricing.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// Store implements pricing.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", pricing.ErrStorageFailed)
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", pricing.ErrStorageFailed, path, err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY and keeps an
	// in-memory database on a single connection.
	db.SetMaxOpenConns(1)

	s := NewWithDB(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle. The caller is responsible for Migrate.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %w", pricing.ErrStorageFailed, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListTrackedProducts returns every (product, source) pair ordered by source id.
func (s *Store) ListTrackedProducts(ctx context.Context) ([]pricing.TrackedProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT s.product_id, s.id, s.url, p.name, p.image_ref
FROM sources s JOIN products p ON p.id = s.product_id
ORDER BY s.id`)
	if err != nil {
		return nil, failed("list tracked products", err)
	}
	defer func() { _ = rows.Close() }()

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
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint FROM subscriptions WHERE product_id = ? ORDER BY id`, productID)
	if err != nil {
		return nil, failed("subscribed endpoints", err)
	}
	defer func() { _ = rows.Close() }()

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
	err := s.db.QueryRowContext(ctx, `SELECT image_ref FROM products WHERE id = ?`, productID).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", failed("image reference", err)
	}
	return ref, nil
}

// PriceContext returns the latest observation and the earliest lowest one.
func (s *Store) PriceContext(ctx context.Context, productID int64) (pricing.PriceContext, error) {
	latest, err := s.observation(ctx, `
SELECT product_id, site_id, price, previous_price, observed_at FROM prices
WHERE product_id = ? ORDER BY observed_at DESC, id DESC LIMIT 1`, productID)
	if err != nil || latest == nil {
		return pricing.PriceContext{}, err
	}
	// Prices are stored as decimal text. REAL orders them exactly as long as
	// they stay within float64's 15 significant digits, far beyond any price.
	low, err := s.observation(ctx, `
SELECT product_id, site_id, price, previous_price, observed_at FROM prices
WHERE product_id = ? ORDER BY CAST(price AS REAL) ASC, observed_at ASC, id ASC LIMIT 1`, productID)
	if err != nil {
		return pricing.PriceContext{}, err
	}
	return pricing.PriceContext{Previous: latest, HistoricalLow: low}, nil
}

func (s *Store) observation(ctx context.Context, query string, args ...any) (*pricing.Observation, error) {
	obs, err := scanObservation(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
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
		obs.ObservedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO prices (product_id, site_id, price, previous_price, observed_at)
VALUES (?, ?, ?, ?, ?)`,
		obs.ProductID, obs.SiteID, obs.Price.String(), nullString(obs.PreviousPrice), obs.ObservedAt.UnixMilli())
	if err != nil {
		return failed("append observation", err)
	}
	return nil
}

// PriceHistory returns every observation for productID, oldest first.
func (s *Store) PriceHistory(ctx context.Context, productID int64) ([]pricing.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT product_id, site_id, price, previous_price, observed_at FROM prices
WHERE product_id = ? ORDER BY observed_at, id`, productID)
	if err != nil {
		return nil, failed("price history", err)
	}
	defer func() { _ = rows.Close() }()

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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pricing.TrackedProduct{}, failed("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var productID, siteID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO products (name, description, edition, platform, image_ref, created_at)
VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		p.Name, p.Description, p.Edition, p.Platform, p.ImageRef, s.now().UnixMilli()).Scan(&productID)
	if err != nil {
		return pricing.TrackedProduct{}, failed("insert product", err)
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO sources (product_id, url, host) VALUES (?, ?, ?) RETURNING id`,
		productID, p.URL, p.Host).Scan(&siteID)
	if err != nil {
		return pricing.TrackedProduct{}, failed("insert source", err)
	}
	if err := tx.Commit(); err != nil {
		return pricing.TrackedProduct{}, failed("commit", err)
	}
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (product_id, endpoint) VALUES (?, ?) ON CONFLICT (product_id, endpoint) DO NOTHING`,
		productID, endpoint)
	if err != nil {
		return failed("add subscription", err)
	}
	return nil
}

// Product returns the first source of productID.
func (s *Store) Product(ctx context.Context, productID int64) (pricing.TrackedProduct, error) {
	var p pricing.TrackedProduct
	err := s.db.QueryRowContext(ctx, `
SELECT s.product_id, s.id, s.url, p.name, p.image_ref
FROM sources s JOIN products p ON p.id = s.product_id
WHERE s.product_id = ? ORDER BY s.id LIMIT 1`, productID).
		Scan(&p.ProductID, &p.SiteID, &p.URL, &p.Name, &p.ImageRef)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.TrackedProduct{}, fmt.Errorf("product %d: %w", productID, pricing.ErrNotFound)
	}
	if err != nil {
		return pricing.TrackedProduct{}, failed("product", err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(row scanner) (pricing.Observation, error) {
	var (
		obs      pricing.Observation
		price    string
		previous sql.NullString
		millis   int64
	)
	if err := row.Scan(&obs.ProductID, &obs.SiteID, &price, &previous, &millis); err != nil {
		return pricing.Observation{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return pricing.Observation{}, fmt.Errorf("price %q: %w", price, err)
	}
	obs.Price = d
	if previous.Valid {
		prev, err := decimal.NewFromString(previous.String)
		if err != nil {
			return pricing.Observation{}, fmt.Errorf("previous price %q: %w", previous.String, err)
		}
		obs.PreviousPrice = decimal.NewNullDecimal(prev)
	}
	obs.ObservedAt = time.UnixMilli(millis).UTC()
	return obs, nil
}

func nullString(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func failed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", pricing.ErrStorageFailed, op, err)
}
