package sqlite

// schema is applied on every open. Prices are stored as exact decimal text;
// timestamps are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	edition     TEXT    NOT NULL DEFAULT '',
	platform    TEXT    NOT NULL DEFAULT '',
	image_ref   TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sources (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	url        TEXT    NOT NULL UNIQUE,
	host       TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS prices (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id     INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	site_id        INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	price          TEXT    NOT NULL,
	previous_price TEXT,
	observed_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_product_time ON prices(product_id, observed_at);
CREATE TABLE IF NOT EXISTS subscriptions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	endpoint   TEXT    NOT NULL,
	UNIQUE (product_id, endpoint)
);
`
