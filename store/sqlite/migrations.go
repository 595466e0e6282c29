package sqlite

// migrations run in order on Migrate. Each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS manufacturers (
		address    TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS warehouses (
		address          TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		physical_address TEXT NOT NULL DEFAULT '',
		fees_amount      INTEGER NOT NULL DEFAULT 0,
		fees_currency    TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS storefronts (
		address         TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		markup_amount   INTEGER NOT NULL DEFAULT 0,
		markup_currency TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		sku            TEXT NOT NULL UNIQUE,
		name           TEXT NOT NULL,
		price_amount   INTEGER NOT NULL,
		price_currency TEXT NOT NULL,
		manufacturer   TEXT NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_manufacturer ON products (manufacturer)`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id   INTEGER NOT NULL,
		quantity     INTEGER NOT NULL,
		from_address TEXT NOT NULL,
		to_address   TEXT NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shipments_from ON shipments (from_address, status)`,
	`CREATE INDEX IF NOT EXISTS idx_shipments_to ON shipments (to_address, status)`,
	`CREATE TABLE IF NOT EXISTS claimable (
		product_id INTEGER PRIMARY KEY,
		quantity   INTEGER NOT NULL DEFAULT 0
	)`,
}
