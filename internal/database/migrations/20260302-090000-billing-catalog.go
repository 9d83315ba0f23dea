package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260302-090000",
		Description: "Billing product catalog mirror",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS billing_products (
				id TEXT PRIMARY KEY,
				stripe_product_id TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				description TEXT,
				active INTEGER NOT NULL DEFAULT 1,
				default_price_id TEXT,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS billing_prices (
				id TEXT PRIMARY KEY,
				stripe_price_id TEXT NOT NULL UNIQUE,
				stripe_product_id TEXT NOT NULL REFERENCES billing_products(stripe_product_id) ON DELETE CASCADE,
				currency TEXT NOT NULL,
				unit_amount INTEGER NOT NULL DEFAULT 0,
				type TEXT NOT NULL,
				interval TEXT,
				interval_count INTEGER,
				active INTEGER NOT NULL DEFAULT 1,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_billing_prices_product ON billing_prices(stripe_product_id)`,
		},
	})
}
