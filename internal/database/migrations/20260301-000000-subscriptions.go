package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000000",
		Description: "Subscriptions",
		Up: []string{
			// One billing record per Supabase user (no FK, users live in Supabase)
			`CREATE TABLE IF NOT EXISTS subscriptions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL UNIQUE,
				stripe_customer_id TEXT,
				stripe_subscription_id TEXT,
				stripe_price_id TEXT,
				status TEXT,
				current_period_end TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_subscriptions_stripe_customer_id ON subscriptions(stripe_customer_id)`,
			`CREATE INDEX IF NOT EXISTS idx_subscriptions_stripe_subscription_id ON subscriptions(stripe_subscription_id)`,
			`CREATE INDEX IF NOT EXISTS idx_subscriptions_status_period ON subscriptions(status, current_period_end)`,
		},
	})
}
