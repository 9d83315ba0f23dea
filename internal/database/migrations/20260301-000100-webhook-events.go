package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260301-000100",
		Description: "Stripe webhook delivery log",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS stripe_webhook_events (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				outcome TEXT NOT NULL,
				user_id TEXT,
				error TEXT,
				archive_key TEXT,
				attempts INTEGER NOT NULL DEFAULT 1,
				first_seen_at TEXT NOT NULL,
				last_seen_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stripe_webhook_events_last_seen ON stripe_webhook_events(last_seen_at)`,
			`CREATE INDEX IF NOT EXISTS idx_stripe_webhook_events_user_id ON stripe_webhook_events(user_id)`,
		},
	})
}
