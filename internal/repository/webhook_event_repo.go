package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/models"
)

// SQLiteWebhookEventRepository implements WebhookEventRepository for SQLite.
type SQLiteWebhookEventRepository struct {
	db *sql.DB
}

// NewSQLiteWebhookEventRepository creates a new SQLite webhook event repository.
func NewSQLiteWebhookEventRepository(db *sql.DB) *SQLiteWebhookEventRepository {
	return &SQLiteWebhookEventRepository{db: db}
}

func (r *SQLiteWebhookEventRepository) Record(ctx context.Context, event *models.WebhookEvent) error {
	if event.LastSeenAt.IsZero() {
		event.LastSeenAt = time.Now().UTC()
	}
	if event.FirstSeenAt.IsZero() {
		event.FirstSeenAt = event.LastSeenAt
	}

	query := `INSERT INTO stripe_webhook_events (id, type, outcome, user_id, error, archive_key, attempts, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			user_id = COALESCE(excluded.user_id, stripe_webhook_events.user_id),
			error = excluded.error,
			archive_key = COALESCE(excluded.archive_key, stripe_webhook_events.archive_key),
			attempts = stripe_webhook_events.attempts + 1,
			last_seen_at = excluded.last_seen_at`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Type, string(event.Outcome),
		emptyToNull(event.UserID), emptyToNull(event.Error), emptyToNull(event.ArchiveKey),
		event.FirstSeenAt.UTC().Format(time.RFC3339), event.LastSeenAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (r *SQLiteWebhookEventRepository) GetByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	query := `SELECT id, type, outcome, user_id, error, archive_key, attempts, first_seen_at, last_seen_at
		FROM stripe_webhook_events WHERE id = ?`
	event, err := scanWebhookEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

func (r *SQLiteWebhookEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT id, type, outcome, user_id, error, archive_key, attempts, first_seen_at, last_seen_at
		FROM stripe_webhook_events ORDER BY last_seen_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*models.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanWebhookEvent(row rowScanner) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	var outcome string
	var userID, errMsg, archiveKey sql.NullString
	var firstSeen, lastSeen string

	if err := row.Scan(&e.ID, &e.Type, &outcome, &userID, &errMsg, &archiveKey, &e.Attempts, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	e.Outcome = models.WebhookOutcome(outcome)
	e.UserID = userID.String
	e.Error = errMsg.String
	e.ArchiveKey = archiveKey.String
	e.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeen)
	e.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeen)
	return &e, nil
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
