package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/matchgenius-api/internal/models"
)

// SQLiteCatalogRepository implements CatalogRepository for SQLite.
type SQLiteCatalogRepository struct {
	db *sql.DB
}

// NewSQLiteCatalogRepository creates a new SQLite catalog repository.
func NewSQLiteCatalogRepository(db *sql.DB) *SQLiteCatalogRepository {
	return &SQLiteCatalogRepository{db: db}
}

func (r *SQLiteCatalogRepository) Replace(ctx context.Context, products []*models.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM billing_prices`); err != nil {
		return fmt.Errorf("failed to clear prices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM billing_products`); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range products {
		if p.ID == "" {
			p.ID = ulid.Make().String()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO billing_products (id, stripe_product_id, name, description, active, default_price_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.StripeProductID, p.Name, emptyToNull(p.Description), boolToInt(p.Active), emptyToNull(p.DefaultPriceID), now)
		if err != nil {
			return fmt.Errorf("failed to insert product %s: %w", p.StripeProductID, err)
		}

		for _, price := range p.Prices {
			if price.ID == "" {
				price.ID = ulid.Make().String()
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO billing_prices (id, stripe_price_id, stripe_product_id, currency, unit_amount, type, interval, interval_count, active, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				price.ID, price.StripePriceID, p.StripeProductID, price.Currency, price.UnitAmount, price.Type,
				emptyToNull(price.Interval), price.IntervalCount, boolToInt(price.Active), now)
			if err != nil {
				return fmt.Errorf("failed to insert price %s: %w", price.StripePriceID, err)
			}
		}
	}

	return tx.Commit()
}

func (r *SQLiteCatalogRepository) ListActive(ctx context.Context) ([]*models.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, stripe_product_id, name, description, active, default_price_id, updated_at
		FROM billing_products WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}

	var products []*models.Product
	byStripeID := make(map[string]*models.Product)
	for rows.Next() {
		var p models.Product
		var description, defaultPrice sql.NullString
		var active int
		var updatedAt string
		if err := rows.Scan(&p.ID, &p.StripeProductID, &p.Name, &description, &active, &defaultPrice, &updatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		p.Description = description.String
		p.DefaultPriceID = defaultPrice.String
		p.Active = active == 1
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		products = append(products, &p)
		byStripeID[p.StripeProductID] = &p
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}

	priceRows, err := r.db.QueryContext(ctx, `SELECT id, stripe_price_id, stripe_product_id, currency, unit_amount, type, interval, interval_count, active, updated_at
		FROM billing_prices WHERE active = 1 ORDER BY unit_amount`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = priceRows.Close() }()

	for priceRows.Next() {
		var price models.Price
		var interval sql.NullString
		var intervalCount sql.NullInt64
		var active int
		var updatedAt string
		if err := priceRows.Scan(&price.ID, &price.StripePriceID, &price.StripeProductID, &price.Currency, &price.UnitAmount,
			&price.Type, &interval, &intervalCount, &active, &updatedAt); err != nil {
			return nil, err
		}
		price.Interval = interval.String
		price.IntervalCount = intervalCount.Int64
		price.Active = active == 1
		price.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if p, ok := byStripeID[price.StripeProductID]; ok {
			p.Prices = append(p.Prices, &price)
		}
	}
	return products, priceRows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
