package pgfulfillment

import (
	"context"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const selectColumns = `
  id, order_ref, carrier, data, shipped_at, delivered_at, created_at, updated_at`

func scanFulfillment(row pgx.Row) (*models.Fulfillment, error) {
	var f models.Fulfillment
	if err := row.Scan(
		&f.ID, &f.OrderRef, &f.Carrier, &f.Data,
		&f.ShippedAt, &f.DeliveredAt,
		&f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Storage) collect(rows pgx.Rows) ([]*models.Fulfillment, error) {
	defer rows.Close()

	var out []*models.Fulfillment
	for rows.Next() {
		f, err := scanFulfillment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan fulfillment")
		}
		out = append(out, f)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CreateFulfillments inserts new records with pending label data; an
// existing (carrier, order_ref) pair is returned as-is.
func (s *Storage) CreateFulfillments(ctx context.Context, items []models.FulfillmentCreateInput) ([]*models.Fulfillment, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		data := models.FulfillmentData{
			Status:        models.LabelStatusPending,
			BatchID:       it.BatchID,
			ProductType:   it.ProductType,
			AccessPointID: it.AccessPointID,
		}
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO fulfillments (order_ref, carrier, data, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT (carrier, order_ref)
DO UPDATE SET updated_at = fulfillments.updated_at
RETURNING id
`, it.OrderRef, it.Carrier, data, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert fulfillment")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetByIDs(ctx, ids)
}

func (s *Storage) GetByIDs(ctx context.Context, ids []uint64) ([]*models.Fulfillment, error) {
	if len(ids) == 0 {
		return []*models.Fulfillment{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT`+selectColumns+` FROM fulfillments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select fulfillments")
	}
	return s.collect(rows)
}

// PendingLabel возвращает фулфилменты, ждущие завершения батча этикеток.
func (s *Storage) PendingLabel(ctx context.Context, limit int) ([]*models.Fulfillment, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.db.Query(ctx, `
SELECT`+selectColumns+`
FROM fulfillments
WHERE data->>'status' = $1
  AND COALESCE(data->>'batch_id', '') <> ''
ORDER BY id ASC
LIMIT $2
`, models.LabelStatusPending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select pending label")
	}
	return s.collect(rows)
}

// ShippedUndelivered returns carrier-tracked fulfillments that were
// shipped, have a shipment number and are not yet delivered.
func (s *Storage) ShippedUndelivered(ctx context.Context, limit int) ([]*models.Fulfillment, error) {
	if limit <= 0 {
		limit = 5000
	}

	rows, err := s.db.Query(ctx, `
SELECT`+selectColumns+`
FROM fulfillments
WHERE shipped_at IS NOT NULL
  AND delivered_at IS NULL
  AND COALESCE(data->>'shipment_number', '') <> ''
ORDER BY shipped_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select shipped undelivered")
	}
	return s.collect(rows)
}

func (s *Storage) UpdateData(ctx context.Context, id uint64, data models.FulfillmentData) error {
	_, err := s.db.Exec(ctx,
		`UPDATE fulfillments SET data = $2, updated_at = now() WHERE id = $1`, id, data)
	return errors.Wrap(err, "update fulfillment data")
}

func (s *Storage) MarkShipped(ctx context.Context, id uint64, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE fulfillments SET shipped_at = $2, updated_at = now() WHERE id = $1`, id, at.UTC())
	return errors.Wrap(err, "mark shipped")
}

// SetDelivered writes the terminal delivery timestamp together with the
// final data payload in one statement.
func (s *Storage) SetDelivered(ctx context.Context, id uint64, at time.Time, data models.FulfillmentData) error {
	_, err := s.db.Exec(ctx,
		`UPDATE fulfillments SET delivered_at = $2, data = $3, updated_at = now() WHERE id = $1`,
		id, at.UTC(), data)
	return errors.Wrap(err, "set delivered")
}
