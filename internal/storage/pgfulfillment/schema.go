package pgfulfillment

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS fulfillments (
  id BIGSERIAL PRIMARY KEY,
  order_ref TEXT NOT NULL,
  carrier TEXT NOT NULL,
  data JSONB NOT NULL DEFAULT '{}'::jsonb,
  shipped_at TIMESTAMPTZ NULL,
  delivered_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (carrier, order_ref)
)`,
		`CREATE INDEX IF NOT EXISTS idx_fulfillments_label_status ON fulfillments((data->>'status'))`,
		// Выборка tracking-синка: отгружено, не доставлено.
		`CREATE INDEX IF NOT EXISTS idx_fulfillments_in_transit ON fulfillments(shipped_at) WHERE delivered_at IS NULL`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
