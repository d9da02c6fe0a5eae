package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
)

// querier is the subset of pgxpool.Pool the repository needs.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ membership.DeliveryLog = (*DeliveryRepo)(nil)

type DeliveryRepo struct {
	q       querier
	timeout time.Duration
}

func NewDeliveryRepo(db *DB) *DeliveryRepo {
	return &DeliveryRepo{q: db.Pool, timeout: db.QueryTimeout}
}

const (
	qDeliveryInsert = `
INSERT INTO card_deliveries (member_id, kind, channel_id, status, stage, error, render_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
RETURNING id, created_at;
`
	qDeliveriesByMember = `
SELECT id, member_id, kind, channel_id, status, stage, error, render_ms, created_at
FROM card_deliveries
WHERE member_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
)

func (r *DeliveryRepo) Record(ctx context.Context, d *membership.Delivery) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.q.QueryRow(ctx, qDeliveryInsert,
		d.MemberID,
		string(d.Kind),
		d.ChannelID,
		string(d.Status),
		string(d.Stage),
		d.Error,
		d.RenderMillis,
		nullTime(d.CreatedAt),
	).Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) ListByMember(ctx context.Context, memberID string, limit int) ([]*membership.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, qDeliveriesByMember, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]*membership.Delivery, 0, limit)
	for rows.Next() {
		var (
			d                   membership.Delivery
			kind, status, stage string
		)
		if err := rows.Scan(&d.ID, &d.MemberID, &kind, &d.ChannelID, &status, &stage, &d.Error, &d.RenderMillis, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Kind = membership.Kind(kind)
		d.Status = membership.DeliveryStatus(status)
		d.Stage = membership.Stage(stage)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *DeliveryRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// NopDeliveryLog is used when no database is configured.
type NopDeliveryLog struct{}

func (NopDeliveryLog) Record(context.Context, *membership.Delivery) error { return nil }
