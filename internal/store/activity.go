package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
)

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func (r *ActivityRepository) Create(ctx context.Context, a domain.ActivityLog) (domain.ActivityLog, error) {
	a.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, entity_type, entity_id, action, field_name, old_value,
			new_value, user_id, timestamp, comment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, a.ID, a.EntityType, a.EntityID, a.Action, a.FieldName, a.OldValue, a.NewValue,
		a.UserID, a.Timestamp, a.Comment)
	if err != nil {
		return domain.ActivityLog{}, err
	}
	return a, nil
}

func (r *ActivityRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.ActivityLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, field_name, old_value, new_value, user_id, timestamp, comment
		FROM activity_logs WHERE entity_type = $1 AND entity_id = $2 ORDER BY timestamp ASC
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityLog
	for rows.Next() {
		var a domain.ActivityLog
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Action, &a.FieldName,
			&a.OldValue, &a.NewValue, &a.UserID, &a.Timestamp, &a.Comment); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes every activity log row timestamped before the
// cutoff, returning how many rows were purged so the sweep can log it.
func (r *ActivityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
