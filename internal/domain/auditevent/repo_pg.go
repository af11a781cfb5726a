package auditevent

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, t *StatusTransition) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO insurance_status_audit (id, insurance_id, previous_status, new_status, at)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.InsuranceID, t.PreviousStatus, t.NewStatus, t.At)
	return err
}

func (r *repoPG) ListByInsurance(ctx context.Context, insuranceID uuid.UUID, limit, offset int) ([]*StatusTransition, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM insurance_status_audit WHERE insurance_id = $1`, insuranceID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, insurance_id, previous_status, new_status, at
		FROM insurance_status_audit
		WHERE insurance_id = $1
		ORDER BY at ASC
		LIMIT $2 OFFSET $3`, insuranceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*StatusTransition
	for rows.Next() {
		var t StatusTransition
		if err := rows.Scan(&t.ID, &t.InsuranceID, &t.PreviousStatus, &t.NewStatus, &t.At); err != nil {
			return nil, 0, err
		}
		items = append(items, &t)
	}
	return items, total, rows.Err()
}
