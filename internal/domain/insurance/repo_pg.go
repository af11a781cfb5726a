package insurance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const recCols = `id, session_id, subscriber_first_name, subscriber_last_name, member_id,
	group_number, date_of_birth, payer_name, payer_id,
	verification_status, verification_result, retry_attempts, created_at, updated_at`

func scanRecord(row pgx.Row) (*InsuranceRecord, error) {
	var (
		rec       InsuranceRecord
		rawStatus string
		rawResult []byte
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.SubscriberFirstName, &rec.SubscriberLastName, &rec.MemberID,
		&rec.GroupNumber, &rec.DateOfBirth, &rec.PayerName, &rec.PayerID,
		&rawStatus, &rawResult, &rec.RetryAttempts, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec.VerificationStatus, err = ParseVerificationStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if len(rawResult) > 0 {
		rec.VerificationResult, err = UnmarshalStoredResult(rawResult)
		if err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (r *repoPG) Create(ctx context.Context, rec *InsuranceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.VerificationStatus == "" {
		rec.VerificationStatus = StatusPending
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO insurance_record (id, session_id, subscriber_first_name, subscriber_last_name, member_id,
			group_number, date_of_birth, payer_name, payer_id, verification_status, retry_attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID, rec.SessionID, rec.SubscriberFirstName, rec.SubscriberLastName, rec.MemberID,
		rec.GroupNumber, rec.DateOfBirth, rec.PayerName, rec.PayerID, rec.VerificationStatus, rec.RetryAttempts)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*InsuranceRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+recCols+` FROM insurance_record WHERE id = $1`, id))
}

func (r *repoPG) GetBySession(ctx context.Context, sessionID uuid.UUID) (*InsuranceRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+recCols+` FROM insurance_record WHERE session_id = $1`, sessionID))
}

func (r *repoPG) Update(ctx context.Context, rec *InsuranceRecord) error {
	var rawResult []byte
	if rec.VerificationResult != nil {
		var err error
		rawResult, err = rec.VerificationResult.Marshal()
		if err != nil {
			return err
		}
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE insurance_record SET subscriber_first_name=$2, subscriber_last_name=$3, member_id=$4,
			group_number=$5, date_of_birth=$6, payer_name=$7, payer_id=$8,
			verification_status=$9, verification_result=$10, retry_attempts=$11, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.SubscriberFirstName, rec.SubscriberLastName, rec.MemberID,
		rec.GroupNumber, rec.DateOfBirth, rec.PayerName, rec.PayerID,
		rec.VerificationStatus, rawResult, rec.RetryAttempts)
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status VerificationStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE insurance_record SET verification_status=$2, updated_at=NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SaveVerification(ctx context.Context, id uuid.UUID, status VerificationStatus, result *StoredResult) error {
	raw, err := result.Marshal()
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE insurance_record SET verification_status=$2, verification_result=$3, updated_at=NOW()
		WHERE id = $1`,
		id, status, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRetryHistory locks the row, appends the entry to the stored result,
// bumps the counter, and moves the status, all in one transaction.
func (r *repoPG) AppendRetryHistory(ctx context.Context, id uuid.UUID, entry RetryEntry, status VerificationStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("insurance: begin retry append: %w", err)
	}
	defer tx.Rollback(ctx)

	var rawResult []byte
	if err := tx.QueryRow(ctx,
		`SELECT verification_result FROM insurance_record WHERE id = $1 FOR UPDATE`, id).Scan(&rawResult); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	result := &StoredResult{}
	if len(rawResult) > 0 {
		result, err = UnmarshalStoredResult(rawResult)
		if err != nil {
			return err
		}
	}
	result.RetryHistory = append(result.RetryHistory, entry)

	raw, err := result.Marshal()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE insurance_record
		SET verification_result=$2, retry_attempts=retry_attempts+1, verification_status=$3, updated_at=NOW()
		WHERE id = $1`,
		id, raw, status); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *repoPG) ResetRetryAttempts(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE insurance_record SET retry_attempts=0, updated_at=NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
