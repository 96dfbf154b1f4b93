package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"grocery-api/internal/domain"
)

// OTPRepository persiste un registro OTP por numero movil.
type OTPRepository interface {
	// Issue reemplaza el registro solo si no existe, ya fue verificado o su
	// ultimo envio es anterior a resendCutoff. Devuelve false si el cooldown sigue activo.
	Issue(ctx context.Context, rec domain.OTPRecord, resendCutoff time.Time) (bool, error)
	Get(ctx context.Context, mobile string) (domain.OTPRecord, error)
	// MarkVerified consume el codigo; false si otro verify lo consumio antes o fue reemplazado.
	MarkVerified(ctx context.Context, mobile, codeHash string, now time.Time) (bool, error)
	IncrementAttempts(ctx context.Context, mobile string, now time.Time) (int, error)
	Delete(ctx context.Context, mobile string) error
}

type PgOTPRepository struct {
	pool *pgxpool.Pool
}

func NewPgOTPRepository(pool *pgxpool.Pool) *PgOTPRepository {
	return &PgOTPRepository{pool: pool}
}

func (r *PgOTPRepository) Issue(ctx context.Context, rec domain.OTPRecord, resendCutoff time.Time) (bool, error) {
	const query = `
		INSERT INTO otp_records (mobile_number, code_hash, expires_at, verified, attempts, last_sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, 0, $4, $4, $4)
		ON CONFLICT (mobile_number) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			verified = FALSE,
			attempts = 0,
			last_sent_at = EXCLUDED.last_sent_at,
			updated_at = EXCLUDED.updated_at
		WHERE otp_records.verified OR otp_records.last_sent_at <= $5
	`
	tag, err := r.pool.Exec(ctx, query,
		rec.MobileNumber,
		rec.CodeHash,
		rec.ExpiresAt,
		rec.LastSentAt,
		resendCutoff,
	)
	if err != nil {
		return false, fmt.Errorf("issue otp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgOTPRepository) Get(ctx context.Context, mobile string) (domain.OTPRecord, error) {
	const query = `
		SELECT mobile_number, code_hash, expires_at, verified, attempts, last_sent_at, created_at, updated_at
		FROM otp_records
		WHERE mobile_number = $1
	`
	var rec domain.OTPRecord
	err := r.pool.QueryRow(ctx, query, mobile).Scan(
		&rec.MobileNumber,
		&rec.CodeHash,
		&rec.ExpiresAt,
		&rec.Verified,
		&rec.Attempts,
		&rec.LastSentAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return domain.OTPRecord{}, mapError(err)
	}
	return rec, nil
}

func (r *PgOTPRepository) MarkVerified(ctx context.Context, mobile, codeHash string, now time.Time) (bool, error) {
	const query = `
		UPDATE otp_records
		SET verified = TRUE, updated_at = $3
		WHERE mobile_number = $1 AND code_hash = $2 AND verified = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, mobile, codeHash, now)
	if err != nil {
		return false, fmt.Errorf("mark otp verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgOTPRepository) IncrementAttempts(ctx context.Context, mobile string, now time.Time) (int, error) {
	const query = `
		UPDATE otp_records
		SET attempts = attempts + 1, updated_at = $2
		WHERE mobile_number = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.pool.QueryRow(ctx, query, mobile, now).Scan(&attempts); err != nil {
		return 0, mapError(err)
	}
	return attempts, nil
}

func (r *PgOTPRepository) Delete(ctx context.Context, mobile string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otp_records WHERE mobile_number = $1`, mobile)
	return err
}
