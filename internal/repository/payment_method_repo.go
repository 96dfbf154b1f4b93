package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"grocery-api/internal/domain"
)

// PaymentMethodStore opera sobre los medios de pago activos de un usuario.
type PaymentMethodStore interface {
	ListActive(ctx context.Context, userID string) ([]domain.PaymentMethod, error)
	Get(ctx context.Context, userID, id string) (domain.PaymentMethod, error)
	FindActiveByToken(ctx context.Context, userID, token string) (domain.PaymentMethod, error)
	Insert(ctx context.Context, pm domain.PaymentMethod) error
	ClearDefaults(ctx context.Context, userID string, now time.Time) error
	SetDefault(ctx context.Context, userID, id string, now time.Time) error
	Deactivate(ctx context.Context, userID, id string, now time.Time) error
	TouchLastUsed(ctx context.Context, userID, id string, now time.Time) error
}

// PaymentMethodRepository agrega la ejecucion serializada por usuario.
type PaymentMethodRepository interface {
	PaymentMethodStore
	// WithUserLock ejecuta fn en una transaccion que mantiene un lock exclusivo por usuario.
	WithUserLock(ctx context.Context, userID string, fn func(PaymentMethodStore) error) error
}

type PgPaymentMethodRepository struct {
	pgPaymentMethodStore
	pool *pgxpool.Pool
}

func NewPgPaymentMethodRepository(pool *pgxpool.Pool) *PgPaymentMethodRepository {
	return &PgPaymentMethodRepository{
		pgPaymentMethodStore: pgPaymentMethodStore{q: pool},
		pool:                 pool,
	}
}

func (r *PgPaymentMethodRepository) WithUserLock(ctx context.Context, userID string, fn func(PaymentMethodStore) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return fmt.Errorf("lock payment methods: %w", err)
		}
		return fn(&pgPaymentMethodStore{q: tx})
	})
}

type pgPaymentMethodStore struct {
	q querier
}

const paymentMethodColumns = `id, user_id, gateway_token, brand, last_four, exp_month, exp_year,
	is_default, is_active, last_used_at, created_at, updated_at`

func scanPaymentMethod(row pgx.Row) (domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := row.Scan(
		&pm.ID,
		&pm.UserID,
		&pm.GatewayToken,
		&pm.Brand,
		&pm.LastFour,
		&pm.ExpMonth,
		&pm.ExpYear,
		&pm.IsDefault,
		&pm.IsActive,
		&pm.LastUsedAt,
		&pm.CreatedAt,
		&pm.UpdatedAt,
	)
	if err != nil {
		return domain.PaymentMethod{}, mapError(err)
	}
	return pm, nil
}

func (s *pgPaymentMethodStore) ListActive(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	query := `
		SELECT ` + paymentMethodColumns + `
		FROM payment_methods
		WHERE user_id = $1 AND is_active
		ORDER BY is_default DESC, created_at DESC
	`
	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query payment methods: %w", err)
	}
	defer rows.Close()

	methods := []domain.PaymentMethod{}
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

func (s *pgPaymentMethodStore) Get(ctx context.Context, userID, id string) (domain.PaymentMethod, error) {
	query := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE user_id = $1 AND id = $2 AND is_active`
	return scanPaymentMethod(s.q.QueryRow(ctx, query, userID, id))
}

func (s *pgPaymentMethodStore) FindActiveByToken(ctx context.Context, userID, token string) (domain.PaymentMethod, error) {
	query := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE user_id = $1 AND gateway_token = $2 AND is_active`
	return scanPaymentMethod(s.q.QueryRow(ctx, query, userID, token))
}

func (s *pgPaymentMethodStore) Insert(ctx context.Context, pm domain.PaymentMethod) error {
	const query = `
		INSERT INTO payment_methods (id, user_id, gateway_token, brand, last_four, exp_month, exp_year,
			is_default, is_active, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.q.Exec(ctx, query,
		pm.ID,
		pm.UserID,
		pm.GatewayToken,
		pm.Brand,
		pm.LastFour,
		pm.ExpMonth,
		pm.ExpYear,
		pm.IsDefault,
		pm.IsActive,
		pm.LastUsedAt,
		pm.CreatedAt,
		pm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment method: %w", mapError(err))
	}
	return nil
}

func (s *pgPaymentMethodStore) ClearDefaults(ctx context.Context, userID string, now time.Time) error {
	const query = `
		UPDATE payment_methods SET is_default = FALSE, updated_at = $2
		WHERE user_id = $1 AND is_default
	`
	_, err := s.q.Exec(ctx, query, userID, now)
	return err
}

func (s *pgPaymentMethodStore) SetDefault(ctx context.Context, userID, id string, now time.Time) error {
	const query = `
		UPDATE payment_methods SET is_default = TRUE, updated_at = $3
		WHERE user_id = $1 AND id = $2 AND is_active
	`
	return s.execOne(ctx, query, userID, id, now)
}

func (s *pgPaymentMethodStore) Deactivate(ctx context.Context, userID, id string, now time.Time) error {
	const query = `
		UPDATE payment_methods SET is_active = FALSE, is_default = FALSE, updated_at = $3
		WHERE user_id = $1 AND id = $2 AND is_active
	`
	return s.execOne(ctx, query, userID, id, now)
}

func (s *pgPaymentMethodStore) TouchLastUsed(ctx context.Context, userID, id string, now time.Time) error {
	const query = `
		UPDATE payment_methods SET last_used_at = $3, updated_at = $3
		WHERE user_id = $1 AND id = $2 AND is_active
	`
	return s.execOne(ctx, query, userID, id, now)
}

func (s *pgPaymentMethodStore) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
