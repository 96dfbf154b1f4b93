package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"grocery-api/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	// UpsertVerifiedByMobile crea el usuario o marca verificado el existente.
	// created es true solo cuando la fila se inserto en esta llamada.
	UpsertVerifiedByMobile(ctx context.Context, user domain.User) (domain.User, bool, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByMobile(ctx context.Context, mobile string) (domain.User, error)
	UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate, now time.Time) (domain.User, error)
	AddDeviceToken(ctx context.Context, id, token string, now time.Time) error
	RemoveDeviceToken(ctx context.Context, id, token string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, mobile_number, name, email, is_verified, verified_at, notification_preferences,
	avatar, primary_address_id, device_tokens, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (domain.User, error) {
	var u domain.User
	dest := []any{
		&u.ID,
		&u.MobileNumber,
		&u.Name,
		&u.Email,
		&u.IsVerified,
		&u.VerifiedAt,
		&u.NotificationPreferences,
		&u.Avatar,
		&u.PrimaryAddressID,
		&u.DeviceTokens,
		&u.CreatedAt,
		&u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.User{}, mapError(err)
	}
	return u, nil
}

func (r *PgUserRepository) UpsertVerifiedByMobile(ctx context.Context, user domain.User) (domain.User, bool, error) {
	const query = `
		INSERT INTO users (id, mobile_number, is_verified, verified_at, notification_preferences, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $4, $5, $5)
		ON CONFLICT (mobile_number) DO UPDATE SET
			is_verified = TRUE,
			verified_at = COALESCE(users.verified_at, EXCLUDED.verified_at),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns + `, (xmax = 0) AS created
	`
	prefs, err := json.Marshal(user.NotificationPreferences)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("encode preferences: %w", err)
	}

	var created bool
	u, err := scanUser(r.pool.QueryRow(ctx, query,
		user.ID,
		user.MobileNumber,
		user.VerifiedAt,
		prefs,
		user.CreatedAt,
	), &created)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, created, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByMobile(ctx context.Context, mobile string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE mobile_number = $1`
	return scanUser(r.pool.QueryRow(ctx, query, mobile))
}

// UpdateProfile aplica solo los campos no nulos; las preferencias se fusionan sobre las actuales.
func (r *PgUserRepository) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate, now time.Time) (domain.User, error) {
	const query = `
		UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			avatar = COALESCE($4, avatar),
			primary_address_id = COALESCE($5, primary_address_id),
			notification_preferences = notification_preferences || COALESCE($6::jsonb, '{}'::jsonb),
			updated_at = $7
		WHERE id = $1
		RETURNING ` + userColumns

	var prefs []byte
	if upd.NotificationPreferences != nil {
		encoded, err := json.Marshal(upd.NotificationPreferences)
		if err != nil {
			return domain.User{}, fmt.Errorf("encode preferences: %w", err)
		}
		prefs = encoded
	}

	return scanUser(r.pool.QueryRow(ctx, query,
		id,
		upd.Name,
		upd.Email,
		upd.Avatar,
		upd.PrimaryAddressID,
		prefs,
		now,
	))
}

func (r *PgUserRepository) AddDeviceToken(ctx context.Context, id, token string, now time.Time) error {
	const query = `
		UPDATE users SET
			device_tokens = CASE WHEN $2 = ANY(device_tokens) THEN device_tokens ELSE array_append(device_tokens, $2) END,
			updated_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, token, now)
	if err != nil {
		return fmt.Errorf("add device token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) RemoveDeviceToken(ctx context.Context, id, token string, now time.Time) error {
	const query = `
		UPDATE users SET device_tokens = array_remove(device_tokens, $2), updated_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, token, now)
	if err != nil {
		return fmt.Errorf("remove device token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete borra el usuario; carrito, items y medios de pago caen por cascada.
func (r *PgUserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
