package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"grocery-api/internal/domain"
)

type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (domain.Coupon, error)
	// ListActive devuelve los cupones activos cuya ventana incluye now.
	ListActive(ctx context.Context, now time.Time) ([]domain.Coupon, error)
	CountRedemptions(ctx context.Context, code, userID string) (int, error)
	RedemptionCounts(ctx context.Context, userID string) (map[string]int, error)
}

type PgCouponRepository struct {
	pool *pgxpool.Pool
}

func NewPgCouponRepository(pool *pgxpool.Pool) *PgCouponRepository {
	return &PgCouponRepository{pool: pool}
}

const couponColumns = `code, description, discount_type, discount_value, max_discount, min_cart_value,
	starts_at, ends_at, active, usage_limit_per_user, applicable_categories, applicable_products,
	created_at, updated_at`

func scanCoupon(row pgx.Row) (domain.Coupon, error) {
	var c domain.Coupon
	err := row.Scan(
		&c.Code,
		&c.Description,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MaxDiscount,
		&c.MinCartValue,
		&c.StartsAt,
		&c.EndsAt,
		&c.Active,
		&c.UsageLimitPerUser,
		&c.ApplicableCategories,
		&c.ApplicableProducts,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Coupon{}, mapError(err)
	}
	return c, nil
}

func (r *PgCouponRepository) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	return scanCoupon(r.pool.QueryRow(ctx, query, code))
}

func (r *PgCouponRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Coupon, error) {
	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		WHERE active
			AND (starts_at IS NULL OR starts_at <= $1)
			AND (ends_at IS NULL OR ends_at >= $1)
		ORDER BY code
	`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var coupons []domain.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

func (r *PgCouponRepository) CountRedemptions(ctx context.Context, code, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM coupon_redemptions WHERE code = $1 AND user_id = $2`
	var n int
	if err := r.pool.QueryRow(ctx, query, code, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

func (r *PgCouponRepository) RedemptionCounts(ctx context.Context, userID string) (map[string]int, error) {
	const query = `SELECT code, COUNT(*) FROM coupon_redemptions WHERE user_id = $1 GROUP BY code`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query redemptions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			code string
			n    int
		)
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		counts[code] = n
	}
	return counts, rows.Err()
}
