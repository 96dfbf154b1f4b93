package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"grocery-api/internal/domain"
)

// CartRepository persiste el agregado carrito. Cada cambio de cantidad es una
// sola sentencia atomica o una transaccion corta con bloqueo de fila.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	EnsureCart(ctx context.Context, userID, mobile string, now time.Time) error
	// AddItem suma la cantidad si la linea ya existe y refresca el precio.
	AddItem(ctx context.Context, userID string, item domain.CartItem, now time.Time) (domain.CartItem, error)
	// SetQuantity fija la cantidad; con price no nulo tambien refresca el precio guardado.
	SetQuantity(ctx context.Context, userID string, key domain.CartKey, qty int, price *decimal.Decimal, now time.Time) error
	// DecrementQuantity devuelve la cantidad restante; en 0 la linea se elimina.
	DecrementQuantity(ctx context.Context, userID string, key domain.CartKey, by int, now time.Time) (int, error)
	RemoveItem(ctx context.Context, userID, list string, key domain.CartKey, now time.Time) error
	// MoveItem traslada la linea entre listas y fusiona cantidades en el destino.
	MoveItem(ctx context.Context, userID string, key domain.CartKey, from, to string, now time.Time) error
	// ClearItems vacia la lista activa y quita el cupon; la fila del carrito permanece.
	ClearItems(ctx context.Context, userID string, now time.Time) error
	SetCoupon(ctx context.Context, userID string, coupon *domain.AppliedCoupon, now time.Time) error
	SetDelivery(ctx context.Context, userID string, tip decimal.Decimal, instructions string, now time.Time) error
	// CompleteCheckout cierra el carrito en una transaccion con la fila bloqueada:
	// ErrStale si cambio desde que se leyo, ErrLimitReached si el cupon agoto su cupo.
	CompleteCheckout(ctx context.Context, c CheckoutCommit) error
}

// CheckoutCommit es lo que CompleteCheckout escribe de una vez.
type CheckoutCommit struct {
	UserID   string
	OrderRef string
	// Version es el updated_at del carrito validado.
	Version     time.Time
	CouponCode  string
	CouponLimit int
	Now         time.Time
}

type PgCartRepository struct {
	pool *pgxpool.Pool
}

func NewPgCartRepository(pool *pgxpool.Pool) *PgCartRepository {
	return &PgCartRepository{pool: pool}
}

func (r *PgCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	const cartQuery = `
		SELECT user_id, mobile_number, coupon_code, coupon_savings, coupon_applied_at,
			delivery_tip, delivery_instructions, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`
	var (
		cart      domain.Cart
		code      *string
		savings   decimal.NullDecimal
		appliedAt *time.Time
	)
	err := r.pool.QueryRow(ctx, cartQuery, userID).Scan(
		&cart.UserID,
		&cart.MobileNumber,
		&code,
		&savings,
		&appliedAt,
		&cart.DeliveryTip,
		&cart.DeliveryInstructions,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return domain.Cart{}, mapError(err)
	}
	if code != nil && savings.Valid {
		cart.Coupon = &domain.AppliedCoupon{Code: *code, Savings: savings.Decimal}
		if appliedAt != nil {
			cart.Coupon.AppliedAt = *appliedAt
		}
	}

	const itemsQuery = `
		SELECT list, product_id, variant_label, product_name, category, quantity, unit_price, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, product_id, variant_label
	`
	rows, err := r.pool.Query(ctx, itemsQuery, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = []domain.CartItem{}
	cart.SavedForLater = []domain.CartItem{}
	for rows.Next() {
		var (
			list string
			item domain.CartItem
		)
		if err := rows.Scan(
			&list,
			&item.ProductID,
			&item.VariantLabel,
			&item.ProductName,
			&item.Category,
			&item.Quantity,
			&item.UnitPrice,
			&item.AddedAt,
		); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		if list == domain.CartListSaved {
			cart.SavedForLater = append(cart.SavedForLater, item)
		} else {
			cart.Items = append(cart.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}
	return cart, nil
}

func (r *PgCartRepository) EnsureCart(ctx context.Context, userID, mobile string, now time.Time) error {
	const query = `
		INSERT INTO carts (user_id, mobile_number, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			mobile_number = CASE WHEN EXCLUDED.mobile_number <> '' THEN EXCLUDED.mobile_number ELSE carts.mobile_number END,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, userID, mobile, now); err != nil {
		return fmt.Errorf("ensure cart: %w", mapError(err))
	}
	return nil
}

func (r *PgCartRepository) AddItem(ctx context.Context, userID string, item domain.CartItem, now time.Time) (domain.CartItem, error) {
	const query = `
		INSERT INTO cart_items (user_id, list, product_id, variant_label, product_name, category, quantity, unit_price, added_at)
		VALUES ($1, 'cart', $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, list, product_id, variant_label) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price,
			product_name = EXCLUDED.product_name,
			category = EXCLUDED.category
		RETURNING quantity, added_at
	`
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query,
			userID,
			item.ProductID,
			item.VariantLabel,
			item.ProductName,
			item.Category,
			item.Quantity,
			item.UnitPrice,
			now,
		).Scan(&item.Quantity, &item.AddedAt); err != nil {
			return mapError(err)
		}
		return touchCart(ctx, tx, userID, now)
	})
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("add cart item: %w", err)
	}
	return item, nil
}

func (r *PgCartRepository) SetQuantity(ctx context.Context, userID string, key domain.CartKey, qty int, price *decimal.Decimal, now time.Time) error {
	const query = `
		UPDATE cart_items SET quantity = $4, unit_price = COALESCE($5, unit_price)
		WHERE user_id = $1 AND list = 'cart' AND product_id = $2 AND variant_label = $3
	`
	var newPrice decimal.NullDecimal
	if price != nil {
		newPrice = decimal.NullDecimal{Decimal: *price, Valid: true}
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, userID, key.ProductID, key.VariantLabel, qty, newPrice)
		if err != nil {
			return fmt.Errorf("set quantity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return touchCart(ctx, tx, userID, now)
	})
}

func (r *PgCartRepository) DecrementQuantity(ctx context.Context, userID string, key domain.CartKey, by int, now time.Time) (int, error) {
	const lockQuery = `
		SELECT quantity FROM cart_items
		WHERE user_id = $1 AND list = 'cart' AND product_id = $2 AND variant_label = $3
		FOR UPDATE
	`
	remaining := 0
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current int
		if err := tx.QueryRow(ctx, lockQuery, userID, key.ProductID, key.VariantLabel).Scan(&current); err != nil {
			return mapError(err)
		}

		remaining = current - by
		if remaining <= 0 {
			remaining = 0
			if err := deleteItem(ctx, tx, userID, domain.CartListActive, key); err != nil {
				return err
			}
		} else {
			const update = `
				UPDATE cart_items SET quantity = $4
				WHERE user_id = $1 AND list = 'cart' AND product_id = $2 AND variant_label = $3
			`
			if _, err := tx.Exec(ctx, update, userID, key.ProductID, key.VariantLabel, remaining); err != nil {
				return fmt.Errorf("decrement quantity: %w", err)
			}
		}
		return touchCart(ctx, tx, userID, now)
	})
	return remaining, err
}

func (r *PgCartRepository) RemoveItem(ctx context.Context, userID, list string, key domain.CartKey, now time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := deleteItem(ctx, tx, userID, list, key); err != nil {
			return err
		}
		return touchCart(ctx, tx, userID, now)
	})
}

func (r *PgCartRepository) MoveItem(ctx context.Context, userID string, key domain.CartKey, from, to string, now time.Time) error {
	const take = `
		DELETE FROM cart_items
		WHERE user_id = $1 AND list = $2 AND product_id = $3 AND variant_label = $4
		RETURNING product_name, category, quantity, unit_price, added_at
	`
	const put = `
		INSERT INTO cart_items (user_id, list, product_id, variant_label, product_name, category, quantity, unit_price, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, list, product_id, variant_label) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity
	`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var item domain.CartItem
		err := tx.QueryRow(ctx, take, userID, from, key.ProductID, key.VariantLabel).Scan(
			&item.ProductName,
			&item.Category,
			&item.Quantity,
			&item.UnitPrice,
			&item.AddedAt,
		)
		if err != nil {
			return mapError(err)
		}

		if _, err := tx.Exec(ctx, put,
			userID,
			to,
			key.ProductID,
			key.VariantLabel,
			item.ProductName,
			item.Category,
			item.Quantity,
			item.UnitPrice,
			now,
		); err != nil {
			return fmt.Errorf("move cart item: %w", err)
		}
		return touchCart(ctx, tx, userID, now)
	})
}

func (r *PgCartRepository) ClearItems(ctx context.Context, userID string, now time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND list = 'cart'`, userID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		const query = `
			UPDATE carts SET coupon_code = NULL, coupon_savings = NULL, coupon_applied_at = NULL, updated_at = $2
			WHERE user_id = $1
		`
		_, err := tx.Exec(ctx, query, userID, now)
		return err
	})
}

func (r *PgCartRepository) CompleteCheckout(ctx context.Context, c CheckoutCommit) error {
	const lockQuery = `
		SELECT updated_at,
			(SELECT COUNT(*) FROM cart_items WHERE user_id = $1 AND list = 'cart')
		FROM carts
		WHERE user_id = $1
		FOR UPDATE
	`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			updatedAt time.Time
			lines     int
		)
		if err := tx.QueryRow(ctx, lockQuery, c.UserID).Scan(&updatedAt, &lines); err != nil {
			if err = mapError(err); errors.Is(err, ErrNotFound) {
				return ErrStale
			}
			return fmt.Errorf("lock cart: %w", err)
		}
		if lines == 0 || !updatedAt.Equal(c.Version) {
			return ErrStale
		}

		if c.CouponCode != "" {
			if err := redeemCoupon(ctx, tx, c); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND list = 'cart'`, c.UserID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		const closeCart = `
			UPDATE carts SET coupon_code = NULL, coupon_savings = NULL, coupon_applied_at = NULL, updated_at = $2
			WHERE user_id = $1
		`
		if _, err := tx.Exec(ctx, closeCart, c.UserID, c.Now); err != nil {
			return fmt.Errorf("close cart: %w", err)
		}
		return nil
	})
}

// redeemCoupon cuenta y registra el uso bajo el lock del carrito, que serializa al usuario.
func redeemCoupon(ctx context.Context, tx pgx.Tx, c CheckoutCommit) error {
	if c.CouponLimit > 0 {
		var used int
		const count = `SELECT COUNT(*) FROM coupon_redemptions WHERE code = $1 AND user_id = $2`
		if err := tx.QueryRow(ctx, count, c.CouponCode, c.UserID).Scan(&used); err != nil {
			return fmt.Errorf("count redemptions: %w", err)
		}
		if used >= c.CouponLimit {
			return ErrLimitReached
		}
	}
	const insert = `
		INSERT INTO coupon_redemptions (code, user_id, order_ref, redeemed_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insert, c.CouponCode, c.UserID, c.OrderRef, c.Now); err != nil {
		return fmt.Errorf("record redemption: %w", mapError(err))
	}
	return nil
}

func (r *PgCartRepository) SetCoupon(ctx context.Context, userID string, coupon *domain.AppliedCoupon, now time.Time) error {
	const query = `
		UPDATE carts SET coupon_code = $2, coupon_savings = $3, coupon_applied_at = $4, updated_at = $5
		WHERE user_id = $1
	`
	var (
		code      any
		savings   any
		appliedAt any
	)
	if coupon != nil {
		code = coupon.Code
		savings = coupon.Savings
		appliedAt = coupon.AppliedAt
	}

	tag, err := r.pool.Exec(ctx, query, userID, code, savings, appliedAt, now)
	if err != nil {
		return fmt.Errorf("set coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgCartRepository) SetDelivery(ctx context.Context, userID string, tip decimal.Decimal, instructions string, now time.Time) error {
	const query = `
		UPDATE carts SET delivery_tip = $2, delivery_instructions = $3, updated_at = $4
		WHERE user_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, userID, tip, instructions, now)
	if err != nil {
		return fmt.Errorf("set delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteItem(ctx context.Context, q querier, userID, list string, key domain.CartKey) error {
	const query = `
		DELETE FROM cart_items
		WHERE user_id = $1 AND list = $2 AND product_id = $3 AND variant_label = $4
	`
	tag, err := q.Exec(ctx, query, userID, list, key.ProductID, key.VariantLabel)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func touchCart(ctx context.Context, q querier, userID string, now time.Time) error {
	_, err := q.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE user_id = $1`, userID, now)
	return err
}
