package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"grocery-api/internal/domain"
)

// CatalogRepository es la vista de solo lectura de precios y stock.
type CatalogRepository interface {
	GetVariant(ctx context.Context, productID, label string) (domain.ProductVariant, error)
	GetVariants(ctx context.Context, keys []domain.CartKey) (map[domain.CartKey]domain.ProductVariant, error)
}

type PgCatalogRepository struct {
	pool *pgxpool.Pool
}

func NewPgCatalogRepository(pool *pgxpool.Pool) *PgCatalogRepository {
	return &PgCatalogRepository{pool: pool}
}

func (r *PgCatalogRepository) GetVariant(ctx context.Context, productID, label string) (domain.ProductVariant, error) {
	const query = `
		SELECT product_id, product_name, category, variant_label, price, stock, active
		FROM product_variants
		WHERE product_id = $1 AND variant_label = $2
	`
	var v domain.ProductVariant
	err := r.pool.QueryRow(ctx, query, productID, label).Scan(
		&v.ProductID,
		&v.ProductName,
		&v.Category,
		&v.Label,
		&v.Price,
		&v.Stock,
		&v.Active,
	)
	if err != nil {
		return domain.ProductVariant{}, mapError(err)
	}
	return v, nil
}

// GetVariants resuelve varias claves en una sola consulta; las ausentes no aparecen en el mapa.
func (r *PgCatalogRepository) GetVariants(ctx context.Context, keys []domain.CartKey) (map[domain.CartKey]domain.ProductVariant, error) {
	out := make(map[domain.CartKey]domain.ProductVariant, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	const query = `
		SELECT pv.product_id, pv.product_name, pv.category, pv.variant_label, pv.price, pv.stock, pv.active
		FROM product_variants pv
		JOIN unnest($1::text[], $2::text[]) AS k(product_id, variant_label)
			ON pv.product_id = k.product_id AND pv.variant_label = k.variant_label
	`
	productIDs := make([]string, len(keys))
	labels := make([]string, len(keys))
	for i, k := range keys {
		productIDs[i] = k.ProductID
		labels[i] = k.VariantLabel
	}

	rows, err := r.pool.Query(ctx, query, productIDs, labels)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.ProductVariant
		if err := rows.Scan(
			&v.ProductID,
			&v.ProductName,
			&v.Category,
			&v.Label,
			&v.Price,
			&v.Stock,
			&v.Active,
		); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out[v.Key()] = v
	}
	return out, rows.Err()
}
