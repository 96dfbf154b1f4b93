package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound se devuelve cuando la fila buscada no existe.
	ErrNotFound = errors.New("record not found")
	// ErrConflict se devuelve cuando una restriccion de unicidad rechaza la escritura.
	ErrConflict = errors.New("record already exists")
	// ErrStale se devuelve cuando la fila cambio entre la lectura y la escritura condicionada.
	ErrStale = errors.New("record changed concurrently")
	// ErrLimitReached se devuelve cuando un cupo se agoto dentro de la transaccion.
	ErrLimitReached = errors.New("usage limit reached")
)

const (
	pgUniqueViolation = "23505"
	// Un id que no es UUID no puede existir en columnas UUID.
	pgInvalidTextRepresentation = "22P02"
)

// querier es la parte comun de *pgxpool.Pool y pgx.Tx que usan los repositorios.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// mapError traduce errores de pgx a los sentinels del paquete.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgInvalidTextRepresentation:
			return ErrNotFound
		}
	}
	return err
}
