package postgres

import (
	"context"
	"errors"

	"mech-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txKey carries the active pgx.Tx through the context. An unexported key
// type keeps it invisible to other packages' context values.
type ctxKey struct{}

var txKey = ctxKey{}

// unitOfWork runs repository calls inside one transaction per WithinTx call.
// Repositories never hold a connection themselves; they pull the tx back out
// of the context.
type unitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork constructs a unitOfWork bound to the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &unitOfWork{pool: pool}
}

// WithinTx executes fn inside a transaction. A WithinTx call that is already
// inside one joins it instead of nesting. Rollback happens on error and on
// panic (the panic is rethrown); otherwise the transaction commits.
func (uow *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := uow.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// TxFromContext returns the active pgx.Tx, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// MustTxFromContext returns the active pgx.Tx or an error. Repository
// methods call this at the top; a call outside WithinTx is a programming
// error surfaced at runtime.
func MustTxFromContext(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx, nil
	}
	return nil, errors.New("no transaction in context: call this repository within UnitOfWork.WithinTx")
}
