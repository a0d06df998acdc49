package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errNotPgxTx is returned when a Tx handle from another store is passed in
var errNotPgxTx = errors.New("repository: tx is not a postgres transaction")

// pgxTx adapts pgx.Tx to the repository Tx interface
type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func beginPgxTx(ctx context.Context, pool *pgxpool.Pool) (Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

func unwrapTx(tx Tx) (pgx.Tx, error) {
	p, ok := tx.(*pgxTx)
	if !ok {
		return nil, errNotPgxTx
	}
	return p.tx, nil
}
