package store

import (
	"context"
	"database/sql"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

// Tx is the slice of DB a unit of work hands to stores. Both *sqlx.Tx and
// *sqlx.DB satisfy it, which is what lets the best-effort unit of work run
// the same store code without a transaction.
type Tx interface {
	Execer
	Getter
	Selecter
}
