package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"splitledger/internal/metrics"
	"splitledger/internal/store"
)

var (
	// ErrConcurrencyConflict means the serializable retry budget ran out on a
	// hot pair. Surfaced to callers as a transient failure.
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retry")
	// ErrStorageUnavailable means the durable store could not be reached at
	// all. Never masked as success.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// UnitOfWork runs a batch of store mutations as one atomic unit when the
// backend supports it. Transactional reports which guarantee this
// implementation gives; callers stamp non-transactional results so auditors
// can tell the two apart.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(tx store.Tx) error) error
	Transactional() bool
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	database.SetConnMaxIdleTime(5 * time.Minute)
	database.SetMaxIdleConns(5)
	database.SetMaxOpenConns(30)
	database.SetConnMaxLifetime(30 * time.Minute)
	return database, nil
}

// TxRunner is the transactional unit of work: serializable isolation with a
// bounded retry loop on serialization failures and deadlocks.
type TxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) TxRunner {
	return TxRunner{db: db}
}

func (r TxRunner) Transactional() bool {
	return true
}

func (r TxRunner) Run(ctx context.Context, fn func(tx store.Tx) error) error {
	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return errors.Join(ErrStorageUnavailable, err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isRetryablePGError(err) && attempt < maxAttempts {
				metrics.TxRetries.Inc()
				sleepWithBackoff(attempt)
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isRetryablePGError(err) && attempt < maxAttempts {
				metrics.TxRetries.Inc()
				sleepWithBackoff(attempt)
				continue
			}
			return err
		}
		return nil
	}
	return ErrConcurrencyConflict
}

// BestEffortRunner applies mutations sequentially without a transaction, for
// backends where multi-statement atomicity is unavailable. A partially
// applied batch is possible in this mode; selecting it is an explicit,
// logged, startup-time decision, never a silent per-request fallback.
type BestEffortRunner struct {
	db *sqlx.DB
}

func NewBestEffortRunner(db *sqlx.DB) BestEffortRunner {
	slog.Warn("storage running in best-effort mode: group expenses are not applied atomically")
	return BestEffortRunner{db: db}
}

func (r BestEffortRunner) Transactional() bool {
	return false
}

func (r BestEffortRunner) Run(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return fn(r.db)
}

// SelectUnitOfWork picks the runner for the configured mode. Anything other
// than "best-effort" gets the transactional runner.
func SelectUnitOfWork(mode string, database *sqlx.DB) UnitOfWork {
	if mode == "best-effort" {
		return NewBestEffortRunner(database)
	}
	slog.Info("storage running in transactional mode")
	return NewTxRunner(database)
}

func isRetryablePGError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func sleepWithBackoff(attempt int) {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	time.Sleep(backoff + jitter)
}
