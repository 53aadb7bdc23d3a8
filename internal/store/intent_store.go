package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"splitledger/internal/models"
)

var (
	ErrIntentNotFound = errors.New("settle intent not found")
	// ErrIntentPairMismatch means a client reused an idempotency key against
	// a different pair, which is always a caller bug.
	ErrIntentPairMismatch = errors.New("idempotency key was used for a different pair")
)

// IntentStore records settle-up idempotency keys so client retries replay the
// original result instead of double-settling. Keys expire after a window;
// expired rows are swept lazily on insert.
type IntentStore struct {
	db     DB
	window time.Duration
}

func NewIntentStore(db DB, window time.Duration) *IntentStore {
	return &IntentStore{db: db, window: window}
}

type intentRow struct {
	Key       string    `db:"idempotency_key"`
	LowUser   string    `db:"low_user"`
	HighUser  string    `db:"high_user"`
	EntryID   string    `db:"entry_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Find returns the ledger entry id recorded for the key, if the key is still
// inside the replay window and belongs to the same pair.
func (s *IntentStore) Find(ctx context.Context, tx Getter, key, userA, userB string) (string, error) {
	var row intentRow
	err := tx.GetContext(ctx, &row, `
		SELECT idempotency_key, low_user, high_user, entry_id, created_at
		FROM settle_intents
		WHERE idempotency_key = $1 AND created_at > $2
	`, key, time.Now().Add(-s.window))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrIntentNotFound
	}
	if err != nil {
		return "", err
	}
	low, high := models.PairKey(userA, userB)
	if row.LowUser != low || row.HighUser != high {
		return "", ErrIntentPairMismatch
	}
	return row.EntryID, nil
}

// Record stores the key alongside the settlement entry it produced and sweeps
// keys that fell out of the window.
func (s *IntentStore) Record(ctx context.Context, tx Execer, key, userA, userB, entryID string) error {
	low, high := models.PairKey(userA, userB)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM settle_intents WHERE created_at <= $1
	`, time.Now().Add(-s.window)); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settle_intents (idempotency_key, low_user, high_user, entry_id)
		VALUES ($1, $2, $3, $4)
	`, key, low, high, entryID)
	return err
}
