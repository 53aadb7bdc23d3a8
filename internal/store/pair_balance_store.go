package store

import (
	"context"
	"database/sql"
	"errors"

	"splitledger/internal/models"
)

// ErrPairNotFound is returned when no balance row exists for a pair. Callers
// treat absence as a zero balance, never as a failure.
var ErrPairNotFound = errors.New("pair balance not found")

// PairBalanceStore keeps exactly one row per unordered user pair. All methods
// canonicalize their arguments, so callers may pass the two users in either
// order.
type PairBalanceStore struct {
	db DB
}

func NewPairBalanceStore(db DB) *PairBalanceStore {
	return &PairBalanceStore{db: db}
}

// ApplyTransfer absorbs "from owes to amount" into the pair's net balance,
// creating the row on first contact. The upsert adds a signed delta in a
// single statement, and reactivates soft-deleted pairs. Rows are never
// deleted, even at zero.
func (s *PairBalanceStore) ApplyTransfer(ctx context.Context, tx Execer, from, to string, amount int64) error {
	low, high := models.PairKey(from, to)
	delta := amount
	if from == low {
		delta = -amount
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pair_balances (low_user, high_user, net_amount, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (low_user, high_user) DO UPDATE
		SET net_amount = pair_balances.net_amount + EXCLUDED.net_amount,
		    status = 'active',
		    updated_at = now()
	`, low, high, delta)
	return err
}

const pairColumns = `low_user, high_user, net_amount, status, created_at, updated_at`

// Get returns the pair's balance row, or ErrPairNotFound.
func (s *PairBalanceStore) Get(ctx context.Context, userA, userB string) (models.PairBalance, error) {
	low, high := models.PairKey(userA, userB)
	var pair models.PairBalance
	err := s.db.GetContext(ctx, &pair, `
		SELECT `+pairColumns+`
		FROM pair_balances
		WHERE low_user = $1 AND high_user = $2
	`, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PairBalance{}, ErrPairNotFound
	}
	return pair, err
}

// GetForUpdate locks the pair row for the duration of the surrounding unit of
// work, serializing concurrent settle-ups on the same pair.
func (s *PairBalanceStore) GetForUpdate(ctx context.Context, tx Getter, userA, userB string) (models.PairBalance, error) {
	low, high := models.PairKey(userA, userB)
	var pair models.PairBalance
	err := tx.GetContext(ctx, &pair, `
		SELECT `+pairColumns+`
		FROM pair_balances
		WHERE low_user = $1 AND high_user = $2
		FOR UPDATE
	`, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PairBalance{}, ErrPairNotFound
	}
	return pair, err
}

// UpdateNet overwrites the pair's net amount. Only the settle-up path uses
// this, after reading the row under lock.
func (s *PairBalanceStore) UpdateNet(ctx context.Context, tx Execer, userA, userB string, netAmount int64) error {
	low, high := models.PairKey(userA, userB)
	_, err := tx.ExecContext(ctx, `
		UPDATE pair_balances
		SET net_amount = $3, updated_at = now()
		WHERE low_user = $1 AND high_user = $2
	`, low, high, netAmount)
	return err
}

// SetStatus flips the soft-delete flag. The row and its balance survive.
func (s *PairBalanceStore) SetStatus(ctx context.Context, tx Execer, userA, userB, status string) error {
	low, high := models.PairKey(userA, userB)
	_, err := tx.ExecContext(ctx, `
		UPDATE pair_balances
		SET status = $3, updated_at = now()
		WHERE low_user = $1 AND high_user = $2
	`, low, high, status)
	return err
}

// ListAll returns every pair row, active or deleted, for reconciliation.
func (s *PairBalanceStore) ListAll(ctx context.Context) ([]models.PairBalance, error) {
	var pairs []models.PairBalance
	err := s.db.SelectContext(ctx, &pairs, `
		SELECT `+pairColumns+`
		FROM pair_balances
		ORDER BY low_user, high_user
	`)
	return pairs, err
}

// ListForUser returns every active pair the user participates in, most
// recently touched first.
func (s *PairBalanceStore) ListForUser(ctx context.Context, userID string) ([]models.PairBalance, error) {
	var pairs []models.PairBalance
	err := s.db.SelectContext(ctx, &pairs, `
		SELECT `+pairColumns+`
		FROM pair_balances
		WHERE (low_user = $1 OR high_user = $1) AND status = 'active'
		ORDER BY updated_at DESC
	`, userID)
	return pairs, err
}
