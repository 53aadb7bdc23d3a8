package store

import (
	"context"
	"database/sql"
	"errors"

	"splitledger/internal/models"
)

var ErrEntryNotFound = errors.New("ledger entry not found")

// LedgerStore persists the append-only event log. Entries and their child
// rows are written once and never updated; balances are a projection of this
// log, not the other way round.
type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Insert writes the entry header and its payer/payee/transfer legs.
func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entry models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, reference, kind, total_amount, description, category, date, status, non_transactional)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.Reference, entry.Kind, entry.TotalAmount, entry.Description,
		entry.Category, entry.Date, entry.Status, entry.NonTransactional)
	if err != nil {
		return err
	}
	for i, share := range entry.Payers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_payers (entry_id, position, user_id, amount)
			VALUES ($1, $2, $3, $4)
		`, entry.ID, i, share.UserID, share.Amount); err != nil {
			return err
		}
	}
	for i, share := range entry.Payees {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_payees (entry_id, position, user_id, amount)
			VALUES ($1, $2, $3, $4)
		`, entry.ID, i, share.UserID, share.Amount); err != nil {
			return err
		}
	}
	for i, transfer := range entry.Transfers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_transfers (entry_id, position, from_user, to_user, amount)
			VALUES ($1, $2, $3, $4, $5)
		`, entry.ID, i, transfer.From, transfer.To, transfer.Amount); err != nil {
			return err
		}
	}
	return nil
}

const entryColumns = `id, reference, kind, total_amount, description, category, date, status, non_transactional, created_at`

// GetByID loads one entry with all child rows.
func (s *LedgerStore) GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE id = $1
	`, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, ErrEntryNotFound
	}
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if err := s.loadLegs(ctx, &entry); err != nil {
		return models.LedgerEntry{}, err
	}
	return entry, nil
}

// ListForPair returns active entries that produced a transfer between the two
// users, most-recent-first.
func (s *LedgerStore) ListForPair(ctx context.Context, userA, userB string, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT DISTINCT e.id, e.reference, e.kind, e.total_amount, e.description, e.category,
		       e.date, e.status, e.non_transactional, e.created_at
		FROM ledger_entries e
		JOIN ledger_transfers t ON t.entry_id = e.id
		WHERE e.status = 'active'
		  AND ((t.from_user = $1 AND t.to_user = $2) OR (t.from_user = $2 AND t.to_user = $1))
		ORDER BY e.date DESC, e.created_at DESC
		LIMIT $3 OFFSET $4
	`, userA, userB, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if err := s.loadLegs(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *LedgerStore) loadLegs(ctx context.Context, entry *models.LedgerEntry) error {
	if err := s.db.SelectContext(ctx, &entry.Payers, `
		SELECT user_id, amount FROM ledger_payers WHERE entry_id = $1 ORDER BY position
	`, entry.ID); err != nil {
		return err
	}
	if err := s.db.SelectContext(ctx, &entry.Payees, `
		SELECT user_id, amount FROM ledger_payees WHERE entry_id = $1 ORDER BY position
	`, entry.ID); err != nil {
		return err
	}
	return s.db.SelectContext(ctx, &entry.Transfers, `
		SELECT from_user, to_user, amount FROM ledger_transfers WHERE entry_id = $1 ORDER BY position
	`, entry.ID)
}

// PairNet is a per-pair net recomputed from the ledger, used by the
// reconciliation check.
type PairNet struct {
	LowUser   string `db:"low_user"`
	HighUser  string `db:"high_user"`
	NetAmount int64  `db:"net_amount"`
}

// SumTransfersByPair rebuilds every pair's net from the transfer log.
// Expense transfers add debt; settlement transfers pay it down, so their
// sign flips. The result must match pair_balances exactly.
func (s *LedgerStore) SumTransfersByPair(ctx context.Context) ([]PairNet, error) {
	var nets []PairNet
	err := s.db.SelectContext(ctx, &nets, `
		SELECT LEAST(t.from_user, t.to_user) AS low_user,
		       GREATEST(t.from_user, t.to_user) AS high_user,
		       SUM(
		           (CASE WHEN e.kind = 'settlement' THEN -1 ELSE 1 END) *
		           (CASE WHEN t.from_user > t.to_user THEN t.amount ELSE -t.amount END)
		       ) AS net_amount
		FROM ledger_transfers t
		JOIN ledger_entries e ON e.id = t.entry_id
		WHERE e.status = 'active'
		GROUP BY 1, 2
		ORDER BY 1, 2
	`)
	return nets, err
}
