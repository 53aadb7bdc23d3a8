package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/cache"
	"splitledger/internal/db"
	"splitledger/internal/metrics"
	"splitledger/internal/models"
	"splitledger/internal/money"
	"splitledger/internal/settlement"
	"splitledger/internal/store"
)

var (
	// ErrInvalidSettlement covers every settle-up rejected before mutation:
	// no balance, wrong direction, or overpayment.
	ErrInvalidSettlement = errors.New("invalid settlement")
	// ErrSameUser is returned when an operation names the same user twice.
	ErrSameUser = errors.New("the two users must be distinct")
	// ErrUnsettledBalance blocks removing a friend who still owes or is owed.
	ErrUnsettledBalance = errors.New("pair balance must be settled first")
)

type PairStore interface {
	ApplyTransfer(ctx context.Context, tx store.Execer, from, to string, amount int64) error
	Get(ctx context.Context, userA, userB string) (models.PairBalance, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userA, userB string) (models.PairBalance, error)
	UpdateNet(ctx context.Context, tx store.Execer, userA, userB string, netAmount int64) error
	SetStatus(ctx context.Context, tx store.Execer, userA, userB, status string) error
	ListForUser(ctx context.Context, userID string) ([]models.PairBalance, error)
	ListAll(ctx context.Context) ([]models.PairBalance, error)
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error
	GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error)
	ListForPair(ctx context.Context, userA, userB string, limit, offset int) ([]models.LedgerEntry, error)
	SumTransfersByPair(ctx context.Context) ([]store.PairNet, error)
}

type IntentStore interface {
	Find(ctx context.Context, tx store.Getter, key, userA, userB string) (string, error)
	Record(ctx context.Context, tx store.Execer, key, userA, userB, entryID string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

// LedgerService owns the balance-and-ledger engine: recording group expenses,
// settle-ups, balance queries, and pair history. Balances and the ledger
// mutate together inside one unit of work; the cache is invalidated after the
// unit commits and its failures never surface.
type LedgerService struct {
	uow      db.UnitOfWork
	pairs    PairStore
	ledger   LedgerStore
	intents  IntentStore
	audit    AuditStore
	balances cache.Cache
	cacheTTL time.Duration
}

func NewLedgerService(uow db.UnitOfWork, pairs PairStore, ledger LedgerStore, intents IntentStore, audit AuditStore, balances cache.Cache, cacheTTL time.Duration) *LedgerService {
	return &LedgerService{
		uow:      uow,
		pairs:    pairs,
		ledger:   ledger,
		intents:  intents,
		audit:    audit,
		balances: balances,
		cacheTTL: cacheTTL,
	}
}

type ExpenseRequest struct {
	ActorID     string
	Payers      []models.Share
	Payees      []models.Share
	TotalAmount int64
	Description string
	Category    string
	Date        time.Time
}

// RecordGroupExpense validates the expense, reduces it to pairwise transfers,
// and applies transfers plus the ledger append in one unit of work. Nothing
// is mutated when validation fails.
func (s *LedgerService) RecordGroupExpense(ctx context.Context, req ExpenseRequest) (models.LedgerEntry, error) {
	transfers, err := settlement.Plan(settlement.Expense{
		Payers:      req.Payers,
		Payees:      req.Payees,
		TotalAmount: req.TotalAmount,
		Description: req.Description,
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}

	category := req.Category
	if category == "" {
		category = "Uncategorized"
	}
	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	entry := models.LedgerEntry{
		ID:               uuid.NewString(),
		Reference:        newReference("TXN"),
		Kind:             models.EntryKindExpense,
		TotalAmount:      req.TotalAmount,
		Description:      req.Description,
		Category:         category,
		Date:             date,
		Status:           models.EntryStatusActive,
		NonTransactional: !s.uow.Transactional(),
		Payers:           req.Payers,
		Payees:           req.Payees,
		Transfers:        transfers,
	}

	err = s.uow.Run(ctx, func(tx store.Tx) error {
		for _, transfer := range transfers {
			if err := s.pairs.ApplyTransfer(ctx, tx, transfer.From, transfer.To, transfer.Amount); err != nil {
				return err
			}
		}
		if err := s.ledger.Insert(ctx, tx, entry); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"reference": entry.Reference,
			"total":     money.FormatMinor(entry.TotalAmount),
			"transfers": len(transfers),
		})
		return s.audit.Log(ctx, tx, req.ActorID, "expense", "ledger_entry", entry.ID, string(data))
	})
	if err != nil {
		return models.LedgerEntry{}, err
	}

	for _, transfer := range transfers {
		s.invalidateBalance(ctx, transfer.From, transfer.To)
	}
	metrics.ExpensesRecorded.Inc()
	slog.Info("group expense recorded",
		"entry_id", entry.ID,
		"reference", entry.Reference,
		"total", money.FormatMinor(entry.TotalAmount),
		"transfers", len(transfers),
		"transactional", s.uow.Transactional(),
	)
	return entry, nil
}

type SettleUpRequest struct {
	PayerID        string
	CounterpartyID string
	Amount         int64
	IdempotencyKey string
}

type SettleUpResult struct {
	Entry models.LedgerEntry
	// Replayed means the idempotency key matched an earlier settle-up and
	// the stored entry was returned without touching the balance again.
	Replayed bool
}

// SettleUp applies a payment from the pair's debtor toward its creditor. The
// balance moves toward zero by exactly the amount; the pair row survives at
// zero. Repeats bearing the same idempotency key within the window replay the
// original result.
func (s *LedgerService) SettleUp(ctx context.Context, req SettleUpRequest) (SettleUpResult, error) {
	if req.PayerID == req.CounterpartyID {
		return SettleUpResult{}, ErrSameUser
	}
	if req.Amount <= 0 {
		return SettleUpResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidSettlement)
	}

	entry := models.LedgerEntry{
		ID:               uuid.NewString(),
		Reference:        newReference("SETTLE"),
		Kind:             models.EntryKindSettlement,
		TotalAmount:      req.Amount,
		Description:      "Settlement",
		Category:         "Settlement",
		Date:             time.Now().UTC(),
		Status:           models.EntryStatusActive,
		NonTransactional: !s.uow.Transactional(),
		Payers:           []models.Share{{UserID: req.PayerID, Amount: req.Amount}},
		Payees:           []models.Share{{UserID: req.CounterpartyID, Amount: req.Amount}},
		Transfers:        []models.Transfer{{From: req.PayerID, To: req.CounterpartyID, Amount: req.Amount}},
	}

	var result SettleUpResult
	err := s.uow.Run(ctx, func(tx store.Tx) error {
		if req.IdempotencyKey != "" {
			entryID, err := s.intents.Find(ctx, tx, req.IdempotencyKey, req.PayerID, req.CounterpartyID)
			switch {
			case err == nil:
				existing, err := s.ledger.GetByID(ctx, entryID)
				if err != nil {
					return err
				}
				result = SettleUpResult{Entry: existing, Replayed: true}
				return nil
			case errors.Is(err, store.ErrIntentNotFound):
				// First time this key is seen; fall through.
			case errors.Is(err, store.ErrIntentPairMismatch):
				return fmt.Errorf("%w: %v", ErrInvalidSettlement, err)
			default:
				return err
			}
		}

		pair, err := s.pairs.GetForUpdate(ctx, tx, req.PayerID, req.CounterpartyID)
		if errors.Is(err, store.ErrPairNotFound) {
			return fmt.Errorf("%w: no balance to settle", ErrInvalidSettlement)
		}
		if err != nil {
			return err
		}
		debtor, owed := pair.OwedBy()
		if debtor != req.PayerID {
			return fmt.Errorf("%w: you don't owe anything to this friend", ErrInvalidSettlement)
		}
		if req.Amount > owed {
			return fmt.Errorf("%w: you can't settle more than you owe (%s)",
				ErrInvalidSettlement, money.FormatMinor(owed))
		}

		newNet := pair.NetAmount + req.Amount
		if req.PayerID == pair.HighUser {
			newNet = pair.NetAmount - req.Amount
		}
		if err := s.pairs.UpdateNet(ctx, tx, req.PayerID, req.CounterpartyID, newNet); err != nil {
			return err
		}
		if err := s.ledger.Insert(ctx, tx, entry); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			if err := s.intents.Record(ctx, tx, req.IdempotencyKey, req.PayerID, req.CounterpartyID, entry.ID); err != nil {
				return err
			}
		}
		data, _ := json.Marshal(map[string]any{
			"reference":    entry.Reference,
			"counterparty": req.CounterpartyID,
			"amount":       money.FormatMinor(req.Amount),
		})
		if err := s.audit.Log(ctx, tx, req.PayerID, "settle_up", "ledger_entry", entry.ID, string(data)); err != nil {
			return err
		}
		result = SettleUpResult{Entry: entry}
		return nil
	})
	if err != nil {
		return SettleUpResult{}, err
	}

	if result.Replayed {
		metrics.SettlementReplays.Inc()
		return result, nil
	}
	s.invalidateBalance(ctx, req.PayerID, req.CounterpartyID)
	metrics.SettlementsRecorded.Inc()
	slog.Info("settle-up recorded",
		"entry_id", result.Entry.ID,
		"payer", req.PayerID,
		"counterparty", req.CounterpartyID,
		"amount", money.FormatMinor(req.Amount),
	)
	return result, nil
}

// Balance directions from the querying user's viewpoint.
const (
	DirectionOwesYou = "owes_you"
	DirectionYouOwe  = "you_owe"
	DirectionSettled = "settled"
)

// BalanceView is a pair balance seen from one user's side.
type BalanceView struct {
	UserID         string
	CounterpartyID string
	// Net is viewpoint-relative: positive means the counterparty owes the
	// querying user.
	Net       int64
	Direction string
}

func balanceView(userID, counterpartyID string, canonicalNet int64) BalanceView {
	low, _ := models.PairKey(userID, counterpartyID)
	net := canonicalNet
	if userID != low {
		net = -canonicalNet
	}
	direction := DirectionSettled
	switch {
	case net > 0:
		direction = DirectionOwesYou
	case net < 0:
		direction = DirectionYouOwe
	}
	return BalanceView{
		UserID:         userID,
		CounterpartyID: counterpartyID,
		Net:            net,
		Direction:      direction,
	}
}

// GetPairBalance returns the balance from userID's viewpoint. A missing pair
// is a settled view, never an error. Reads go through the cache; only the raw
// canonical number is ever cached, the viewpoint is derived per call.
func (s *LedgerService) GetPairBalance(ctx context.Context, userID, counterpartyID string) (BalanceView, error) {
	if userID == counterpartyID {
		return BalanceView{}, ErrSameUser
	}

	if cached, ok, err := s.balances.GetBalance(ctx, userID, counterpartyID); err != nil {
		metrics.CacheErrors.Inc()
		slog.Warn("balance cache read failed", "error", err)
	} else if ok {
		metrics.CacheHits.Inc()
		return balanceView(userID, counterpartyID, cached), nil
	}
	metrics.CacheMisses.Inc()

	var canonicalNet int64
	pair, err := s.pairs.Get(ctx, userID, counterpartyID)
	switch {
	case errors.Is(err, store.ErrPairNotFound):
		canonicalNet = 0
	case err != nil:
		return BalanceView{}, err
	default:
		canonicalNet = pair.NetAmount
	}

	if err := s.balances.SetBalance(ctx, userID, counterpartyID, canonicalNet, s.cacheTTL); err != nil {
		metrics.CacheErrors.Inc()
		slog.Warn("balance cache write failed", "error", err)
	}
	return balanceView(userID, counterpartyID, canonicalNet), nil
}

// GetPairHistory lists the ledger entries between two users, newest first.
func (s *LedgerService) GetPairHistory(ctx context.Context, userID, counterpartyID string, limit, offset int) ([]models.LedgerEntry, error) {
	if userID == counterpartyID {
		return nil, ErrSameUser
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListForPair(ctx, userID, counterpartyID, limit, offset)
}

// ListBalances returns the user's balance against every active counterparty.
func (s *LedgerService) ListBalances(ctx context.Context, userID string) ([]BalanceView, error) {
	pairs, err := s.pairs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]BalanceView, 0, len(pairs))
	for _, pair := range pairs {
		views = append(views, balanceView(userID, pair.Counterparty(userID), pair.NetAmount))
	}
	return views, nil
}

// RemoveFriend soft-deletes the pair. Refused while money is still owed in
// either direction; the row itself always survives.
func (s *LedgerService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return ErrSameUser
	}
	err := s.uow.Run(ctx, func(tx store.Tx) error {
		pair, err := s.pairs.GetForUpdate(ctx, tx, userID, friendID)
		if errors.Is(err, store.ErrPairNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if pair.NetAmount != 0 {
			return ErrUnsettledBalance
		}
		if err := s.pairs.SetStatus(ctx, tx, userID, friendID, models.PairStatusDeleted); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"friend_id": friendID})
		return s.audit.Log(ctx, tx, userID, "remove_friend", "pair_balance", friendID, string(data))
	})
	if err != nil {
		return err
	}
	s.invalidateBalance(ctx, userID, friendID)
	return nil
}

// Drift is one pair whose stored net disagrees with the net recomputed from
// the ledger. An empty result means balances are a faithful projection.
type Drift struct {
	LowUser   string `json:"low_user"`
	HighUser  string `json:"high_user"`
	StoredNet int64  `json:"stored_net"`
	LedgerNet int64  `json:"ledger_net"`
}

// Reconcile rebuilds every pair's net from the transfer log and reports
// disagreements with the balance store.
func (s *LedgerService) Reconcile(ctx context.Context) ([]Drift, error) {
	ledgerNets, err := s.ledger.SumTransfersByPair(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := s.pairs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	storedByPair := make(map[[2]string]int64, len(stored))
	for _, pair := range stored {
		storedByPair[[2]string{pair.LowUser, pair.HighUser}] = pair.NetAmount
	}
	var drifts []Drift
	seen := make(map[[2]string]bool, len(ledgerNets))
	for _, net := range ledgerNets {
		key := [2]string{net.LowUser, net.HighUser}
		seen[key] = true
		if storedByPair[key] != net.NetAmount {
			drifts = append(drifts, Drift{
				LowUser:   net.LowUser,
				HighUser:  net.HighUser,
				StoredNet: storedByPair[key],
				LedgerNet: net.NetAmount,
			})
		}
	}
	for _, pair := range stored {
		key := [2]string{pair.LowUser, pair.HighUser}
		if !seen[key] && pair.NetAmount != 0 {
			drifts = append(drifts, Drift{
				LowUser:   pair.LowUser,
				HighUser:  pair.HighUser,
				StoredNet: pair.NetAmount,
				LedgerNet: 0,
			})
		}
	}
	return drifts, nil
}

func (s *LedgerService) invalidateBalance(ctx context.Context, userA, userB string) {
	if err := s.balances.Invalidate(ctx, userA, userB); err != nil {
		metrics.CacheErrors.Inc()
		slog.Warn("balance cache invalidation failed",
			"user_a", userA, "user_b", userB, "error", err)
	}
}

func newReference(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}
