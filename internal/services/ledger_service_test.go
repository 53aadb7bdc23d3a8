package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"splitledger/internal/models"
	"splitledger/internal/store"
)

type fakeUnitOfWork struct {
	transactional bool
	err           error
	runs          int
}

func (f *fakeUnitOfWork) Run(_ context.Context, fn func(tx store.Tx) error) error {
	f.runs++
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

func (f *fakeUnitOfWork) Transactional() bool {
	return f.transactional
}

type stubPairStore struct {
	applyTransferFn func(ctx context.Context, tx store.Execer, from, to string, amount int64) error
	getFn           func(ctx context.Context, userA, userB string) (models.PairBalance, error)
	getForUpdateFn  func(ctx context.Context, tx store.Getter, userA, userB string) (models.PairBalance, error)
	updateNetFn     func(ctx context.Context, tx store.Execer, userA, userB string, netAmount int64) error
	setStatusFn     func(ctx context.Context, tx store.Execer, userA, userB, status string) error
	listForUserFn   func(ctx context.Context, userID string) ([]models.PairBalance, error)
	listAllFn       func(ctx context.Context) ([]models.PairBalance, error)
}

func (s stubPairStore) ApplyTransfer(ctx context.Context, tx store.Execer, from, to string, amount int64) error {
	if s.applyTransferFn == nil {
		return nil
	}
	return s.applyTransferFn(ctx, tx, from, to, amount)
}

func (s stubPairStore) Get(ctx context.Context, userA, userB string) (models.PairBalance, error) {
	if s.getFn == nil {
		return models.PairBalance{}, store.ErrPairNotFound
	}
	return s.getFn(ctx, userA, userB)
}

func (s stubPairStore) GetForUpdate(ctx context.Context, tx store.Getter, userA, userB string) (models.PairBalance, error) {
	if s.getForUpdateFn == nil {
		return models.PairBalance{}, store.ErrPairNotFound
	}
	return s.getForUpdateFn(ctx, tx, userA, userB)
}

func (s stubPairStore) UpdateNet(ctx context.Context, tx store.Execer, userA, userB string, netAmount int64) error {
	if s.updateNetFn == nil {
		return nil
	}
	return s.updateNetFn(ctx, tx, userA, userB, netAmount)
}

func (s stubPairStore) SetStatus(ctx context.Context, tx store.Execer, userA, userB, status string) error {
	if s.setStatusFn == nil {
		return nil
	}
	return s.setStatusFn(ctx, tx, userA, userB, status)
}

func (s stubPairStore) ListForUser(ctx context.Context, userID string) ([]models.PairBalance, error) {
	if s.listForUserFn == nil {
		return nil, nil
	}
	return s.listForUserFn(ctx, userID)
}

func (s stubPairStore) ListAll(ctx context.Context) ([]models.PairBalance, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx)
}

type stubLedgerStore struct {
	insertFn      func(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error
	getByIDFn     func(ctx context.Context, entryID string) (models.LedgerEntry, error)
	listForPairFn func(ctx context.Context, userA, userB string, limit, offset int) ([]models.LedgerEntry, error)
	sumFn         func(ctx context.Context) ([]store.PairNet, error)
}

func (s stubLedgerStore) Insert(ctx context.Context, tx store.Execer, entry models.LedgerEntry) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, entry)
}

func (s stubLedgerStore) GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error) {
	if s.getByIDFn == nil {
		return models.LedgerEntry{}, store.ErrEntryNotFound
	}
	return s.getByIDFn(ctx, entryID)
}

func (s stubLedgerStore) ListForPair(ctx context.Context, userA, userB string, limit, offset int) ([]models.LedgerEntry, error) {
	if s.listForPairFn == nil {
		return nil, nil
	}
	return s.listForPairFn(ctx, userA, userB, limit, offset)
}

func (s stubLedgerStore) SumTransfersByPair(ctx context.Context) ([]store.PairNet, error) {
	if s.sumFn == nil {
		return nil, nil
	}
	return s.sumFn(ctx)
}

type stubIntentStore struct {
	findFn   func(ctx context.Context, tx store.Getter, key, userA, userB string) (string, error)
	recordFn func(ctx context.Context, tx store.Execer, key, userA, userB, entryID string) error
}

func (s stubIntentStore) Find(ctx context.Context, tx store.Getter, key, userA, userB string) (string, error) {
	if s.findFn == nil {
		return "", store.ErrIntentNotFound
	}
	return s.findFn(ctx, tx, key, userA, userB)
}

func (s stubIntentStore) Record(ctx context.Context, tx store.Execer, key, userA, userB, entryID string) error {
	if s.recordFn == nil {
		return nil
	}
	return s.recordFn(ctx, tx, key, userA, userB, entryID)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

// recordingCache tracks cache traffic and can fail on demand; failures must
// never surface to the caller.
type recordingCache struct {
	values       map[string]int64
	sets         int
	invalidates  []string
	getErr       error
	setErr       error
	invalidteErr error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: make(map[string]int64)}
}

func cacheKey(userA, userB string) string {
	low, high := models.PairKey(userA, userB)
	return low + ":" + high
}

func (c *recordingCache) GetBalance(_ context.Context, userA, userB string) (int64, bool, error) {
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	value, ok := c.values[cacheKey(userA, userB)]
	return value, ok, nil
}

func (c *recordingCache) SetBalance(_ context.Context, userA, userB string, netAmount int64, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.values[cacheKey(userA, userB)] = netAmount
	c.sets++
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, userA, userB string) error {
	if c.invalidteErr != nil {
		return c.invalidteErr
	}
	key := cacheKey(userA, userB)
	delete(c.values, key)
	c.invalidates = append(c.invalidates, key)
	return nil
}

func (c *recordingCache) Close() error {
	return nil
}

func newTestService(uow *fakeUnitOfWork, pairs stubPairStore, ledger stubLedgerStore, intents stubIntentStore, balances *recordingCache) *LedgerService {
	return NewLedgerService(uow, pairs, ledger, intents, stubAuditStore{}, balances, 5*time.Minute)
}

func TestRecordGroupExpenseAppliesTransfersAndAppendsLedger(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	balances := newRecordingCache()

	type applied struct {
		from, to string
		amount   int64
	}
	var transfers []applied
	var inserted models.LedgerEntry
	pairs := stubPairStore{
		applyTransferFn: func(_ context.Context, _ store.Execer, from, to string, amount int64) error {
			transfers = append(transfers, applied{from, to, amount})
			return nil
		},
	}
	ledger := stubLedgerStore{
		insertFn: func(_ context.Context, _ store.Execer, entry models.LedgerEntry) error {
			inserted = entry
			return nil
		},
	}
	service := newTestService(uow, pairs, ledger, stubIntentStore{}, balances)

	entry, err := service.RecordGroupExpense(ctx, ExpenseRequest{
		ActorID: "alice",
		Payers:  []models.Share{{UserID: "alice", Amount: 30000}},
		Payees: []models.Share{
			{UserID: "alice", Amount: 10000},
			{UserID: "bob", Amount: 10000},
			{UserID: "carol", Amount: 10000},
		},
		TotalAmount: 30000,
		Description: "dinner",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []applied{
		{"bob", "alice", 10000},
		{"carol", "alice", 10000},
	}
	if len(transfers) != len(want) {
		t.Fatalf("unexpected transfers: %#v", transfers)
	}
	for i, tr := range transfers {
		if tr != want[i] {
			t.Fatalf("transfer %d = %#v, want %#v", i, tr, want[i])
		}
	}
	if inserted.ID != entry.ID {
		t.Fatalf("ledger entry not inserted in the unit of work")
	}
	if !strings.HasPrefix(entry.Reference, "TXN-") {
		t.Fatalf("unexpected reference: %s", entry.Reference)
	}
	if entry.Kind != models.EntryKindExpense || entry.Status != models.EntryStatusActive {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if entry.Category != "Uncategorized" {
		t.Fatalf("expected default category, got %q", entry.Category)
	}
	if entry.NonTransactional {
		t.Fatal("transactional unit of work must not stamp non_transactional")
	}
	if len(balances.invalidates) != 2 {
		t.Fatalf("expected every touched pair invalidated, got %#v", balances.invalidates)
	}
}

func TestRecordGroupExpenseValidationFailureMutatesNothing(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	balances := newRecordingCache()
	pairs := stubPairStore{
		applyTransferFn: func(_ context.Context, _ store.Execer, from, to string, amount int64) error {
			t.Fatal("balance must not be touched on validation failure")
			return nil
		},
	}
	ledger := stubLedgerStore{
		insertFn: func(_ context.Context, _ store.Execer, entry models.LedgerEntry) error {
			t.Fatal("ledger must not be touched on validation failure")
			return nil
		},
	}
	service := newTestService(uow, pairs, ledger, stubIntentStore{}, balances)

	// Payers sum to 99.00 against a 100.00 total.
	_, err := service.RecordGroupExpense(ctx, ExpenseRequest{
		ActorID:     "alice",
		Payers:      []models.Share{{UserID: "alice", Amount: 9900}},
		Payees:      []models.Share{{UserID: "bob", Amount: 10000}},
		TotalAmount: 10000,
		Description: "dinner",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if uow.runs != 0 {
		t.Fatal("unit of work must not start on validation failure")
	}
	if len(balances.invalidates) != 0 {
		t.Fatalf("cache must not be invalidated: %#v", balances.invalidates)
	}
}

func TestRecordGroupExpenseStampsBestEffort(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: false}
	service := newTestService(uow, stubPairStore{}, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	entry, err := service.RecordGroupExpense(ctx, ExpenseRequest{
		ActorID:     "alice",
		Payers:      []models.Share{{UserID: "alice", Amount: 1000}},
		Payees:      []models.Share{{UserID: "bob", Amount: 1000}},
		TotalAmount: 1000,
		Description: "coffee",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.NonTransactional {
		t.Fatal("best-effort unit of work must stamp non_transactional")
	}
}

func TestSettleUpMovesBalanceTowardZero(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	balances := newRecordingCache()

	var newNet *int64
	var recordedKey string
	pairs := stubPairStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userA, userB string) (models.PairBalance, error) {
			// bob owes alice 50.00
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: 5000, Status: models.PairStatusActive}, nil
		},
		updateNetFn: func(_ context.Context, _ store.Execer, userA, userB string, net int64) error {
			newNet = &net
			return nil
		},
	}
	var inserted models.LedgerEntry
	ledger := stubLedgerStore{
		insertFn: func(_ context.Context, _ store.Execer, entry models.LedgerEntry) error {
			inserted = entry
			return nil
		},
	}
	intents := stubIntentStore{
		recordFn: func(_ context.Context, _ store.Execer, key, userA, userB, entryID string) error {
			recordedKey = key
			return nil
		},
	}
	service := newTestService(uow, pairs, ledger, intents, balances)

	result, err := service.SettleUp(ctx, SettleUpRequest{
		PayerID:        "bob",
		CounterpartyID: "alice",
		Amount:         5000,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Replayed {
		t.Fatal("first settle-up must not be a replay")
	}
	if newNet == nil || *newNet != 0 {
		t.Fatalf("expected net updated to 0, got %v", newNet)
	}
	if inserted.Kind != models.EntryKindSettlement {
		t.Fatalf("expected settlement entry, got %#v", inserted)
	}
	if !strings.HasPrefix(inserted.Reference, "SETTLE-") {
		t.Fatalf("unexpected reference: %s", inserted.Reference)
	}
	if recordedKey != "key-1" {
		t.Fatalf("idempotency key not recorded, got %q", recordedKey)
	}
	if len(balances.invalidates) != 1 {
		t.Fatalf("expected one invalidation, got %#v", balances.invalidates)
	}
}

func TestSettleUpPartialLeavesRemainder(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}

	var newNet int64
	pairs := stubPairStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userA, userB string) (models.PairBalance, error) {
			// alice owes bob 80.00: alice is the low user, so the canonical
			// net is negative.
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: -8000}, nil
		},
		updateNetFn: func(_ context.Context, _ store.Execer, userA, userB string, net int64) error {
			newNet = net
			return nil
		},
	}
	service := newTestService(uow, pairs, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	if _, err := service.SettleUp(ctx, SettleUpRequest{
		PayerID:        "alice",
		CounterpartyID: "bob",
		Amount:         3000,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newNet != -5000 {
		t.Fatalf("expected net -5000 after partial settle, got %d", newNet)
	}
}

func TestSettleUpByCreditorFails(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	pairs := stubPairStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userA, userB string) (models.PairBalance, error) {
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: 5000}, nil
		},
		updateNetFn: func(_ context.Context, _ store.Execer, userA, userB string, net int64) error {
			t.Fatal("balance must not change when the creditor tries to settle")
			return nil
		},
	}
	service := newTestService(uow, pairs, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	_, err := service.SettleUp(ctx, SettleUpRequest{PayerID: "alice", CounterpartyID: "bob", Amount: 5000})
	if !errors.Is(err, ErrInvalidSettlement) {
		t.Fatalf("expected ErrInvalidSettlement, got %v", err)
	}
}

func TestSettleUpOnSettledPairFails(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	pairs := stubPairStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userA, userB string) (models.PairBalance, error) {
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: 0}, nil
		},
	}
	service := newTestService(uow, pairs, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	_, err := service.SettleUp(ctx, SettleUpRequest{PayerID: "bob", CounterpartyID: "alice", Amount: 100})
	if !errors.Is(err, ErrInvalidSettlement) {
		t.Fatalf("expected ErrInvalidSettlement on a settled pair, got %v", err)
	}
}

func TestSettleUpOverpaymentFails(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	pairs := stubPairStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userA, userB string) (models.PairBalance, error) {
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: 5000}, nil
		},
	}
	service := newTestService(uow, pairs, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	_, err := service.SettleUp(ctx, SettleUpRequest{PayerID: "bob", CounterpartyID: "alice", Amount: 5001})
	if !errors.Is(err, ErrInvalidSettlement) {
		t.Fatalf("expected ErrInvalidSettlement on overpayment, got %v", err)
	}
}

func TestSettleUpMissingPairFails(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	service := newTestService(uow, stubPairStore{}, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	_, err := service.SettleUp(ctx, SettleUpRequest{PayerID: "bob", CounterpartyID: "alice", Amount: 100})
	if !errors.Is(err, ErrInvalidSettlement) {
		t.Fatalf("expected ErrInvalidSettlement for a missing pair, got %v", err)
	}
}

func TestSettleUpSameUserFails(t *testing.T) {
	ctx := context.Background()
	service := newTestService(&fakeUnitOfWork{transactional: true}, stubPairStore{}, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	_, err := service.SettleUp(ctx, SettleUpRequest{PayerID: "alice", CounterpartyID: "alice", Amount: 100})
	if !errors.Is(err, ErrSameUser) {
		t.Fatalf("expected ErrSameUser, got %v", err)
	}
}

func TestSettleUpReplaysIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	uow := &fakeUnitOfWork{transactional: true}
	balances := newRecordingCache()

	stored := models.LedgerEntry{ID: "e1", Kind: models.EntryKindSettlement, TotalAmount: 5000}
	pairs := stubPairStore{
		updateNetFn: func(_ context.Context, _ store.Execer, userA, userB string, net int64) error {
			t.Fatal("replay must not touch the balance")
			return nil
		},
	}
	ledger := stubLedgerStore{
		insertFn: func(_ context.Context, _ store.Execer, entry models.LedgerEntry) error {
			t.Fatal("replay must not append a second entry")
			return nil
		},
		getByIDFn: func(_ context.Context, entryID string) (models.LedgerEntry, error) {
			if entryID != "e1" {
				t.Fatalf("unexpected entry id: %s", entryID)
			}
			return stored, nil
		},
	}
	intents := stubIntentStore{
		findFn: func(_ context.Context, _ store.Getter, key, userA, userB string) (string, error) {
			return "e1", nil
		},
	}
	service := newTestService(uow, pairs, ledger, intents, balances)

	result, err := service.SettleUp(ctx, SettleUpRequest{
		PayerID:        "bob",
		CounterpartyID: "alice",
		Amount:         5000,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Replayed || result.Entry.ID != "e1" {
		t.Fatalf("expected replay of e1, got %#v", result)
	}
	if len(balances.invalidates) != 0 {
		t.Fatalf("replay must not invalidate the cache: %#v", balances.invalidates)
	}
}

func TestSettleUpKeyReusedAcrossPairsFails(t *testing.T) {
	ctx := context.Background()
	intents := stubIntentStore{
		findFn: func(_ context.Context, _ store.Getter, key, userA, userB string) (string, error) {
			return "", store.ErrIntentPairMismatch
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, stubPairStore{}, stubLedgerStore{}, intents, newRecordingCache())

	_, err := service.SettleUp(ctx, SettleUpRequest{
		PayerID:        "bob",
		CounterpartyID: "alice",
		Amount:         100,
		IdempotencyKey: "key-1",
	})
	if !errors.Is(err, ErrInvalidSettlement) {
		t.Fatalf("expected ErrInvalidSettlement, got %v", err)
	}
}

func TestGetPairBalanceCacheHitSkipsStore(t *testing.T) {
	ctx := context.Background()
	balances := newRecordingCache()
	balances.values[cacheKey("alice", "bob")] = 5000

	pairs := stubPairStore{
		getFn: func(_ context.Context, userA, userB string) (models.PairBalance, error) {
			t.Fatal("store must not be read on a cache hit")
			return models.PairBalance{}, nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, stubLedgerStore{}, stubIntentStore{}, balances)

	// The cache holds the raw canonical number; each caller gets their own
	// viewpoint derived from it.
	view, err := service.GetPairBalance(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Net != 5000 || view.Direction != DirectionOwesYou {
		t.Fatalf("unexpected view for alice: %#v", view)
	}
	view, err = service.GetPairBalance(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Net != -5000 || view.Direction != DirectionYouOwe {
		t.Fatalf("unexpected view for bob: %#v", view)
	}
}

func TestGetPairBalanceCacheMissReadsStoreAndFills(t *testing.T) {
	ctx := context.Background()
	balances := newRecordingCache()
	pairs := stubPairStore{
		getFn: func(_ context.Context, userA, userB string) (models.PairBalance, error) {
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: -2500}, nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, stubLedgerStore{}, stubIntentStore{}, balances)

	view, err := service.GetPairBalance(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Net != -2500 || view.Direction != DirectionYouOwe {
		t.Fatalf("unexpected view: %#v", view)
	}
	if balances.sets != 1 || balances.values[cacheKey("alice", "bob")] != -2500 {
		t.Fatalf("cache must hold the raw canonical value: %#v", balances.values)
	}
}

func TestGetPairBalanceMissingPairIsSettled(t *testing.T) {
	ctx := context.Background()
	service := newTestService(&fakeUnitOfWork{transactional: true}, stubPairStore{}, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	view, err := service.GetPairBalance(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("a missing pair is a zero balance, not an error: %v", err)
	}
	if view.Net != 0 || view.Direction != DirectionSettled {
		t.Fatalf("unexpected view: %#v", view)
	}
}

func TestGetPairBalanceSwallowsCacheErrors(t *testing.T) {
	ctx := context.Background()
	balances := newRecordingCache()
	balances.getErr = errors.New("redis down")
	balances.setErr = errors.New("redis down")

	pairs := stubPairStore{
		getFn: func(_ context.Context, userA, userB string) (models.PairBalance, error) {
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: 1200}, nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, stubLedgerStore{}, stubIntentStore{}, balances)

	view, err := service.GetPairBalance(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("cache failures must not surface: %v", err)
	}
	if view.Net != 1200 {
		t.Fatalf("unexpected view: %#v", view)
	}
}

func TestRecordGroupExpenseSwallowsInvalidationErrors(t *testing.T) {
	ctx := context.Background()
	balances := newRecordingCache()
	balances.invalidteErr = errors.New("redis down")
	service := newTestService(&fakeUnitOfWork{transactional: true}, stubPairStore{}, stubLedgerStore{}, stubIntentStore{}, balances)

	_, err := service.RecordGroupExpense(ctx, ExpenseRequest{
		ActorID:     "alice",
		Payers:      []models.Share{{UserID: "alice", Amount: 1000}},
		Payees:      []models.Share{{UserID: "bob", Amount: 1000}},
		TotalAmount: 1000,
		Description: "coffee",
	})
	if err != nil {
		t.Fatalf("invalidation failures must not surface: %v", err)
	}
}

func TestGetPairHistoryClampsPaging(t *testing.T) {
	ctx := context.Background()
	var gotLimit, gotOffset int
	ledger := stubLedgerStore{
		listForPairFn: func(_ context.Context, userA, userB string, limit, offset int) ([]models.LedgerEntry, error) {
			gotLimit, gotOffset = limit, offset
			return nil, nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, stubPairStore{}, ledger, stubIntentStore{}, newRecordingCache())

	if _, err := service.GetPairHistory(ctx, "alice", "bob", 0, -3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 50 || gotOffset != 0 {
		t.Fatalf("expected clamped paging, got limit=%d offset=%d", gotLimit, gotOffset)
	}
	if _, err := service.GetPairHistory(ctx, "alice", "bob", 500, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 50 || gotOffset != 10 {
		t.Fatalf("expected oversized limit clamped, got limit=%d offset=%d", gotLimit, gotOffset)
	}
}

func TestListBalancesDerivesViewpoints(t *testing.T) {
	ctx := context.Background()
	pairs := stubPairStore{
		listForUserFn: func(_ context.Context, userID string) ([]models.PairBalance, error) {
			return []models.PairBalance{
				{LowUser: "bob", HighUser: "carol", NetAmount: 3000},
				{LowUser: "alice", HighUser: "bob", NetAmount: 1500},
			}, nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	views, err := service.ListBalances(ctx, "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("unexpected views: %#v", views)
	}
	// bob is the low user of (bob, carol): carol owes bob 30.00.
	if views[0].CounterpartyID != "carol" || views[0].Net != 3000 || views[0].Direction != DirectionOwesYou {
		t.Fatalf("unexpected view: %#v", views[0])
	}
	// bob is the high user of (alice, bob): bob owes alice 15.00.
	if views[1].CounterpartyID != "alice" || views[1].Net != -1500 || views[1].Direction != DirectionYouOwe {
		t.Fatalf("unexpected view: %#v", views[1])
	}
}

func TestRemoveFriendRefusesUnsettledBalance(t *testing.T) {
	ctx := context.Background()
	pairs := stubPairStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userA, userB string) (models.PairBalance, error) {
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: 100}, nil
		},
		setStatusFn: func(_ context.Context, _ store.Execer, userA, userB, status string) error {
			t.Fatal("pair must not be deleted while money is owed")
			return nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())

	if err := service.RemoveFriend(ctx, "alice", "bob"); !errors.Is(err, ErrUnsettledBalance) {
		t.Fatalf("expected ErrUnsettledBalance, got %v", err)
	}
}

func TestRemoveFriendSoftDeletesSettledPair(t *testing.T) {
	ctx := context.Background()
	var gotStatus string
	pairs := stubPairStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, userA, userB string) (models.PairBalance, error) {
			return models.PairBalance{LowUser: "alice", HighUser: "bob", NetAmount: 0}, nil
		},
		setStatusFn: func(_ context.Context, _ store.Execer, userA, userB, status string) error {
			gotStatus = status
			return nil
		},
	}
	balances := newRecordingCache()
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, stubLedgerStore{}, stubIntentStore{}, balances)

	if err := service.RemoveFriend(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotStatus != models.PairStatusDeleted {
		t.Fatalf("expected soft delete, got %q", gotStatus)
	}
	if len(balances.invalidates) != 1 {
		t.Fatalf("expected cache invalidated: %#v", balances.invalidates)
	}
}

func TestRemoveFriendMissingPairIsNoop(t *testing.T) {
	ctx := context.Background()
	service := newTestService(&fakeUnitOfWork{transactional: true}, stubPairStore{}, stubLedgerStore{}, stubIntentStore{}, newRecordingCache())
	if err := service.RemoveFriend(ctx, "alice", "bob"); err != nil {
		t.Fatalf("removing an unknown friend should be a no-op: %v", err)
	}
}

func TestReconcileReportsDriftBothWays(t *testing.T) {
	ctx := context.Background()
	pairs := stubPairStore{
		listAllFn: func(_ context.Context) ([]models.PairBalance, error) {
			return []models.PairBalance{
				{LowUser: "alice", HighUser: "bob", NetAmount: 5000},
				{LowUser: "carol", HighUser: "dave", NetAmount: 700}, // no ledger rows
				{LowUser: "erin", HighUser: "frank", NetAmount: 0},   // settled, no ledger rows
			}, nil
		},
	}
	ledger := stubLedgerStore{
		sumFn: func(_ context.Context) ([]store.PairNet, error) {
			return []store.PairNet{
				{LowUser: "alice", HighUser: "bob", NetAmount: 4000}, // disagrees with stored
			}, nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, ledger, stubIntentStore{}, newRecordingCache())

	drifts, err := service.Reconcile(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drifts) != 2 {
		t.Fatalf("unexpected drifts: %#v", drifts)
	}
	if drifts[0].LowUser != "alice" || drifts[0].StoredNet != 5000 || drifts[0].LedgerNet != 4000 {
		t.Fatalf("unexpected drift: %#v", drifts[0])
	}
	if drifts[1].LowUser != "carol" || drifts[1].StoredNet != 700 || drifts[1].LedgerNet != 0 {
		t.Fatalf("unexpected drift: %#v", drifts[1])
	}
}

func TestReconcileCleanStateReportsNothing(t *testing.T) {
	ctx := context.Background()
	pairs := stubPairStore{
		listAllFn: func(_ context.Context) ([]models.PairBalance, error) {
			return []models.PairBalance{{LowUser: "alice", HighUser: "bob", NetAmount: 5000}}, nil
		},
	}
	ledger := stubLedgerStore{
		sumFn: func(_ context.Context) ([]store.PairNet, error) {
			return []store.PairNet{{LowUser: "alice", HighUser: "bob", NetAmount: 5000}}, nil
		},
	}
	service := newTestService(&fakeUnitOfWork{transactional: true}, pairs, ledger, stubIntentStore{}, newRecordingCache())

	drifts, err := service.Reconcile(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("expected no drift: %#v", drifts)
	}
}
