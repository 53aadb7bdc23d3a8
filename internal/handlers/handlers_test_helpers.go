package handlers

import (
	"context"
	"time"

	"splitledger/internal/config"
	"splitledger/internal/models"
	"splitledger/internal/services"
	"splitledger/internal/store"
)

type fakeUnitOfWork struct {
	err error
}

func (f fakeUnitOfWork) Run(_ context.Context, fn func(tx store.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

func (f fakeUnitOfWork) Transactional() bool {
	return true
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, user models.User) error
	getByEmailFn    func(ctx context.Context, email string) (models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (models.User, error)
	getByIDFn       func(ctx context.Context, userID string) (models.User, error)
	usernamesByIDFn func(ctx context.Context, ids []string) (map[string]string, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, user models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, user)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, store.ErrUserNotFound
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	if s.getByUsernameFn == nil {
		return models.User{}, store.ErrUserNotFound
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{ID: userID}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) UsernamesByID(ctx context.Context, ids []string) (map[string]string, error) {
	if s.usernamesByIDFn == nil {
		names := make(map[string]string, len(ids))
		for _, id := range ids {
			names[id] = id
		}
		return names, nil
	}
	return s.usernamesByIDFn(ctx, ids)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubLedgerService struct {
	recordExpenseFn  func(ctx context.Context, req services.ExpenseRequest) (models.LedgerEntry, error)
	settleUpFn       func(ctx context.Context, req services.SettleUpRequest) (services.SettleUpResult, error)
	getBalanceFn     func(ctx context.Context, userID, counterpartyID string) (services.BalanceView, error)
	getHistoryFn     func(ctx context.Context, userID, counterpartyID string, limit, offset int) ([]models.LedgerEntry, error)
	listBalancesFn   func(ctx context.Context, userID string) ([]services.BalanceView, error)
	removeFriendFn   func(ctx context.Context, userID, friendID string) error
	reconcileFn      func(ctx context.Context) ([]services.Drift, error)
}

func (s stubLedgerService) RecordGroupExpense(ctx context.Context, req services.ExpenseRequest) (models.LedgerEntry, error) {
	if s.recordExpenseFn == nil {
		return models.LedgerEntry{}, nil
	}
	return s.recordExpenseFn(ctx, req)
}

func (s stubLedgerService) SettleUp(ctx context.Context, req services.SettleUpRequest) (services.SettleUpResult, error) {
	if s.settleUpFn == nil {
		return services.SettleUpResult{}, nil
	}
	return s.settleUpFn(ctx, req)
}

func (s stubLedgerService) GetPairBalance(ctx context.Context, userID, counterpartyID string) (services.BalanceView, error) {
	if s.getBalanceFn == nil {
		return services.BalanceView{}, nil
	}
	return s.getBalanceFn(ctx, userID, counterpartyID)
}

func (s stubLedgerService) GetPairHistory(ctx context.Context, userID, counterpartyID string, limit, offset int) ([]models.LedgerEntry, error) {
	if s.getHistoryFn == nil {
		return nil, nil
	}
	return s.getHistoryFn(ctx, userID, counterpartyID, limit, offset)
}

func (s stubLedgerService) ListBalances(ctx context.Context, userID string) ([]services.BalanceView, error) {
	if s.listBalancesFn == nil {
		return nil, nil
	}
	return s.listBalancesFn(ctx, userID)
}

func (s stubLedgerService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if s.removeFriendFn == nil {
		return nil
	}
	return s.removeFriendFn(ctx, userID, friendID)
}

func (s stubLedgerService) Reconcile(ctx context.Context) ([]services.Drift, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx)
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "test-secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		InternalSecret: "internal-secret",
	}
}

func newTestHandler(users stubUserStore, service stubLedgerService) *Handler {
	return New(testConfig(), fakeUnitOfWork{}, users, stubAuditStore{}, service)
}
