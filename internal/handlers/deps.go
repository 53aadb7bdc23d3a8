package handlers

import (
	"context"

	"splitledger/internal/models"
	"splitledger/internal/services"
	"splitledger/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
	UsernamesByID(ctx context.Context, ids []string) (map[string]string, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type LedgerService interface {
	RecordGroupExpense(ctx context.Context, req services.ExpenseRequest) (models.LedgerEntry, error)
	SettleUp(ctx context.Context, req services.SettleUpRequest) (services.SettleUpResult, error)
	GetPairBalance(ctx context.Context, userID, counterpartyID string) (services.BalanceView, error)
	GetPairHistory(ctx context.Context, userID, counterpartyID string, limit, offset int) ([]models.LedgerEntry, error)
	ListBalances(ctx context.Context, userID string) ([]services.BalanceView, error)
	RemoveFriend(ctx context.Context, userID, friendID string) error
	Reconcile(ctx context.Context) ([]services.Drift, error)
}
