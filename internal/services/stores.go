package services

import (
	"context"

	"github.com/AlexDid/simple-debts-api/internal/models"
)

// Store interfaces consumed by the services. The pgx repositories
// implement them; tests use in-memory fakes with the same conditional
// update semantics.

// UserStore is the persistence boundary for users.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	SearchByName(ctx context.Context, name string, limit int) ([]*models.User, error)
	UpdateProfile(ctx context.Context, id, name, picture string) (*models.User, error)
	AddPushToken(ctx context.Context, userID, token string) error
	Delete(ctx context.Context, id string) error
}

// DebtStore is the persistence boundary for debts. AcceptCreation,
// DeclineCreation and ReplaceParticipant must check their preconditions
// as part of the write itself.
type DebtStore interface {
	Create(ctx context.Context, debt *models.Debt) error
	GetByID(ctx context.Context, id string) (*models.Debt, error)
	GetByPair(ctx context.Context, userA, userB, currency string) (*models.Debt, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Debt, error)
	AcceptCreation(ctx context.Context, debtID, acceptorID string) (*models.Debt, error)
	DeclineCreation(ctx context.Context, debtID, userID string) error
	ReplaceParticipant(ctx context.Context, debtID, removedID, virtualID string) (*models.Debt, error)
}

// OperationStore is the persistence boundary for operations. Create
// must enforce the one-pending-proposal-per-debt rule atomically; the
// transition methods follow the same conditional discipline as
// DebtStore.
type OperationStore interface {
	Create(ctx context.Context, op *models.Operation) error
	GetByID(ctx context.Context, id string) (*models.Operation, error)
	ListByDebt(ctx context.Context, debtID string) ([]*models.Operation, error)
	AcceptCreation(ctx context.Context, opID, acceptorID string) (*models.Operation, error)
	DeclineCreation(ctx context.Context, opID, userID string) (*models.Operation, error)
	ProposeDeletion(ctx context.Context, opID, acceptorID string) (*models.Operation, error)
	AcceptDeletion(ctx context.Context, opID, acceptorID string) (*models.Operation, error)
	DeclineDeletion(ctx context.Context, opID, userID string) (*models.Operation, error)
	DeleteSettled(ctx context.Context, opID string) error
	ReassignReceiver(ctx context.Context, opID, oldID, newID string) error
	ClearAcceptor(ctx context.Context, opID, userID string) error
}
