package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/consent"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

const maxDescriptionLength = 200

// OperationService manages money operations within a debt under the
// same consent discipline as debt creation.
type OperationService struct {
	opStore   OperationStore
	debtStore DebtStore
}

// NewOperationService creates a new operation service
func NewOperationService(opStore OperationStore, debtStore DebtStore) *OperationService {
	return &OperationService{
		opStore:   opStore,
		debtStore: debtStore,
	}
}

// Create proposes a new operation on a debt. On a shared debt the
// operation starts awaiting the counterparty's consent; on a
// single-user debt there is nobody left to consent, so it settles
// immediately.
func (s *OperationService) Create(ctx context.Context, creatorID, debtID string, amount decimal.Decimal, receiverID, description string) (*models.Operation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", apperrors.ErrValidation)
	}
	if description == "" {
		return nil, fmt.Errorf("description is required: %w", apperrors.ErrValidation)
	}
	if len(description) > maxDescriptionLength {
		return nil, fmt.Errorf("description exceeds %d characters: %w", maxDescriptionLength, apperrors.ErrValidation)
	}

	debt, err := s.debtStore.GetByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if !debt.HasParticipant(creatorID) {
		return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}
	if !debt.HasParticipant(receiverID) {
		return nil, fmt.Errorf("receiver must be a debt participant: %w", apperrors.ErrValidation)
	}
	if !debt.Status.Settled() {
		return nil, fmt.Errorf("debt has a pending request: %w", apperrors.ErrConflict)
	}

	op := &models.Operation{
		ID:          uuid.New().String(),
		DebtID:      debtID,
		Amount:      amount,
		ReceiverID:  receiverID,
		Description: description,
		CreatorID:   creatorID,
		CreatedAt:   time.Now(),
	}

	if debt.Type == models.AccountTypeSingleUser {
		op.Status = consent.StatusUnchanged
	} else {
		acceptor, ok := debt.CounterParty(creatorID)
		if !ok {
			return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
		}
		op.Status = consent.StatusCreationAwaiting
		op.StatusAcceptor = &acceptor
	}

	// The store re-checks atomically: the insert fails when the debt
	// went pending since the read or another proposal is outstanding.
	if err := s.opStore.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// AcceptCreation settles a pending operation creation. Only the
// designated acceptor may call it.
func (s *OperationService) AcceptCreation(ctx context.Context, userID, opID string) (*models.Operation, error) {
	return s.opStore.AcceptCreation(ctx, opID, userID)
}

// DeclineCreation removes a still-pending operation. Both participants
// of the owning debt may decline.
func (s *OperationService) DeclineCreation(ctx context.Context, userID, opID string) (*models.Operation, error) {
	return s.opStore.DeclineCreation(ctx, opID, userID)
}

// ProposeDeletion proposes removing a settled operation. On a shared
// debt the counterparty must consent; on a single-user debt the
// operation is removed immediately. The returned operation reflects the
// record before removal in the immediate case.
func (s *OperationService) ProposeDeletion(ctx context.Context, userID, opID string) (*models.Operation, error) {
	op, err := s.opStore.GetByID(ctx, opID)
	if err != nil {
		return nil, err
	}
	debt, err := s.debtStore.GetByID(ctx, op.DebtID)
	if err != nil {
		return nil, err
	}
	if !debt.HasParticipant(userID) {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}

	if debt.Type == models.AccountTypeSingleUser {
		if err := s.opStore.DeleteSettled(ctx, opID); err != nil {
			return nil, err
		}
		return op, nil
	}

	acceptor, ok := debt.CounterParty(userID)
	if !ok {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	return s.opStore.ProposeDeletion(ctx, opID, acceptor)
}

// AcceptDeletion removes an operation whose deletion the designated
// acceptor consented to.
func (s *OperationService) AcceptDeletion(ctx context.Context, userID, opID string) (*models.Operation, error) {
	return s.opStore.AcceptDeletion(ctx, opID, userID)
}

// DeclineDeletion reverts a pending deletion proposal to the settled
// state. Both participants of the owning debt may decline.
func (s *OperationService) DeclineDeletion(ctx context.Context, userID, opID string) (*models.Operation, error) {
	return s.opStore.DeclineDeletion(ctx, opID, userID)
}
