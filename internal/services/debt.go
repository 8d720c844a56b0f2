package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/consent"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

const currencyCodeLength = 3

// compensationAttempts bounds the local retries of the idempotent
// per-operation fix-ups during participant removal.
const compensationAttempts = 3

// DebtService manages the debt lifecycle: the two-party creation
// consent protocol and the compensation algorithm that runs when a
// participant is removed.
type DebtService struct {
	debtStore DebtStore
	opStore   OperationStore
	userStore UserStore
}

// NewDebtService creates a new debt service
func NewDebtService(debtStore DebtStore, opStore OperationStore, userStore UserStore) *DebtService {
	return &DebtService{
		debtStore: debtStore,
		opStore:   opStore,
		userStore: userStore,
	}
}

// Create proposes a new debt between creatorID and counterpartyID in
// the given currency. The debt starts awaiting the counterparty's
// consent.
func (s *DebtService) Create(ctx context.Context, creatorID, counterpartyID, currency string) (*models.Debt, error) {
	if creatorID == counterpartyID {
		return nil, fmt.Errorf("cannot create debt with yourself: %w", apperrors.ErrValidation)
	}

	counterparty, err := s.userStore.GetByID(ctx, counterpartyID)
	if err != nil {
		return nil, err
	}
	// Virtual users are not addressable for consent; treat them as
	// absent rather than reveal their existence.
	if !counterparty.CanConsent() {
		return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}

	_, err = s.debtStore.GetByPair(ctx, creatorID, counterpartyID, currency)
	if err == nil {
		return nil, fmt.Errorf("debt for this pair and currency: %w", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if len(currency) != currencyCodeLength {
		return nil, fmt.Errorf("currency must be a 3-letter code: %w", apperrors.ErrValidation)
	}

	userA, userB := creatorID, counterpartyID
	if userA > userB {
		userA, userB = userB, userA
	}

	acceptor := counterpartyID
	debt := &models.Debt{
		ID:             uuid.New().String(),
		UserAID:        userA,
		UserBID:        userB,
		Currency:       currency,
		Type:           models.AccountTypeMultipleUsers,
		Status:         consent.StatusCreationAwaiting,
		StatusAcceptor: &acceptor,
		CreatedAt:      time.Now(),
	}

	if err := s.debtStore.Create(ctx, debt); err != nil {
		return nil, err
	}
	return debt, nil
}

// AcceptCreation settles a pending debt creation. Only the designated
// acceptor may call it; any precondition mismatch is not found.
func (s *DebtService) AcceptCreation(ctx context.Context, userID, debtID string) (*models.Debt, error) {
	debt, err := s.debtStore.AcceptCreation(ctx, debtID, userID)
	if err != nil {
		return nil, err
	}
	return s.attachOperations(ctx, debt)
}

// DeclineCreation removes a still-pending debt entirely. Both
// participants may decline; the proposer declining abandons the
// proposal.
func (s *DebtService) DeclineCreation(ctx context.Context, userID, debtID string) error {
	return s.debtStore.DeclineCreation(ctx, debtID, userID)
}

// GetByID returns a debt with its ordered operation list, visible only
// to its participants.
func (s *DebtService) GetByID(ctx context.Context, userID, debtID string) (*models.Debt, error) {
	debt, err := s.debtStore.GetByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if !debt.HasParticipant(userID) {
		return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}
	return s.attachOperations(ctx, debt)
}

// ListForUser returns every debt the user participates in, with
// operations attached.
func (s *DebtService) ListForUser(ctx context.Context, userID string) ([]*models.Debt, error) {
	debts, err := s.debtStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, debt := range debts {
		if _, err := s.attachOperations(ctx, debt); err != nil {
			return nil, err
		}
	}
	return debts, nil
}

// Leave removes the calling participant from a debt. A still-pending
// creation is declined outright; an accepted shared debt goes through
// participant removal so the counterparty keeps a consistent history.
func (s *DebtService) Leave(ctx context.Context, userID, debtID string) (*models.Debt, error) {
	debt, err := s.debtStore.GetByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if !debt.HasParticipant(userID) {
		return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}

	if debt.Status.Pending() {
		if err := s.debtStore.DeclineCreation(ctx, debtID, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if debt.Type != models.AccountTypeMultipleUsers {
		return nil, fmt.Errorf("debt has no removable participant: %w", apperrors.ErrValidation)
	}

	return s.RemoveParticipant(ctx, debt, userID)
}

// RemoveParticipant runs the removal compensation: the departing user's
// public profile is cloned into a permanent virtual placeholder, the
// debt atomically swaps the departed participant for the clone, and
// the debt's operations are rewritten so nothing references the removed
// account. The debt update is the authoritative boundary; the
// per-operation catch-up is idempotent and retried locally.
func (s *DebtService) RemoveParticipant(ctx context.Context, debt *models.Debt, userID string) (*models.Debt, error) {
	if !debt.HasParticipant(userID) {
		return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}

	departing, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	virtual, err := CloneAsVirtual(departing.Name, departing.Picture)
	if err != nil {
		return nil, err
	}
	if err := s.userStore.Create(ctx, virtual); err != nil {
		return nil, err
	}

	updated, err := s.debtStore.ReplaceParticipant(ctx, debt.ID, userID, virtual.ID)
	if err != nil {
		return nil, err
	}

	ops, err := s.opStore.ListByDebt(ctx, debt.ID)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if op.ReceiverID == userID {
			s.retryCompensation(ctx, op.ID, "reassign receiver", func() error {
				return s.opStore.ReassignReceiver(ctx, op.ID, userID, virtual.ID)
			})
		}
		if op.StatusAcceptor != nil && *op.StatusAcceptor == userID {
			// The pending proposal was waiting on a participant that no
			// longer exists; drop it rather than auto-accept.
			s.retryCompensation(ctx, op.ID, "clear acceptor", func() error {
				return s.opStore.ClearAcceptor(ctx, op.ID, userID)
			})
		}
	}

	return s.attachOperations(ctx, updated)
}

// retryCompensation retries an idempotent operation fix-up a bounded
// number of times. A final failure is logged, not surfaced: re-running
// removal for the same user completes the catch-up.
func (s *DebtService) retryCompensation(ctx context.Context, opID, action string, fn func() error) {
	var err error
	for attempt := 0; attempt < compensationAttempts; attempt++ {
		if err = fn(); err == nil {
			return
		}
	}
	log.Error().
		Err(err).
		Str("operation_id", opID).
		Str("action", action).
		Msg("Removal compensation update failed")
}

func (s *DebtService) attachOperations(ctx context.Context, debt *models.Debt) (*models.Debt, error) {
	ops, err := s.opStore.ListByDebt(ctx, debt.ID)
	if err != nil {
		return nil, err
	}
	debt.Operations = ops
	return debt, nil
}
