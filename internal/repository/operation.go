package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/consent"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

const operationColumns = `id, debt_id, amount, receiver_id, description, status, status_acceptor, creator_id, created_at`

// OperationRepository handles database operations for money operations.
// Consent transitions follow the same conditional-update discipline as
// DebtRepository.
type OperationRepository struct {
	db *pgxpool.Pool
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *pgxpool.Pool) *OperationRepository {
	return &OperationRepository{db: db}
}

func scanOperation(row pgx.Row) (*models.Operation, error) {
	var op models.Operation
	err := row.Scan(
		&op.ID, &op.DebtID, &op.Amount, &op.ReceiverID, &op.Description,
		&op.Status, &op.StatusAcceptor, &op.CreatorID, &op.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// Create inserts a new operation, but only while its debt is settled
// and carries no other pending operation. The mutual-exclusion check is
// part of the insert statement itself, so two concurrent proposals
// against the same debt cannot both pass it.
func (r *OperationRepository) Create(ctx context.Context, op *models.Operation) error {
	query := `
		INSERT INTO operations (id, debt_id, amount, receiver_id, description, status, status_acceptor, creator_id, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE EXISTS (
			SELECT 1 FROM debts WHERE id = $2 AND status IN ($10, $11)
		)
		AND NOT EXISTS (
			SELECT 1 FROM operations WHERE debt_id = $2 AND status IN ($12, $13)
		)
	`
	result, err := r.db.Exec(ctx, query,
		op.ID, op.DebtID, op.Amount, op.ReceiverID, op.Description,
		op.Status, op.StatusAcceptor, op.CreatorID, op.CreatedAt,
		consent.StatusUnchanged, consent.StatusUserDeleted,
		consent.StatusCreationAwaiting, consent.StatusDeletionAwaiting)
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("debt has a pending request: %w", apperrors.ErrConflict)
	}
	return nil
}

// GetByID retrieves an operation by ID
func (r *OperationRepository) GetByID(ctx context.Context, id string) (*models.Operation, error) {
	op, err := scanOperation(r.db.QueryRow(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// ListByDebt retrieves a debt's operations in creation order.
func (r *OperationRepository) ListByDebt(ctx context.Context, debtID string) ([]*models.Operation, error) {
	query := `
		SELECT ` + operationColumns + `
		FROM operations
		WHERE debt_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, debtID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// AcceptCreation settles a pending operation creation.
func (r *OperationRepository) AcceptCreation(ctx context.Context, opID, acceptorID string) (*models.Operation, error) {
	query := `
		UPDATE operations
		SET status = $3, status_acceptor = NULL
		WHERE id = $1 AND status = $4 AND status_acceptor = $2
		RETURNING ` + operationColumns
	op, err := scanOperation(r.db.QueryRow(ctx, query,
		opID, acceptorID, consent.StatusUnchanged, consent.StatusCreationAwaiting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to accept operation creation: %w", err)
	}
	return op, nil
}

// DeclineCreation removes a still-pending operation. Either participant
// of the owning debt may decline.
func (r *OperationRepository) DeclineCreation(ctx context.Context, opID, userID string) (*models.Operation, error) {
	query := `
		DELETE FROM operations o
		WHERE o.id = $1 AND o.status = $3
		  AND EXISTS (
			SELECT 1 FROM debts d
			WHERE d.id = o.debt_id AND (d.user_a_id = $2 OR d.user_b_id = $2)
		  )
		RETURNING ` + operationColumns
	op, err := scanOperation(r.db.QueryRow(ctx, query,
		opID, userID, consent.StatusCreationAwaiting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to decline operation creation: %w", err)
	}
	return op, nil
}

// ProposeDeletion marks a settled operation as awaiting deletion
// consent from acceptorID. The statement carries the same guard as
// Create: a debt holds at most one pending proposal, so the update
// matches nothing while any operation on the debt is still awaiting
// consent. The target row itself is settled by the status check and
// never trips the guard.
func (r *OperationRepository) ProposeDeletion(ctx context.Context, opID, acceptorID string) (*models.Operation, error) {
	query := `
		UPDATE operations
		SET status = $3, status_acceptor = $2
		WHERE id = $1 AND status = $4
		  AND NOT EXISTS (
			SELECT 1 FROM operations pending
			WHERE pending.debt_id = operations.debt_id AND pending.status IN ($3, $5)
		  )
		RETURNING ` + operationColumns
	op, err := scanOperation(r.db.QueryRow(ctx, query,
		opID, acceptorID, consent.StatusDeletionAwaiting, consent.StatusUnchanged,
		consent.StatusCreationAwaiting))
	if err == nil {
		return op, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to propose operation deletion: %w", err)
	}

	// Zero rows covers both a stale precondition on the operation itself
	// and a debt blocked by another pending proposal. Report the blocked
	// debt as a conflict, like Create does.
	var blocked bool
	checkQuery := `
		SELECT EXISTS (
			SELECT 1 FROM operations pending
			WHERE pending.debt_id = (SELECT debt_id FROM operations WHERE id = $1)
			  AND pending.id <> $1 AND pending.status IN ($2, $3)
		)`
	if cerr := r.db.QueryRow(ctx, checkQuery, opID,
		consent.StatusCreationAwaiting, consent.StatusDeletionAwaiting).Scan(&blocked); cerr != nil {
		return nil, fmt.Errorf("failed to propose operation deletion: %w", cerr)
	}
	if blocked {
		return nil, fmt.Errorf("debt has a pending request: %w", apperrors.ErrConflict)
	}
	return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
}

// AcceptDeletion removes an operation whose deletion was consented to
// by the designated acceptor.
func (r *OperationRepository) AcceptDeletion(ctx context.Context, opID, acceptorID string) (*models.Operation, error) {
	query := `
		DELETE FROM operations
		WHERE id = $1 AND status = $3 AND status_acceptor = $2
		RETURNING ` + operationColumns
	op, err := scanOperation(r.db.QueryRow(ctx, query,
		opID, acceptorID, consent.StatusDeletionAwaiting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to accept operation deletion: %w", err)
	}
	return op, nil
}

// DeclineDeletion reverts a pending deletion proposal to the settled
// state. Either participant of the owning debt may decline.
func (r *OperationRepository) DeclineDeletion(ctx context.Context, opID, userID string) (*models.Operation, error) {
	query := `
		UPDATE operations o
		SET status = $3, status_acceptor = NULL
		WHERE o.id = $1 AND o.status = $4
		  AND EXISTS (
			SELECT 1 FROM debts d
			WHERE d.id = o.debt_id AND (d.user_a_id = $2 OR d.user_b_id = $2)
		  )
		RETURNING ` + operationColumns
	op, err := scanOperation(r.db.QueryRow(ctx, query,
		opID, userID, consent.StatusUnchanged, consent.StatusDeletionAwaiting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to decline operation deletion: %w", err)
	}
	return op, nil
}

// DeleteSettled removes a settled operation without a consent round.
// Used on single-user debts only, where no counterparty exists to
// consent.
func (r *OperationRepository) DeleteSettled(ctx context.Context, opID string) error {
	query := `DELETE FROM operations WHERE id = $1 AND status = $2`
	result, err := r.db.Exec(ctx, query, opID, consent.StatusUnchanged)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	return nil
}

// ReassignReceiver rewrites the receiver of an operation from oldID to
// newID. Idempotent: once rewritten, re-running matches zero rows and
// succeeds.
func (r *OperationRepository) ReassignReceiver(ctx context.Context, opID, oldID, newID string) error {
	query := `UPDATE operations SET receiver_id = $3 WHERE id = $1 AND receiver_id = $2`
	_, err := r.db.Exec(ctx, query, opID, oldID, newID)
	if err != nil {
		return fmt.Errorf("failed to reassign receiver: %w", err)
	}
	return nil
}

// ClearAcceptor drops a pending proposal that was waiting on userID:
// the operation reverts to settled with no acceptor. Idempotent for the
// same reason as ReassignReceiver.
func (r *OperationRepository) ClearAcceptor(ctx context.Context, opID, userID string) error {
	query := `
		UPDATE operations
		SET status = $3, status_acceptor = NULL
		WHERE id = $1 AND status_acceptor = $2
	`
	_, err := r.db.Exec(ctx, query, opID, userID, consent.StatusUnchanged)
	if err != nil {
		return fmt.Errorf("failed to clear acceptor: %w", err)
	}
	return nil
}
