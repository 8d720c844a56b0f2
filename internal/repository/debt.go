package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/consent"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

const uniqueViolation = "23505"

const debtColumns = `id, user_a_id, user_b_id, currency, type, status, status_acceptor, created_at`

// DebtRepository handles database operations for debts. Every consent
// transition is a single conditional statement: the expected pre-state
// is part of the WHERE clause, so a stale precondition simply matches
// zero rows and is reported as not found.
type DebtRepository struct {
	db *pgxpool.Pool
}

// NewDebtRepository creates a new debt repository
func NewDebtRepository(db *pgxpool.Pool) *DebtRepository {
	return &DebtRepository{db: db}
}

func scanDebt(row pgx.Row) (*models.Debt, error) {
	var debt models.Debt
	err := row.Scan(
		&debt.ID, &debt.UserAID, &debt.UserBID, &debt.Currency,
		&debt.Type, &debt.Status, &debt.StatusAcceptor, &debt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &debt, nil
}

// Create inserts a new debt. A concurrent duplicate for the same
// unordered pair and currency loses against the unique index and is
// reported as a conflict.
func (r *DebtRepository) Create(ctx context.Context, debt *models.Debt) error {
	query := `
		INSERT INTO debts (id, user_a_id, user_b_id, currency, type, status, status_acceptor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		debt.ID, debt.UserAID, debt.UserBID, debt.Currency,
		debt.Type, debt.Status, debt.StatusAcceptor, debt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("debt for this pair and currency: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create debt: %w", err)
	}
	return nil
}

// GetByID retrieves a debt by ID
func (r *DebtRepository) GetByID(ctx context.Context, id string) (*models.Debt, error) {
	debt, err := scanDebt(r.db.QueryRow(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get debt: %w", err)
	}
	return debt, nil
}

// GetByPair retrieves the debt for an unordered participant pair in a
// currency.
func (r *DebtRepository) GetByPair(ctx context.Context, userA, userB, currency string) (*models.Debt, error) {
	query := `
		SELECT ` + debtColumns + `
		FROM debts
		WHERE ((user_a_id = $1 AND user_b_id = $2) OR (user_a_id = $2 AND user_b_id = $1))
		  AND currency = $3
	`
	debt, err := scanDebt(r.db.QueryRow(ctx, query, userA, userB, currency))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get debt by pair: %w", err)
	}
	return debt, nil
}

// ListByUser retrieves all debts a user participates in.
func (r *DebtRepository) ListByUser(ctx context.Context, userID string) ([]*models.Debt, error) {
	query := `
		SELECT ` + debtColumns + `
		FROM debts
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}
	defer rows.Close()

	var debts []*models.Debt
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, debt)
	}
	return debts, rows.Err()
}

// AcceptCreation settles a pending debt creation. The update only
// matches when the debt is still awaiting creation and acceptorID is
// the designated acceptor; anything else is not found.
func (r *DebtRepository) AcceptCreation(ctx context.Context, debtID, acceptorID string) (*models.Debt, error) {
	query := `
		UPDATE debts
		SET status = $3, status_acceptor = NULL
		WHERE id = $1 AND status = $4 AND status_acceptor = $2
		RETURNING ` + debtColumns
	debt, err := scanDebt(r.db.QueryRow(ctx, query,
		debtID, acceptorID, consent.StatusUnchanged, consent.StatusCreationAwaiting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to accept debt creation: %w", err)
	}
	return debt, nil
}

// DeclineCreation removes a still-pending debt entirely. Either
// participant may decline; a debt that is no longer awaiting creation
// is not found.
func (r *DebtRepository) DeclineCreation(ctx context.Context, debtID, userID string) error {
	query := `
		DELETE FROM debts
		WHERE id = $1 AND status = $3 AND (user_a_id = $2 OR user_b_id = $2)
	`
	result, err := r.db.Exec(ctx, query, debtID, userID, consent.StatusCreationAwaiting)
	if err != nil {
		return fmt.Errorf("failed to decline debt creation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}
	return nil
}

// ReplaceParticipant swaps removedID for virtualID in a single
// conditional update: the debt becomes a terminal single-user account
// and the remaining participant is recorded as the status acceptor. The
// whole swap is one statement, so there is no read-modify-write window
// on the participant pair.
func (r *DebtRepository) ReplaceParticipant(ctx context.Context, debtID, removedID, virtualID string) (*models.Debt, error) {
	query := `
		UPDATE debts
		SET type = $4,
		    status = $5,
		    status_acceptor = CASE WHEN user_a_id = $2 THEN user_b_id ELSE user_a_id END,
		    user_a_id = CASE WHEN user_a_id = $2 THEN $3 ELSE user_a_id END,
		    user_b_id = CASE WHEN user_b_id = $2 THEN $3 ELSE user_b_id END
		WHERE id = $1 AND (user_a_id = $2 OR user_b_id = $2)
		RETURNING ` + debtColumns
	debt, err := scanDebt(r.db.QueryRow(ctx, query,
		debtID, removedID, virtualID,
		models.AccountTypeSingleUser, consent.StatusUserDeleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to replace participant: %w", err)
	}
	return debt, nil
}
