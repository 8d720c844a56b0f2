package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, picture, kind, push_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	tokens := user.PushTokens
	if tokens == nil {
		tokens = []string{}
	}
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Picture, user.Kind, tokens, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, name, picture, kind, push_tokens, created_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Picture, &user.Kind, &user.PushTokens, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// SearchByName retrieves real users whose name contains the given
// fragment, case-insensitively. Virtual users never show up here.
func (r *UserRepository) SearchByName(ctx context.Context, name string, limit int) ([]*models.User, error) {
	query := `
		SELECT id, name, picture, kind, push_tokens, created_at
		FROM users
		WHERE name ILIKE '%' || $1 || '%' AND kind = $2
		ORDER BY name
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, name, models.UserKindReal, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID, &user.Name, &user.Picture, &user.Kind, &user.PushTokens, &user.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// UpdateProfile updates name and picture and returns the updated user.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, name, picture string) (*models.User, error) {
	query := `
		UPDATE users
		SET name = $2, picture = $3
		WHERE id = $1
		RETURNING id, name, picture, kind, push_tokens, created_at
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id, name, picture).Scan(
		&user.ID, &user.Name, &user.Picture, &user.Kind, &user.PushTokens, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// AddPushToken registers a push token for a user with set semantics:
// adding an already-registered token is a no-op.
func (r *UserRepository) AddPushToken(ctx context.Context, userID, token string) error {
	query := `
		UPDATE users
		SET push_tokens = array_append(push_tokens, $2)
		WHERE id = $1 AND NOT ($2 = ANY(push_tokens))
	`
	_, err := r.db.Exec(ctx, query, userID, token)
	if err != nil {
		return fmt.Errorf("failed to add push token: %w", err)
	}
	return nil
}

// Delete removes a user row. Callers must have compensated every debt
// the user is party to first.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}
	return nil
}
