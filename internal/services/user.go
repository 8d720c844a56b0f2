package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

const (
	jwtExpDays      = 365
	searchLimit     = 15
	defaultPicture  = "avatars/default.png"
	maxPushTokenLen = 256
)

// UserService handles user-related business logic
type UserService struct {
	userStore   UserStore
	debtStore   DebtStore
	debtService *DebtService
	jwtSecret   string
}

// NewUserService creates a new user service
func NewUserService(userStore UserStore, debtStore DebtStore, debtService *DebtService, jwtSecret string) *UserService {
	return &UserService{
		userStore:   userStore,
		debtStore:   debtStore,
		debtService: debtService,
		jwtSecret:   jwtSecret,
	}
}

// Register creates a new real user and returns it with a signed token.
func (s *UserService) Register(ctx context.Context, name string) (*models.User, string, error) {
	if err := validateName(name); err != nil {
		return nil, "", err
	}

	user := &models.User{
		ID:        uuid.New().String(),
		Name:      name,
		Picture:   defaultPicture,
		Kind:      models.UserKindReal,
		CreatedAt: time.Now(),
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.userStore.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	return user, token, nil
}

// GenerateJWT signs a token carrying userID in the subject claim.
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(now.AddDate(0, 0, jwtExpDays)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}

	return claims.Subject, nil
}

// GetByID returns a user's public profile.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	return s.userStore.GetByID(ctx, userID)
}

// SearchByName returns real users matching a name fragment, excluding
// the caller.
func (s *UserService) SearchByName(ctx context.Context, callerID, name string) ([]*models.User, error) {
	users, err := s.userStore.SearchByName(ctx, name, searchLimit)
	if err != nil {
		return nil, err
	}

	result := users[:0]
	for _, user := range users {
		if user.ID != callerID {
			result = append(result, user)
		}
	}
	return result, nil
}

// UpdateProfile updates the caller's name and picture reference.
func (s *UserService) UpdateProfile(ctx context.Context, userID, name, picture string) (*models.User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validatePicture(picture); err != nil {
		return nil, err
	}
	return s.userStore.UpdateProfile(ctx, userID, name, picture)
}

// AddPushToken registers a notification token for the caller. Adding
// the same token twice is a no-op.
func (s *UserService) AddPushToken(ctx context.Context, userID, token string) error {
	if token == "" || len(token) > maxPushTokenLen {
		return fmt.Errorf("invalid push token: %w", apperrors.ErrValidation)
	}
	return s.userStore.AddPushToken(ctx, userID, token)
}

// DeleteAccount removes a user. Every debt the user is party to is
// reconciled first: still-pending creations are declined outright, all
// others go through participant removal so the counterparty keeps a
// consistent history. Only then is the user row deleted.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	debts, err := s.debtStore.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, debt := range debts {
		if debt.Status.Pending() {
			if err := s.debtStore.DeclineCreation(ctx, debt.ID, userID); err != nil {
				return err
			}
			continue
		}
		if _, err := s.debtService.RemoveParticipant(ctx, debt, userID); err != nil {
			return err
		}
	}

	return s.userStore.Delete(ctx, userID)
}
