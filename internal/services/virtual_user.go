package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

const (
	maxNameLength    = 64
	maxPictureLength = 512
)

// CloneAsVirtual builds a permanent inert placeholder carrying a copy
// of a departing user's public profile. The clone has no credentials
// and no push tokens; nothing can ever act on its behalf. This is the
// only path that creates a virtual user.
func CloneAsVirtual(name, picture string) (*models.User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validatePicture(picture); err != nil {
		return nil, err
	}

	return &models.User{
		ID:        uuid.New().String(),
		Name:      name,
		Picture:   picture,
		Kind:      models.UserKindVirtual,
		CreatedAt: time.Now(),
	}, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", apperrors.ErrValidation)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters: %w", maxNameLength, apperrors.ErrValidation)
	}
	return nil
}

func validatePicture(picture string) error {
	if picture == "" {
		return fmt.Errorf("picture is required: %w", apperrors.ErrValidation)
	}
	if len(picture) > maxPictureLength {
		return fmt.Errorf("picture exceeds %d characters: %w", maxPictureLength, apperrors.ErrValidation)
	}
	return nil
}
