package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/AlexDid/simple-debts-api/internal/middleware"
	"github.com/AlexDid/simple-debts-api/internal/models"
	"github.com/AlexDid/simple-debts-api/internal/services"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService   *services.UserService
	avatarService *services.AvatarService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, avatarService *services.AvatarService) *UserHandler {
	return &UserHandler{
		userService:   userService,
		avatarService: avatarService,
	}
}

// CreateUserRequest represents the request body for registration
type CreateUserRequest struct {
	Name string `json:"name"`
}

// CreateUserResponse carries the created user and its bearer token
type CreateUserResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := h.userService.Register(ctx, req.Name)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Msg("User created")

	respondJSON(w, http.StatusCreated, CreateUserResponse{User: user, Token: token})
}

// SearchUsers handles GET /api/v1/users?name=
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, "name is required", http.StatusBadRequest)
		return
	}

	users, err := h.userService.SearchByName(ctx, userID, name)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to search users")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, users)
}

// UpdateUserRequest represents the request body for a profile update
type UpdateUserRequest struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// UpdateUser handles PATCH /api/v1/users
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userService.UpdateProfile(ctx, userID, req.Name, req.Picture)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update user")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/v1/users
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.userService.DeleteAccount(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to delete account")
		respondServiceError(w, err)
		return
	}

	log.Info().Str("user_id", userID).Msg("Account deleted")
	w.WriteHeader(http.StatusNoContent)
}

// AddPushTokenRequest represents the request body for token registration
type AddPushTokenRequest struct {
	Token string `json:"token"`
}

// AddPushToken handles POST /api/v1/users/push_tokens
func (h *UserHandler) AddPushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req AddPushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userService.AddPushToken(ctx, userID, req.Token); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to add push token")
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AvatarUploadRequest represents the request body for an avatar upload
type AvatarUploadRequest struct {
	ContentType string `json:"content_type"`
}

// GetAvatarUploadURL handles POST /api/v1/users/avatar/upload
func (h *UserHandler) GetAvatarUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req AvatarUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ContentType == "" {
		req.ContentType = "image/jpeg"
	}

	resp, err := h.avatarService.GetUploadURL(ctx, userID, req.ContentType)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to generate upload URL")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
