package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/auth"
	"github.com/avdeeva/fieldline/internal/common"
	"github.com/avdeeva/fieldline/internal/config"
	"github.com/avdeeva/fieldline/internal/dispatch"
	"github.com/avdeeva/fieldline/internal/lifecycle"
	"github.com/avdeeva/fieldline/internal/models"
	"github.com/avdeeva/fieldline/internal/pubsub"
	"github.com/avdeeva/fieldline/internal/redis"
	"github.com/avdeeva/fieldline/internal/relay"
	"github.com/avdeeva/fieldline/internal/repository"
	"github.com/avdeeva/fieldline/internal/storage"
	"github.com/avdeeva/fieldline/internal/store"
)

type Handlers struct {
	Dispatch  *dispatch.Engine
	Lifecycle *lifecycle.Controller
	Relay     *relay.Relay
	Store     store.Store
	Repo      *repository.Repository
	Storage   storage.Storage
	Redis     *redis.Service
	Broker    pubsub.Broker
	Config    config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Group(func(r chi.Router) {
		// Credential endpoints get a tighter per-IP limit than the rest
		// of the API.
		r.Use(httprate.LimitByIP(h.Config.AuthRateLimit, 1*time.Minute))

		r.Post("/v1/auth/register", h.register)
		r.Post("/v1/auth/login", h.login)
		r.Post("/v1/auth/refresh", h.refresh)
	})

	// for static file serving for local storage
	if h.Config.StorageMode == "local" || h.Config.StorageMode == "filesystem" {
		r.Get("/files/*", h.serveFiles)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTMiddleware(h.Config.JWTSecret, h.Config.JWTIssuer))

		r.Post("/v1/auth/logout", h.logout)

		r.With(auth.RequirePerm(auth.PermJobBook)).Post("/v1/jobs", h.createJob)
		r.With(auth.RequirePerm(auth.PermJobRead)).Get("/v1/jobs", h.listJobs)
		r.With(auth.RequirePerm(auth.PermJobRead)).Get("/v1/jobs/{id}", h.getJob)
		r.With(auth.RequirePerm(auth.PermJobTransition)).Post("/v1/jobs/{id}/transition", h.transition)
		r.With(auth.RequirePerm(auth.PermJobLocation)).Post("/v1/jobs/{id}/location", h.postLocation)
		r.With(auth.RequirePerm(auth.PermJobRead)).Get("/v1/jobs/{id}/location", h.getLastLocation)
		r.With(auth.RequirePerm(auth.PermJobMessage)).Post("/v1/jobs/{id}/messages", h.postMessage)
		r.With(auth.RequirePerm(auth.PermJobMessage)).Get("/v1/jobs/{id}/messages", h.listMessages)
		r.With(auth.RequirePerm(auth.PermJobRate)).Post("/v1/jobs/{id}/rating", h.attachRating)
		r.With(auth.RequirePerm(auth.PermJobAttach)).Post("/v1/jobs/{id}/attachments", h.uploadAttachment)
		r.With(auth.RequirePerm(auth.PermJobRead)).Get("/v1/jobs/{id}/attachments", h.listAttachments)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case common.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case common.IsInvalidTransition(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case common.IsForbidden(err):
		http.Error(w, "forbidden", http.StatusForbidden)
	case common.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidCredentials):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case common.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "username, email, and password are required", http.StatusBadRequest)
		return
	}

	if !strings.Contains(req.Email, "@") {
		http.Error(w, "invalid email format", http.StatusBadRequest)
		return
	}

	if len(req.Password) < 6 {
		http.Error(w, "password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleCustomer
	}
	// Admin accounts are provisioned out of band, never self-registered.
	if !models.ValidRole(role) || role == models.RoleAdmin {
		http.Error(w, "role must be customer or technician", http.StatusBadRequest)
		return
	}

	passwordHash, err := h.Repo.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         role,
	}

	if err := h.Repo.CreateUser(r.Context(), user); err != nil {
		if strings.Contains(err.Error(), "unique constraint") || strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "username or email already exists", http.StatusConflict)
			return
		}
		slog.Error("failed to create user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if role == models.RoleTechnician {
		if err := h.Broker.Publish(r.Context(), pubsub.AdminTopic, pubsub.EventNewTechnician, user); err != nil {
			slog.Warn("failed to publish technician registration", "user_id", user.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "user registered successfully",
		"user_id": user.ID,
	})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.Repo.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Warn("login attempt with invalid email", "email", req.Email)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if !h.Repo.CheckPassword(req.Password, user.PasswordHash) {
		slog.Warn("login attempt with invalid password", "email", req.Email)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tokens, err := auth.NewTokenPair(
		h.Config.JWTSecret,
		h.Config.JWTIssuer,
		user.ID,
		string(user.Role),
		h.Config.JWTTTLAccess,
		h.Config.JWTTTLRefresh,
	)
	if err != nil {
		slog.Error("failed to create token pair", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	tokenHash := h.Repo.HashRefreshToken(tokens.RefreshToken)

	if err := h.Redis.StoreRefreshToken(r.Context(), user.ID.String(), tokenHash, h.Config.JWTTTLRefresh); err != nil {
		slog.Error("failed to store refresh token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.Repo.CreateRefreshToken(r.Context(), user.ID, tokenHash, time.Now().Add(h.Config.JWTTTLRefresh)); err != nil {
		slog.Error("failed to create refresh token record", "error", err)
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.RefreshToken == "" {
		http.Error(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	tokenHash := h.Repo.HashRefreshToken(req.RefreshToken)

	userID, err := h.Redis.GetRefreshTokenUserID(r.Context(), tokenHash)
	if err != nil {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	userUUID, err := uuid.Parse(userID)
	if err != nil {
		slog.Error("invalid user ID from refresh token", "user_id", userID)
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	user, err := h.Repo.GetUserByID(r.Context(), userUUID)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	tokens, err := auth.NewTokenPair(
		h.Config.JWTSecret,
		h.Config.JWTIssuer,
		user.ID,
		string(user.Role),
		h.Config.JWTTTLAccess,
		h.Config.JWTTTLRefresh,
	)
	if err != nil {
		slog.Error("failed to create token pair", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.Redis.RevokeRefreshToken(r.Context(), tokenHash); err != nil {
		slog.Error("failed to revoke old refresh token", "error", err)
	}

	newTokenHash := h.Repo.HashRefreshToken(tokens.RefreshToken)
	if err := h.Redis.StoreRefreshToken(r.Context(), user.ID.String(), newTokenHash, h.Config.JWTTTLRefresh); err != nil {
		slog.Error("failed to store new refresh token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.Repo.RotateRefreshToken(r.Context(), user.ID, tokenHash, newTokenHash, time.Now().Add(h.Config.JWTTTLRefresh)); err != nil {
		slog.Error("failed to rotate refresh token record", "error", err)
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.RefreshToken != "" {
		tokenHash := h.Repo.HashRefreshToken(req.RefreshToken)
		if err := h.Redis.RevokeRefreshToken(r.Context(), tokenHash); err != nil {
			slog.Error("failed to revoke refresh token", "error", err)
		}
		if err := h.Repo.RevokeRefreshToken(r.Context(), tokenHash); err != nil {
			slog.Error("failed to revoke refresh token in db", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

func (h *Handlers) serveFiles(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, "/files/")
	if filePath == "" {
		http.Error(w, "file path required", http.StatusBadRequest)
		return
	}

	if strings.Contains(filePath, "..") {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.Config.LocalStorageDir, filePath)
	http.ServeFile(w, r, fullPath)
}
