package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/middleware"
	"callinsight-backend/internal/models"
	"callinsight-backend/internal/services"
)

const (
	defaultUserLimit = 50
	maxUserLimit     = 200
)

type userDirectory interface {
	List(ctx context.Context, f models.UserFilter) ([]*models.UserProfile, int, error)
	Get(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	Create(ctx context.Context, req models.CreateUserRequest) (*models.UserProfile, error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.UserProfile, error)
	Delete(ctx context.Context, caller *models.Caller, id uuid.UUID) error
	ResetPassword(ctx context.Context, id uuid.UUID, newPassword string) error
}

// UserHandler serves the admin user directory.
type UserHandler struct {
	users userDirectory
	log   *logger.Logger
}

func NewUserHandler(users userDirectory, log *logger.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, offset := parsePage(r, defaultUserLimit, maxUserLimit)
	f := models.UserFilter{
		Role:   strings.TrimSpace(q.Get("role")),
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			handleServiceError(w, r, h.log, &services.ValidationError{Fields: map[string]string{"is_active": "is_active must be true or false"}})
			return
		}
		f.IsActive = &active
	}

	users, total, err := h.users.List(r.Context(), f)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResp(users, page, limit, total))
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	p, err := h.users.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResp(p))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	p, err := h.users.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(p))
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	var req models.UpdateUserRequest
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	p, err := h.users.Update(r.Context(), id, req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, okResp(p))
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if err := h.users.Delete(r.Context(), middleware.CallerFrom(r.Context()), id); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{OK: true, Message: "User deleted"})
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	var req models.ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if err := h.users.ResetPassword(r.Context(), id, req.NewPassword); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{OK: true, Message: "Password updated"})
}
