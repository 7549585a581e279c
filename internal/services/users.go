package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callinsight-backend/internal/identity"
	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/models"
)

type identityAdmin interface {
	CreateUser(ctx context.Context, p identity.CreateUserParams) (*identity.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, p identity.UpdateUserParams) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type profileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	List(ctx context.Context, f models.UserFilter) ([]*models.UserProfile, int, error)
	Upsert(ctx context.Context, p *models.UserProfile) error
	Update(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.UserProfile, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type profileInvalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// UserService manages accounts across the identity provider and the profile table.
type UserService struct {
	idp      identityAdmin
	profiles profileStore
	cache    profileInvalidator
	log      *logger.Logger
}

func NewUserService(idp identityAdmin, profiles profileStore, cache profileInvalidator, log *logger.Logger) *UserService {
	if log == nil {
		log = logger.Discard()
	}
	return &UserService{idp: idp, profiles: profiles, cache: cache, log: log}
}

func identityError(err error) error {
	if errors.Is(err, identity.ErrNotConfigured) {
		return &UpstreamError{Message: "Identity provider is not configured", Err: err}
	}
	var idErr *identity.Error
	if errors.As(err, &idErr) {
		switch idErr.Status {
		case http.StatusNotFound:
			return &NotFoundError{Message: "User not found"}
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return &ConflictError{Message: idErr.Message}
		case http.StatusBadRequest:
			return &ValidationError{Fields: map[string]string{"request": idErr.Message}}
		}
	}
	return &UpstreamError{Message: "Identity provider request failed", Err: err}
}

func userNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "User not found"}
	}
	return err
}

func (s *UserService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.WithError(err).WithField("user_id", id).Warn("failed to invalidate cached profile")
	}
}

func (s *UserService) List(ctx context.Context, f models.UserFilter) ([]*models.UserProfile, int, error) {
	if f.Role != "" && !models.ValidRole(f.Role) {
		return nil, 0, fieldError("role", "role must be admin or salesperson")
	}
	profiles, total, err := s.profiles.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if profiles == nil {
		profiles = []*models.UserProfile{}
	}
	return profiles, total, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, userNotFound(err)
	}
	return p, nil
}

// Create provisions a confirmed provider account and its profile. If the
// profile write fails the provider account is removed again.
func (s *UserService) Create(ctx context.Context, req models.CreateUserRequest) (*models.UserProfile, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Role == "" {
		req.Role = models.RoleSalesperson
	}

	fields := make(map[string]string)
	if req.Email == "" {
		fields["email"] = "Email is required"
	} else if !emailRegex.MatchString(req.Email) {
		fields["email"] = "Invalid email format"
	}
	if err := validatePassword(req.Password); err != nil {
		fields["password"] = err.Error()
	}
	if !models.ValidRole(req.Role) {
		fields["role"] = "role must be admin or salesperson"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	name := req.Email
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name = strings.TrimSpace(*req.Name)
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	u, err := s.idp.CreateUser(ctx, identity.CreateUserParams{Email: req.Email, Password: req.Password, Name: name})
	if err != nil {
		return nil, identityError(err)
	}

	p := &models.UserProfile{
		ID:       u.ID,
		Email:    req.Email,
		Name:     &name,
		Role:     req.Role,
		IsActive: active,
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		if delErr := s.idp.DeleteUser(context.WithoutCancel(ctx), u.ID); delErr != nil {
			s.log.WithError(delErr).WithField("user_id", u.ID).Error("failed to roll back provider account")
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.invalidate(ctx, p.ID)
	return p, nil
}

// Update applies a partial edit. An email change goes to the provider first
// so the two never disagree after a failure.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.UserProfile, error) {
	fields := make(map[string]string)
	if req.Role != nil && !models.ValidRole(*req.Role) {
		fields["role"] = "role must be admin or salesperson"
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		req.Email = &email
		if !emailRegex.MatchString(email) {
			fields["email"] = "Invalid email format"
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	current, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, userNotFound(err)
	}

	if req.Email != nil && *req.Email != current.Email {
		if err := s.idp.UpdateUser(ctx, id, identity.UpdateUserParams{Email: req.Email}); err != nil {
			return nil, identityError(err)
		}
	}

	p, err := s.profiles.Update(ctx, id, req)
	if err != nil {
		return nil, userNotFound(err)
	}
	s.invalidate(ctx, id)
	return p, nil
}

func (s *UserService) Delete(ctx context.Context, caller *models.Caller, id uuid.UUID) error {
	if caller != nil && caller.ID == id {
		return &ForbiddenError{Message: "You cannot delete your own account"}
	}
	if _, err := s.profiles.GetByID(ctx, id); err != nil {
		return userNotFound(err)
	}

	if err := s.idp.DeleteUser(ctx, id); err != nil {
		var idErr *identity.Error
		if !errors.As(err, &idErr) || idErr.Status != http.StatusNotFound {
			return identityError(err)
		}
	}
	if err := s.profiles.Delete(ctx, id); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *UserService) ResetPassword(ctx context.Context, id uuid.UUID, newPassword string) error {
	if newPassword == "" {
		return fieldError("new_password", "New password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return fieldError("new_password", err.Error())
	}
	if _, err := s.profiles.GetByID(ctx, id); err != nil {
		return userNotFound(err)
	}
	if err := s.idp.UpdateUser(ctx, id, identity.UpdateUserParams{Password: &newPassword}); err != nil {
		return identityError(err)
	}
	return nil
}
