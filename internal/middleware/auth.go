package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callinsight-backend/internal/models"
)

type contextKey string

const callerKey contextKey = "caller"

// AuthError is a rejected credential; Status is 401 or 403.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func unauthorized(code, message string) *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Code: code, Message: message}
}

type callerProfiles interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
}

// Authenticator verifies the identity provider's HS256 access tokens and
// resolves the caller's role from the profile table.
type Authenticator struct {
	secret   []byte
	profiles callerProfiles
}

func NewAuthenticator(secret string, profiles callerProfiles) *Authenticator {
	return &Authenticator{secret: []byte(secret), profiles: profiles}
}

// SignToken issues a token in the provider's claim layout.
func SignToken(secret string, userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"role":  "authenticated",
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ResolveCaller turns the request's bearer token into a Caller. It is the
// only place request credentials are read.
func (a *Authenticator) ResolveCaller(r *http.Request) (*models.Caller, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, unauthorized("UNAUTHORIZED", "Missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, unauthorized("UNAUTHORIZED", "Invalid authorization format")
	}

	token, err := jwt.Parse(strings.TrimSpace(parts[1]), func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, unauthorized("TOKEN_EXPIRED", "Token has expired")
		}
		return nil, unauthorized("UNAUTHORIZED", "Invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, unauthorized("UNAUTHORIZED", "Invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, unauthorized("UNAUTHORIZED", "Invalid user ID in token")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, unauthorized("UNAUTHORIZED", "Invalid user ID format")
	}
	email, _ := claims["email"].(string)

	caller := &models.Caller{ID: userID, Email: email, Name: email, Role: models.RoleSalesperson}

	profile, err := a.profiles.GetByID(r.Context(), userID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// No profile row yet: treat as a salesperson.
		return caller, nil
	case err != nil:
		return nil, err
	}

	if !profile.IsActive {
		return nil, unauthorized("ACCOUNT_DISABLED", "Account is disabled")
	}
	caller.Role = profile.Role
	if profile.Email != "" {
		caller.Email = profile.Email
	}
	caller.Name = profile.DisplayName()
	return caller, nil
}

// Middleware resolves the caller once and stores it on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.ResolveCaller(r)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				writeError(w, r, authErr.Status, authErr.Code, authErr.Message)
				return
			}
			writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve caller")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r.Context())
		if caller == nil {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		if !caller.IsAdmin() {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithCaller(ctx context.Context, caller *models.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom returns nil outside an authenticated route.
func CallerFrom(ctx context.Context) *models.Caller {
	caller, _ := ctx.Value(callerKey).(*models.Caller)
	return caller
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.Response{
		OK:        false,
		Error:     message,
		Code:      code,
		RequestID: r.Header.Get(RequestIDHeader),
	})
}
