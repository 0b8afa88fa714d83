package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
)

// contextKey is a type for context keys
type contextKey string

// Context keys
const (
	SubjectIDKey   contextKey = "subjectID"
	SubjectRoleKey contextKey = "subjectRole"
)

// TokenVerifier resolves a bearer token to its subject
type TokenVerifier interface {
	Verify(token string) (service.Subject, error)
}

// BearerToken extracts the token from an Authorization header
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// Auth middleware for authenticating requests
func Auth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Unauthorized(w, "authorization header required")
				return
			}

			tokenString, ok := BearerToken(authHeader)
			if !ok {
				api.Unauthorized(w, "invalid authorization header format")
				return
			}

			sub, err := tokens.Verify(tokenString)
			if err != nil {
				if errors.Is(err, service.ErrTokenExpired) {
					api.Unauthorized(w, "token expired")
					return
				}
				api.Unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), sub)))
		})
	}
}

// RequireRole middleware for checking subject roles
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRole(r.Context())
			if !ok {
				api.Unauthorized(w, "unauthorized")
				return
			}

			allowed := false
			for _, allowedRole := range roles {
				if role == allowedRole {
					allowed = true
					break
				}
			}

			if !allowed {
				api.Forbidden(w, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithSubject stores the authenticated subject on ctx
func WithSubject(ctx context.Context, sub service.Subject) context.Context {
	ctx = context.WithValue(ctx, SubjectIDKey, sub.ID)
	return context.WithValue(ctx, SubjectRoleKey, sub.Role)
}

// Helper functions for extracting values from context
func GetSubjectID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SubjectIDKey).(string)
	return id, ok && id != ""
}

func GetRole(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(SubjectRoleKey).(models.Role)
	return role, ok && role != ""
}

// GetActor returns the authenticated caller
func GetActor(ctx context.Context) (service.Actor, bool) {
	id, ok := GetSubjectID(ctx)
	if !ok {
		return service.Actor{}, false
	}
	role, ok := GetRole(ctx)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{ID: id, Role: role}, true
}
