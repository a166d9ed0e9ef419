package auth

import (
	"context"
	"errors"
	"net/http"

	"covoiturage/internal/authz"
	"covoiturage/internal/users"
	"covoiturage/pkg/apperr"
	"covoiturage/pkg/httpx"
	"covoiturage/pkg/jwt"
)

// UserLoader fetches the subject of a token. users.Service satisfies it.
type UserLoader interface {
	Get(ctx context.Context, id string) (*users.User, error)
}

// Middleware resolves the bearer token into an authz.Identity.
type Middleware struct {
	tokens *jwt.Manager
	users  UserLoader
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(tokens *jwt.Manager, users UserLoader) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// RequireAuth rejects requests without a live, unrevoked token.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return m.guard(next, m.tokens.Validate)
}

// RequireRefreshable also accepts an expired token whose refresh window is
// still open. It guards POST /auth/refresh only.
func (m *Middleware) RequireRefreshable(next http.Handler) http.Handler {
	return m.guard(next, m.tokens.ValidateRefreshable)
}

type validateFunc func(ctx context.Context, raw string) (*jwt.Claims, error)

func (m *Middleware) guard(next http.Handler, validate validateFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := jwt.FromHeader(r)
		if !ok {
			httpx.Error(w, r, apperr.Unauthenticated(""))
			return
		}

		claims, err := validate(r.Context(), raw)
		if err != nil {
			httpx.Error(w, r, tokenErr(err))
			return
		}

		// The stored role wins over the one signed into the token.
		u, err := m.users.Get(r.Context(), claims.UserID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				err = apperr.Unauthenticated("")
			}
			httpx.Error(w, r, err)
			return
		}

		id := authz.Identity{UserID: u.ID, Role: u.Role, Token: claims}
		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), id)))
	})
}

// tokenErr reports any token rejection as a plain 401 and passes other
// failures through.
func tokenErr(err error) error {
	for _, target := range []error{jwt.ErrInvalidToken, jwt.ErrExpiredToken, jwt.ErrRevokedToken, jwt.ErrRefreshExpired} {
		if errors.Is(err, target) {
			return apperr.Unauthenticated("")
		}
	}
	return err
}
