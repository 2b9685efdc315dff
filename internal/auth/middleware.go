package auth

import (
	"context"
	"errors"
	"net/http"

	"clouddrive/internal/domain"
	"clouddrive/internal/logs"
	"clouddrive/internal/repository"
)

// UserLookup загружает пользователя по id из токена.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// ErrorWriter пишет ответ с ошибкой; его предоставляет слой handler.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type Middleware struct {
	tokens   *TokenManager
	users    UserLookup
	writeErr ErrorWriter
}

func NewMiddleware(tokens *TokenManager, users UserLookup, writeErr ErrorWriter) *Middleware {
	return &Middleware{tokens: tokens, users: users, writeErr: writeErr}
}

// RequireAccess пропускает запрос только с валидным access-токеном.
// Роль берется из базы, а не из токена.
func (m *Middleware) RequireAccess(next http.Handler) http.Handler {
	return m.require(next, m.tokens.ParseAccess, false)
}

// RequireRefresh пропускает запрос с валидным refresh-токеном и кладет его
// в Principal.RefreshToken.
func (m *Middleware) RequireRefresh(next http.Handler) http.Handler {
	return m.require(next, m.tokens.ParseRefresh, true)
}

func (m *Middleware) require(next http.Handler, parse func(string) (*Claims, error), keepRaw bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r)
		if err != nil {
			m.writeErr(w, r, domain.Unauthorized("Unauthorized"))
			return
		}

		claims, err := parse(raw)
		if err != nil {
			logs.Logger.WithError(err).Debug("rejected bearer token")
			m.writeErr(w, r, domain.Unauthorized("Unauthorized"))
			return
		}

		user, err := m.users.GetByID(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				m.writeErr(w, r, domain.Unauthorized("Unauthorized"))
				return
			}
			m.writeErr(w, r, domain.Internal("failed to load user", err))
			return
		}

		p := Principal{UserID: user.ID, Email: user.Email, Role: user.Role}
		if keepRaw {
			p.RefreshToken = raw
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole пропускает пользователей с одной из ролей; ADMIN проходит всегда.
func (m *Middleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				m.writeErr(w, r, domain.Unauthorized("Unauthorized"))
				return
			}
			if p.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.writeErr(w, r, domain.Forbidden("Forbidden resource"))
		})
	}
}
