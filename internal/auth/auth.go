package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"clouddrive/internal/domain"
)

type contextKey string

const principalKey contextKey = "auth.principal"

// Principal - аутентифицированный пользователь текущего запроса.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
	// RefreshToken заполняется только на маршрутах с refresh-токеном.
	RefreshToken string
}

func (p Principal) IsAdmin() bool { return p.Role == domain.RoleAdmin }

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// BearerToken достает токен из заголовка Authorization.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("no authorization header")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("malformed authorization header")
	}
	return strings.TrimSpace(token), nil
}
