package middleware

import (
	"context"

	"github.com/whitechapel007/chat-app-pern/internal/identity"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal кладёт аутентифицированного пользователя в контекст.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal возвращает пользователя, установленного Auth; nil для анонимного запроса.
func GetPrincipal(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalKey).(*identity.Principal)
	return p
}

// GetUserID возвращает id пользователя из контекста или пустую строку.
func GetUserID(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.UserID()
	}
	return ""
}
