//go:generate go run go.uber.org/mock/mockgen -source=identity.go -destination=mocks/mock_authenticator.go -package=mocks

// Package identity — регистрация, вход и проверка токенов доступа (JWT HS256, bcrypt).
package identity

import (
	"context"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/model"
)

// Principal — проверенный владелец токена.
type Principal struct {
	User      model.UserPublic
	TokenID   string
	ExpiresAt time.Time
}

func (p *Principal) UserID() string { return p.User.ID }

// Authenticator проверяет токен доступа и возвращает его владельца.
// Ошибка всегда kind Authentication, кроме сбоев хранилища.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}
