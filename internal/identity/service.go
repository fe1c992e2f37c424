package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/storage"
	"github.com/whitechapel007/chat-app-pern/internal/store"
	"github.com/whitechapel007/chat-app-pern/internal/validation"
)

const (
	DefaultTokenTTL = 7 * 24 * time.Hour
	DefaultIssuer   = "chat-app"
)

type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	Issuer   string
	// BcryptCost; 0 — bcrypt.DefaultCost.
	BcryptCost int
}

type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RegisterInput struct {
	Username        string `json:"username" validate:"required,min=3,max=30,alphanum"`
	FullName        string `json:"fullName" validate:"required,max=50"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
	ProfilePic      string `json:"profilePic" validate:"omitempty,max=500"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=NewPassword"`
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service выпускает и проверяет токены. Отзыв (logout) хранится в storage.TokenStore.
type Service struct {
	users  store.Querier
	tokens storage.TokenStore
	cfg    Config
}

var _ Authenticator = (*Service)(nil)

func NewService(users store.Querier, tokens storage.TokenStore, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{users: users, tokens: tokens, cfg: cfg}
}

func (s *Service) TokenTTL() time.Duration { return s.cfg.TokenTTL }

func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, *Token, error) {
	defer logger.DeferLogDuration("identity.Register", time.Now())()
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}

	if _, err := s.users.GetUserByUsername(ctx, in.Username); err == nil {
		return nil, nil, apperr.Conflict("username already taken")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("identity.Register lookup: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("identity.Register hash: %w", err)
	}
	pic := in.ProfilePic
	if pic == "" {
		pic = "https://avatar.iran.liara.run/username?username=" + in.Username
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		FullName:     in.FullName,
		ProfilePic:   pic,
		PasswordHash: string(hash),
		LastSeenAt:   now,
		CreatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, apperr.Conflict("username already taken")
		}
		return nil, nil, fmt.Errorf("identity.Register create: %w", err)
	}
	tok, err := s.issue(u)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("user registered id=%s username=%s", u.ID, u.Username)
	return u, tok, nil
}

// Login проверяет пароль. clientKey ограничивает частоту попыток (обычно IP клиента).
func (s *Service) Login(ctx context.Context, in LoginInput, clientKey string) (*model.User, *Token, error) {
	defer logger.DeferLogDuration("identity.Login", time.Now())()
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}
	allowed, err := s.tokens.CheckLoginRateLimit(ctx, clientKey+"|"+in.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("identity.Login rate limit: %w", err)
	}
	if !allowed {
		return nil, nil, ErrTooManyAttempts
	}

	u, err := s.users.GetUserByUsername(ctx, in.Username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.Authentication("invalid username or password")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("identity.Login lookup: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, nil, apperr.Authentication("invalid username or password")
	}
	tok, err := s.issue(u)
	if err != nil {
		return nil, nil, err
	}
	return u, tok, nil
}

// ErrTooManyAttempts — превышен лимит попыток входа.
var ErrTooManyAttempts = apperr.Authentication("too many login attempts, try again later")

// Logout отзывает токен до конца его срока жизни.
func (s *Service) Logout(ctx context.Context, p *Principal) error {
	if err := s.tokens.Revoke(ctx, p.TokenID, time.Until(p.ExpiresAt)); err != nil {
		return fmt.Errorf("identity.Logout: %w", err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("identity.Me: %w", err)
	}
	return u, nil
}

// ChangePassword проверяет текущий пароль и сохраняет хеш нового.
// Токен, которым выполнен запрос, остаётся действительным.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	defer logger.DeferLogDuration("identity.ChangePassword", time.Now())()
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.NewPassword == in.CurrentPassword {
		return apperr.Validation("new password must differ from the current one")
	}
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("identity.ChangePassword lookup: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return apperr.Authentication("current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("identity.ChangePassword hash: %w", err)
	}
	u.PasswordHash = string(hash)
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("identity.ChangePassword update: %w", err)
	}
	logger.Infof("password changed user=%s", userID)
	return nil
}

func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperr.Authentication("access token is required")
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, jwt.WithIssuer(s.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Authentication("token expired")
		}
		return nil, apperr.Authentication("invalid token")
	}
	if !parsed.Valid || c.Subject == "" || c.ID == "" {
		return nil, apperr.Authentication("invalid token")
	}

	revoked, err := s.tokens.IsRevoked(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("identity.Authenticate revoked: %w", err)
	}
	if revoked {
		return nil, apperr.Authentication("token revoked")
	}

	u, err := s.users.GetUser(ctx, c.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Authentication("user no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("identity.Authenticate user: %w", err)
	}
	return &Principal{User: u.ToPublic(), TokenID: c.ID, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (s *Service) issue(u *model.User) (*Token, error) {
	now := time.Now()
	exp := now.Add(s.cfg.TokenTTL)
	c := claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("identity.issue: %w", err)
	}
	return &Token{Value: signed, ExpiresAt: exp.UTC()}, nil
}
