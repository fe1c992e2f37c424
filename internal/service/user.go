package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

const (
	DefaultUserPageLimit = 20
	MaxUserPageLimit     = 100
	// ForConversationLimit — сколько кандидатов отдаётся при выборе собеседников.
	ForConversationLimit = 50
)

// UserService — каталог пользователей: поиск, выбор собеседников и правка своего профиля.
type UserService struct {
	store store.Querier
}

func NewUserService(st store.Querier) *UserService {
	return &UserService{store: st}
}

type UserListQuery struct {
	Page   int
	Limit  int
	Search string
}

type UpdateProfileInput struct {
	FullName   *string `json:"fullName" validate:"omitempty,min=2,max=50"`
	ProfilePic *string `json:"profilePic" validate:"omitempty,url,max=500"`
}

// List отдаёт страницу пользователей без запрашивающего: онлайн выше, затем недавно заходившие.
func (s *UserService) List(ctx context.Context, requesterID string, lq UserListQuery) (*model.UserPage, error) {
	defer logger.DeferLogDuration("user.List", time.Now())()
	limit := lq.Limit
	if limit <= 0 {
		limit = DefaultUserPageLimit
	}
	limit = min(limit, MaxUserPageLimit)
	page := max(lq.Page, 1)

	uq := store.UserQuery{
		Search:    strings.TrimSpace(lq.Search),
		ExcludeID: requesterID,
		Offset:    (page - 1) * limit,
		Limit:     limit,
	}
	total, err := s.store.CountUsers(ctx, uq)
	if err != nil {
		return nil, fmt.Errorf("user.List count: %w", err)
	}
	users, err := s.store.ListUsers(ctx, uq)
	if err != nil {
		return nil, fmt.Errorf("user.List: %w", err)
	}

	totalPages := (total + limit - 1) / limit
	return &model.UserPage{
		Users: publicUsers(users),
		Pagination: model.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}, nil
}

// ForConversation — кандидаты для новой беседы: первые ForConversationLimit совпадений без запрашивающего.
func (s *UserService) ForConversation(ctx context.Context, requesterID, search string) ([]model.UserPublic, error) {
	users, err := s.store.ListUsers(ctx, store.UserQuery{
		Search:    strings.TrimSpace(search),
		ExcludeID: requesterID,
		Limit:     ForConversationLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("user.ForConversation: %w", err)
	}
	return publicUsers(users), nil
}

// UpdateProfile меняет имя и/или аватар. Пустой ввод — ошибка валидации.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	defer logger.DeferLogDuration("user.UpdateProfile", time.Now())()
	if in.FullName == nil && in.ProfilePic == nil {
		return nil, apperr.Validation("fullName or profilePic is required")
	}
	if in.FullName != nil {
		n := strings.TrimSpace(*in.FullName)
		if n == "" {
			return nil, apperr.Validation("fullName cannot be empty")
		}
		in.FullName = &n
	}
	if in.ProfilePic != nil {
		p := strings.TrimSpace(*in.ProfilePic)
		in.ProfilePic = &p
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user.UpdateProfile", "user not found")
	}
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.ProfilePic != nil {
		u.ProfilePic = *in.ProfilePic
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("user.UpdateProfile: %w", err)
	}
	return u, nil
}

func publicUsers(users []model.User) []model.UserPublic {
	return lo.Map(users, func(u model.User, _ int) model.UserPublic { return u.ToPublic() })
}
