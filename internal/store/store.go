// Package store описывает хранилище бесед, участников и сообщений.
// Реализации: postgres (pgx, прод) и sqlite (modernc, dev/тесты).
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict — нарушение ограничения уникальности.
	ErrConflict = errors.New("unique constraint violation")
)

// MessageQuery — окно выборки сообщений. Before/After — курсоры по createdAt (исключающие).
// NewestFirst=true берёт самые свежие записи окна (страницы «назад»), иначе самые старые.
type MessageQuery struct {
	Before      *time.Time
	After       *time.Time
	Offset      int
	Limit       int
	NewestFirst bool
}

// UserQuery — выборка каталога пользователей. Search ищет подстроку в username и fullName
// без учёта регистра; ExcludeID исключает одного пользователя (обычно запрашивающего).
type UserQuery struct {
	Search    string
	ExcludeID string
	Offset    int
	Limit     int
}

// LikePattern экранирует спецсимволы LIKE и оборачивает строку в %...%; в запросе нужен ESCAPE '\'.
func LikePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(search)) + "%"
}

// Querier — операции, доступные как на соединении, так и внутри транзакции.
type Querier interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
	// ListUsers сортирует: сначала онлайн, затем по lastSeenAt (новее выше), затем по username.
	ListUsers(ctx context.Context, q UserQuery) ([]model.User, error)
	CountUsers(ctx context.Context, q UserQuery) (int, error)
	// UpdateUser перезаписывает fullName, profilePic и passwordHash.
	UpdateUser(ctx context.Context, u *model.User) error
	SetOnline(ctx context.Context, userID string, online bool, at time.Time) error
	ResetOnline(ctx context.Context) error

	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	FindDirect(ctx context.Context, directKey string) (*model.Conversation, error)
	// LockConversation блокирует строку беседы до конца транзакции (ErrNotFound, если её нет).
	// Мутации членства группы сериализуются через эту блокировку.
	LockConversation(ctx context.Context, id string) error
	UpdateConversation(ctx context.Context, c *model.Conversation) error
	TouchConversation(ctx context.Context, id string, at time.Time) error
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)

	InsertParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, conversationID, userID string) (*model.Participant, error)
	UpdateParticipant(ctx context.Context, p *model.Participant) error
	ListParticipants(ctx context.Context, conversationID string, activeOnly bool) ([]model.Participant, error)

	InsertMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]model.Message, error)
	CountMessages(ctx context.Context, conversationID string, q MessageQuery) (int, error)
	LastMessage(ctx context.Context, conversationID string) (*model.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, at time.Time) error
	DeleteMessage(ctx context.Context, id string) error
}

// Store — Querier + транзакции. fn выполняется в транзакции; ошибка из fn откатывает её.
type Store interface {
	Querier
	WithTx(ctx context.Context, fn func(q Querier) error) error
	Close() error
}

// FindOrCreate — оптимистичное создание: find вне транзакции, при ErrNotFound — create в
// транзакции; если create упал на уникальности, транзакция откатывается и find повторяется
// один раз, возвращая каноническую запись победителя гонки.
func FindOrCreate[T any](
	ctx context.Context,
	s Store,
	find func(ctx context.Context, q Querier) (T, error),
	create func(ctx context.Context, q Querier) (T, error),
) (T, error) {
	found, err := find(ctx, s)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return found, err
	}
	var created T
	err = s.WithTx(ctx, func(q Querier) error {
		var err error
		created, err = create(ctx, q)
		return err
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrConflict) {
		return created, err
	}
	return find(ctx, s)
}
