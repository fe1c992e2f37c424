package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

const (
	MaxMessageLen    = 1000
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// MessageService — хранилище сообщений: отправка, постраничная выдача, правка и удаление.
type MessageService struct {
	store        store.Store
	defaultLimit int
	maxLimit     int
}

// NewMessageService создаёт сервис. Неположительные лимиты заменяются значениями по умолчанию.
func NewMessageService(st store.Store, defaultLimit, maxLimit int) *MessageService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxPageLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &MessageService{store: st, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

type AppendInput struct {
	ConversationID string            `json:"-"`
	SenderID       string            `json:"-"`
	Content        string            `json:"content" validate:"required,max=1000"`
	Type           model.MessageType `json:"messageType" validate:"omitempty,oneof=TEXT IMAGE FILE"`
	ReplyToID      *string           `json:"replyToId"`
}

// ListQuery — параметры выдачи. Если задан курсор (Before/After), Page игнорируется.
type ListQuery struct {
	Page   int
	Limit  int
	Before *time.Time
	After  *time.Time
}

// Append сохраняет сообщение активного участника и двигает updatedAt беседы.
func (s *MessageService) Append(ctx context.Context, in AppendInput) (*model.Message, error) {
	defer logger.DeferLogDuration("message.Append", time.Now())()
	if err := checkAppend(&in); err != nil {
		return nil, err
	}
	var msg *model.Message
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		var err error
		msg, err = appendTx(ctx, q, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SendDirect находит или создаёт личный диалог отправителя с recipientID и добавляет в него
// сообщение в одной транзакции: отклонённое сообщение не оставляет пустой беседы.
func (s *MessageService) SendDirect(ctx context.Context, senderID, recipientID string, in AppendInput) (*model.Message, error) {
	defer logger.DeferLogDuration("message.SendDirect", time.Now())()
	if err := checkAppend(&in); err != nil {
		return nil, err
	}
	if err := checkDirectPair(ctx, s.store, senderID, recipientID); err != nil {
		return nil, err
	}
	in.SenderID = senderID

	send := func() (*model.Message, error) {
		var msg *model.Message
		err := s.store.WithTx(ctx, func(q store.Querier) error {
			conv, err := findOrCreateDirect(ctx, q, senderID, recipientID)
			if err != nil {
				return err
			}
			in.ConversationID = conv.ID
			msg, err = appendTx(ctx, q, in)
			return err
		})
		return msg, err
	}
	msg, err := send()
	if errors.Is(err, store.ErrConflict) {
		// диалог создан параллельно: повтор найдёт его
		msg, err = send()
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Conflict("direct conversation is being created concurrently, retry")
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// checkAppend проверяет содержимое сообщения до обращения к хранилищу.
func checkAppend(in *AppendInput) error {
	if in.Type == model.MessageSystem {
		return apperr.Validation("system messages cannot be sent directly")
	}
	if strings.TrimSpace(in.Content) == "" {
		return apperr.Validation("content is required")
	}
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.Type == "" {
		in.Type = model.MessageText
	}
	return nil
}

func appendTx(ctx context.Context, q store.Querier, in AppendInput) (*model.Message, error) {
	if _, err := q.GetConversation(ctx, in.ConversationID); err != nil {
		return nil, notFound(err, "message.Append conversation", "conversation not found")
	}
	p, err := q.GetParticipant(ctx, in.ConversationID, in.SenderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.Active()) {
		return nil, apperr.Authorization("not a participant of this conversation")
	}
	if err != nil {
		return nil, err
	}
	if in.ReplyToID != nil && *in.ReplyToID != "" {
		target, err := q.GetMessage(ctx, *in.ReplyToID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && target.ConversationID != in.ConversationID) {
			return nil, apperr.Validation("reply target not found in this conversation")
		}
		if err != nil {
			return nil, err
		}
	} else {
		in.ReplyToID = nil
	}
	sender, err := q.GetUser(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}
	pub := sender.ToPublic()

	at := now()
	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Type:           in.Type,
		ReplyToID:      in.ReplyToID,
		CreatedAt:      at,
		UpdatedAt:      at,
		Sender:         &pub,
	}
	if err := q.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := q.TouchConversation(ctx, in.ConversationID, at); err != nil {
		return nil, err
	}
	return msg, nil
}

// List отдаёт страницу сообщений от старых к новым. Страница 1 — самые свежие.
// С курсором Before — не более limit сообщений строго раньше него, с After — строго позже,
// с обоими — окно между ними (ближайшие к Before).
func (s *MessageService) List(ctx context.Context, conversationID, requesterID string, lq ListQuery) (*model.MessagePage, error) {
	defer logger.DeferLogDuration("message.List", time.Now())()
	p, err := s.store.GetParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, notFound(err, "message.List participant", "conversation not found")
	}
	if !p.Active() {
		return nil, apperr.NotFound("conversation not found")
	}

	limit := lq.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	page := lq.Page
	if page < 1 {
		page = 1
	}

	mq := store.MessageQuery{Before: lq.Before, After: lq.After, Limit: limit, NewestFirst: true}
	cursor := lq.Before != nil || lq.After != nil
	if cursor {
		page = 1
		if lq.Before == nil {
			mq.NewestFirst = false
		}
	} else {
		mq.Offset = (page - 1) * limit
	}

	total, err := s.store.CountMessages(ctx, conversationID, store.MessageQuery{Before: lq.Before, After: lq.After})
	if err != nil {
		return nil, fmt.Errorf("message.List count: %w", err)
	}
	msgs, err := s.store.ListMessages(ctx, conversationID, mq)
	if err != nil {
		return nil, fmt.Errorf("message.List: %w", err)
	}
	if mq.NewestFirst {
		slices.Reverse(msgs)
	}

	totalPages := (total + limit - 1) / limit
	pg := model.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
	return &model.MessagePage{Messages: msgs, Pagination: pg}, nil
}

// Edit меняет текст своего сообщения. Текст обрезается по краям.
func (s *MessageService) Edit(ctx context.Context, messageID, requesterID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.Edit", time.Now())()
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLen {
		return nil, apperr.Validation("content must be at most %d characters", MaxMessageLen)
	}

	var msg *model.Message
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		var err error
		msg, err = q.GetMessage(ctx, messageID)
		if err != nil {
			return notFound(err, "message.Edit", "message not found")
		}
		if msg.SenderID != requesterID {
			return apperr.Authorization("you can only edit your own messages")
		}
		if msg.Type == model.MessageSystem {
			return apperr.Validation("system messages cannot be edited")
		}
		at := now()
		if err := q.UpdateMessageContent(ctx, messageID, content, at); err != nil {
			return notFound(err, "message.Edit update", "message not found")
		}
		msg.Content = content
		msg.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete безвозвратно удаляет своё сообщение и возвращает удалённую запись.
func (s *MessageService) Delete(ctx context.Context, messageID, requesterID string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.Delete", time.Now())()
	var msg *model.Message
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		var err error
		msg, err = q.GetMessage(ctx, messageID)
		if err != nil {
			return notFound(err, "message.Delete", "message not found")
		}
		if msg.SenderID != requesterID {
			return apperr.Authorization("you can only delete your own messages")
		}
		return notFoundOrNil(q.DeleteMessage(ctx, messageID))
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func notFoundOrNil(err error) error {
	if err == nil {
		return nil
	}
	return notFound(err, "message.Delete", "message not found")
}
