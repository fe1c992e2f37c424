package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

const (
	MaxGroupNameLen        = 100
	MaxGroupDescriptionLen = 500
	MaxGroupInvitees       = 50
)

// ConversationService — каталог бесед: личные диалоги, группы и членство в них.
// Каждая мутация группы и её системное сообщение пишутся в одной транзакции.
type ConversationService struct {
	store store.Store
}

func NewConversationService(st store.Store) *ConversationService {
	return &ConversationService{store: st}
}

type CreateGroupInput struct {
	CreatorID      string   `json:"-" validate:"required"`
	Name           string   `json:"name" validate:"required,max=100"`
	Description    *string  `json:"description" validate:"omitempty,max=500"`
	ParticipantIDs []string `json:"participantIds" validate:"min=1,max=50,dive,required"`
}

type UpdateGroupInput struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// GetOrCreateDirect возвращает единственный личный диалог пары, создавая его при отсутствии.
// Идемпотентна: параллельные вызовы для одной пары получают одну и ту же беседу.
func (s *ConversationService) GetOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetOrCreateDirect", time.Now())()
	if err := checkDirectPair(ctx, s.store, userA, userB); err != nil {
		return nil, err
	}

	key := model.DirectKey(userA, userB)
	conv, err := store.FindOrCreate(ctx, s.store,
		func(ctx context.Context, q store.Querier) (*model.Conversation, error) {
			return q.FindDirect(ctx, key)
		},
		func(ctx context.Context, q store.Querier) (*model.Conversation, error) {
			return createDirect(ctx, q, userA, userB)
		})
	if errors.Is(err, store.ErrNotFound) {
		// вставка проиграла гонку, а повторное чтение ничего не нашло
		return nil, apperr.Conflict("direct conversation is being created concurrently, retry")
	}
	if err != nil {
		return nil, fmt.Errorf("conv.GetOrCreateDirect: %w", err)
	}
	return s.withParticipants(ctx, s.store, conv)
}

// checkDirectPair: оба пользователя существуют и различны.
func checkDirectPair(ctx context.Context, q store.Querier, userA, userB string) error {
	if userA == "" || userB == "" {
		return apperr.Validation("userId is required")
	}
	if userA == userB {
		return apperr.Validation("cannot start a conversation with yourself")
	}
	users, err := q.GetUsers(ctx, []string{userA, userB})
	if err != nil {
		return fmt.Errorf("conv.checkDirectPair users: %w", err)
	}
	if len(users) != 2 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func findOrCreateDirect(ctx context.Context, q store.Querier, userA, userB string) (*model.Conversation, error) {
	conv, err := q.FindDirect(ctx, model.DirectKey(userA, userB))
	if errors.Is(err, store.ErrNotFound) {
		return createDirect(ctx, q, userA, userB)
	}
	return conv, err
}

func createDirect(ctx context.Context, q store.Querier, userA, userB string) (*model.Conversation, error) {
	at := now()
	c := &model.Conversation{
		ID:        uuid.NewString(),
		Kind:      model.ConversationDirect,
		DirectKey: model.DirectKey(userA, userB),
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := q.CreateConversation(ctx, c); err != nil {
		return nil, err
	}
	for _, id := range []string{userA, userB} {
		p := &model.Participant{ConversationID: c.ID, UserID: id, Role: model.RoleMember, JoinedAt: at}
		if err := q.InsertParticipant(ctx, p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateGroup создаёт группу: создатель — ADMIN, остальные — MEMBER.
func (s *ConversationService) CreateGroup(ctx context.Context, in CreateGroupInput) (*model.Conversation, *model.Message, error) {
	defer logger.DeferLogDuration("conv.CreateGroup", time.Now())()
	in.Name = strings.TrimSpace(in.Name)
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
		if d == "" {
			in.Description = nil
		}
	}
	if err := validateStruct(in); err != nil {
		return nil, nil, err
	}

	ids := lo.Uniq(append([]string{in.CreatorID}, in.ParticipantIDs...))
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("conv.CreateGroup users: %w", err)
	}
	if len(users) != len(ids) {
		return nil, nil, apperr.Validation("one or more participants not found")
	}
	creator, _ := lo.Find(users, func(u model.User) bool { return u.ID == in.CreatorID })

	var conv *model.Conversation
	var msg *model.Message
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		at := now()
		name := in.Name
		conv = &model.Conversation{
			ID:          uuid.NewString(),
			Kind:        model.ConversationGroup,
			Name:        &name,
			Description: in.Description,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		if err := q.CreateConversation(ctx, conv); err != nil {
			return err
		}
		for _, id := range ids {
			role := model.RoleMember
			if id == in.CreatorID {
				role = model.RoleAdmin
			}
			if err := q.InsertParticipant(ctx, &model.Participant{ConversationID: conv.ID, UserID: id, Role: role, JoinedAt: at}); err != nil {
				return err
			}
		}
		var err error
		msg, err = insertSystemMessage(ctx, q, conv.ID, creator.ToPublic(),
			fmt.Sprintf("%s created the group \"%s\"", creator.DisplayName(), name))
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("conv.CreateGroup: %w", err)
	}
	conv.UpdatedAt = msg.CreatedAt
	conv, err = s.withParticipants(ctx, s.store, conv)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("group created id=%s creator=%s members=%d", conv.ID, in.CreatorID, len(ids))
	return conv, msg, nil
}

// AddParticipant добавляет пользователя в группу (только ADMIN). Ранее вышедший участник
// возвращается с ролью MEMBER и новым joinedAt.
func (s *ConversationService) AddParticipant(ctx context.Context, conversationID, targetUserID, actingUserID string) (*model.Participant, *model.Message, error) {
	defer logger.DeferLogDuration("conv.AddParticipant", time.Now())()
	if targetUserID == "" {
		return nil, nil, apperr.Validation("userId is required")
	}
	var added *model.Participant
	var msg *model.Message
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		conv, err := loadGroup(ctx, q, conversationID)
		if err != nil {
			return err
		}
		actor, err := requireAdmin(ctx, q, conv.ID, actingUserID, "only group admins can add participants")
		if err != nil {
			return err
		}
		target, err := q.GetUser(ctx, targetUserID)
		if err != nil {
			return notFound(err, "conv.AddParticipant target", "user not found")
		}
		existing, err := q.GetParticipant(ctx, conv.ID, targetUserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if existing != nil && existing.Active() {
			return apperr.Validation("user is already a participant")
		}

		at := now()
		if existing != nil {
			existing.LeftAt = nil
			existing.JoinedAt = at
			existing.Role = model.RoleMember
			if err := q.UpdateParticipant(ctx, existing); err != nil {
				return err
			}
			added = existing
		} else {
			added = &model.Participant{ConversationID: conv.ID, UserID: target.ID, Role: model.RoleMember, JoinedAt: at}
			if err := q.InsertParticipant(ctx, added); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return apperr.Validation("user is already a participant")
				}
				return err
			}
		}
		pub := target.ToPublic()
		added.User = &pub
		msg, err = insertSystemMessage(ctx, q, conv.ID, *actor.User,
			fmt.Sprintf("%s added %s to the group", actor.User.DisplayName(), target.DisplayName()))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return added, msg, nil
}

// RemoveParticipant помечает участника вышедшим. Выйти сам может любой активный участник,
// исключить другого — только ADMIN. Последний активный участник группу покинуть не может.
func (s *ConversationService) RemoveParticipant(ctx context.Context, conversationID, targetUserID, actingUserID string) (*model.Message, error) {
	defer logger.DeferLogDuration("conv.RemoveParticipant", time.Now())()
	self := targetUserID == actingUserID
	var msg *model.Message
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		conv, err := loadGroup(ctx, q, conversationID)
		if err != nil {
			return err
		}
		if !self {
			if _, err := requireAdmin(ctx, q, conv.ID, actingUserID, "only group admins can remove participants"); err != nil {
				return err
			}
		}
		active, err := q.ListParticipants(ctx, conv.ID, true)
		if err != nil {
			return err
		}
		target, ok := lo.Find(active, func(p model.Participant) bool { return p.UserID == targetUserID })
		if !ok {
			return apperr.NotFound("participant not found")
		}
		if len(active) == 1 {
			return apperr.Validation("the last participant cannot leave the group")
		}

		at := now()
		target.LeftAt = &at
		if err := q.UpdateParticipant(ctx, &target); err != nil {
			return err
		}

		var text string
		author := *target.User
		if self {
			text = fmt.Sprintf("%s left the group", target.User.DisplayName())
		} else {
			actor, _ := lo.Find(active, func(p model.Participant) bool { return p.UserID == actingUserID })
			author = *actor.User
			text = fmt.Sprintf("%s removed %s from the group", actor.User.DisplayName(), target.User.DisplayName())
		}
		msg, err = insertSystemMessage(ctx, q, conv.ID, author, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateGroup меняет название и/или описание. Системное сообщение пишется только при смене названия.
func (s *ConversationService) UpdateGroup(ctx context.Context, conversationID, actingUserID string, in UpdateGroupInput) (*model.Conversation, *model.Message, error) {
	defer logger.DeferLogDuration("conv.UpdateGroup", time.Now())()
	if in.Name == nil && in.Description == nil {
		return nil, nil, apperr.Validation("name or description is required")
	}
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if n == "" {
			return nil, nil, apperr.Validation("name cannot be empty")
		}
		in.Name = &n
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
	}
	if err := validateStruct(in); err != nil {
		return nil, nil, err
	}

	var conv *model.Conversation
	var msg *model.Message
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		var err error
		conv, err = loadGroup(ctx, q, conversationID)
		if err != nil {
			return err
		}
		actor, err := requireAdmin(ctx, q, conv.ID, actingUserID, "only group admins can update the group")
		if err != nil {
			return err
		}
		renamed := in.Name != nil && (conv.Name == nil || *conv.Name != *in.Name)
		if in.Name != nil {
			conv.Name = in.Name
		}
		if in.Description != nil {
			conv.Description = in.Description
			if *in.Description == "" {
				conv.Description = nil
			}
		}
		conv.UpdatedAt = now()
		if err := q.UpdateConversation(ctx, conv); err != nil {
			return err
		}
		if renamed {
			msg, err = insertSystemMessage(ctx, q, conv.ID, *actor.User,
				fmt.Sprintf("%s changed the group name to \"%s\"", actor.User.DisplayName(), *conv.Name))
			if err != nil {
				return err
			}
			conv.UpdatedAt = msg.CreatedAt
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	conv, err = s.withParticipants(ctx, s.store, conv)
	if err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

// ListForUser — беседы, где пользователь активен, от самой свежей к старой.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("conv.ListForUser: %w", err)
	}
	out := make([]model.Conversation, 0, len(convs))
	for i := range convs {
		c, err := s.withParticipants(ctx, s.store, &convs[i])
		if err != nil {
			return nil, err
		}
		last, err := s.store.LastMessage(ctx, c.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("conv.ListForUser last message: %w", err)
		}
		c.LastMessage = last
		out = append(out, *c)
	}
	return out, nil
}

// Get возвращает беседу только активному участнику; для остальных — NotFound.
func (s *ConversationService) Get(ctx context.Context, conversationID, requesterID string) (*model.Conversation, error) {
	p, err := s.store.GetParticipant(ctx, conversationID, requesterID)
	if err != nil {
		return nil, notFound(err, "conv.Get participant", "conversation not found")
	}
	if !p.Active() {
		return nil, apperr.NotFound("conversation not found")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFound(err, "conv.Get", "conversation not found")
	}
	return s.withParticipants(ctx, s.store, conv)
}

func (s *ConversationService) withParticipants(ctx context.Context, q store.Querier, c *model.Conversation) (*model.Conversation, error) {
	ps, err := q.ListParticipants(ctx, c.ID, true)
	if err != nil {
		return nil, fmt.Errorf("conv.participants: %w", err)
	}
	c.Participants = ps
	return c, nil
}

// loadGroup блокирует группу до конца транзакции: проверки членства и ролей
// не гоняются с параллельными мутациями.
func loadGroup(ctx context.Context, q store.Querier, conversationID string) (*model.Conversation, error) {
	if err := q.LockConversation(ctx, conversationID); err != nil {
		return nil, notFound(err, "conv.loadGroup lock", "conversation not found")
	}
	conv, err := q.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFound(err, "conv.loadGroup", "conversation not found")
	}
	if !conv.IsGroup() {
		return nil, apperr.NotFound("group not found")
	}
	return conv, nil
}

// requireAdmin возвращает активного ADMIN-участника вместе с публичным профилем.
func requireAdmin(ctx context.Context, q store.Querier, conversationID, userID, denied string) (*model.Participant, error) {
	p, err := q.GetParticipant(ctx, conversationID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Authorization(denied)
	}
	if err != nil {
		return nil, err
	}
	if !p.Active() || p.Role != model.RoleAdmin {
		return nil, apperr.Authorization(denied)
	}
	u, err := q.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("conv.requireAdmin user: %w", err)
	}
	pub := u.ToPublic()
	p.User = &pub
	return p, nil
}

// insertSystemMessage пишет SYSTEM-сообщение и двигает updatedAt беседы.
func insertSystemMessage(ctx context.Context, q store.Querier, conversationID string, author model.UserPublic, text string) (*model.Message, error) {
	at := now()
	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       author.ID,
		Content:        text,
		Type:           model.MessageSystem,
		CreatedAt:      at,
		UpdatedAt:      at,
		Sender:         &author,
	}
	if err := q.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := q.TouchConversation(ctx, conversationID, at); err != nil {
		return nil, err
	}
	return msg, nil
}
