package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/event"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/presence"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

// Typing ретранслирует индикатор набора текста. Состояние на сервере не хранится:
// клиент, не приславший stop, сам отвечает за сброс индикатора по таймеру.
type Typing struct {
	store    store.Querier
	registry *presence.Registry
}

func NewTyping(st store.Querier, registry *presence.Registry) *Typing {
	return &Typing{store: st, registry: registry}
}

func (t *Typing) Start(ctx context.Context, conversationID string, who model.UserPublic) error {
	return t.relay(ctx, conversationID, who, true)
}

func (t *Typing) Stop(ctx context.Context, conversationID string, who model.UserPublic) error {
	return t.relay(ctx, conversationID, who, false)
}

func (t *Typing) relay(ctx context.Context, conversationID string, who model.UserPublic, isTyping bool) error {
	if conversationID == "" {
		return apperr.Validation("conversationId is required")
	}
	p, err := t.store.GetParticipant(ctx, conversationID, who.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.Active()) {
		return apperr.NotFound("conversation not found")
	}
	if err != nil {
		return fmt.Errorf("typing participant: %w", err)
	}
	ps, err := t.store.ListParticipants(ctx, conversationID, true)
	if err != nil {
		return fmt.Errorf("typing participants: %w", err)
	}
	t.registry.SendToMany(recipientsExcept(ps, who.ID), event.New(event.UserTyping{
		UserID:         who.ID,
		ConversationID: conversationID,
		IsTyping:       isTyping,
		UserInfo:       who,
	}))
	return nil
}
