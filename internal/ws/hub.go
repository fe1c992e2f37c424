package ws

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/event"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/presence"
	"github.com/whitechapel007/chat-app-pern/internal/service"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

const storeTimeout = 5 * time.Second

// Session — подключение, которым управляет хаб.
type Session interface {
	presence.Conn
	User() model.UserPublic
	// Closed сообщает, что подключение уже закрыто.
	Closed() bool
	// Wait блокирует, пока не завершатся горутины подключения.
	Wait()
}

// MessageAppender сохраняет сообщения, пришедшие по websocket.
type MessageAppender interface {
	Append(ctx context.Context, in service.AppendInput) (*model.Message, error)
}

type Options struct {
	MaxConnections int
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 10000
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 8192
	}
	return o
}

// Hub — диспетчер событий: жизненный цикл подключений, presence и рассылка.
// Подключения и отключения обрабатываются последовательно в Run.
type Hub struct {
	opts       Options
	registry   *presence.Registry
	store      store.Querier
	messages   MessageAppender
	typing     *Typing
	sessions   map[Session]struct{}
	register   chan Session
	unregister chan Session
	done       chan struct{}
}

func NewHub(registry *presence.Registry, st store.Querier, messages MessageAppender, opts Options) *Hub {
	return &Hub{
		opts:       opts.withDefaults(),
		registry:   registry,
		store:      st,
		messages:   messages,
		typing:     NewTyping(st, registry),
		sessions:   make(map[Session]struct{}),
		register:   make(chan Session, 64),
		unregister: make(chan Session, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Options() Options { return h.opts }

func (h *Hub) Registry() *presence.Registry { return h.registry }

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.shutdown()
			return
		case s := <-h.register:
			h.addSession(s)
		case s := <-h.unregister:
			h.removeSession(s)
		}
	}
}

func (h *Hub) shutdown() {
	all := lo.Keys(h.sessions)
	h.sessions = make(map[Session]struct{})

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	for _, s := range all {
		s.Close()
		if h.registry.Unregister(s.User().ID, s) {
			if err := h.store.SetOnline(ctx, s.User().ID, false, time.Now().UTC()); err != nil {
				logger.Errorf("ws set offline on shutdown user=%s: %v", s.User().ID, err)
			}
		}
	}
	for _, s := range all {
		s.Wait()
	}
	logger.Infof("ws hub stopped, closed %d connections", len(all))
}

func (h *Hub) addSession(s Session) {
	user := s.User()
	// Unregister мог прийти раньше Register: мёртвую сессию не регистрируем.
	if s.Closed() {
		logger.Debugf("ws session closed before register user=%s conn=%s", user.ID, s.ID())
		return
	}
	if h.registry.Len() >= h.opts.MaxConnections && !h.registry.IsOnline(user.ID) {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.opts.MaxConnections, user.ID)
		s.Close()
		return
	}
	h.sessions[s] = struct{}{}
	if prev := h.registry.Register(user.ID, s); prev != nil {
		logger.Infof("ws connection superseded user=%s old=%s new=%s", user.ID, prev.ID(), s.ID())
		prev.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SetOnline(ctx, user.ID, true, time.Now().UTC()); err != nil {
		logger.Errorf("ws set online user=%s: %v", user.ID, err)
	}
	user.IsOnline = true

	s.Send(event.New(event.UsersOnline(h.registry.Snapshot())))
	h.registry.BroadcastAll(event.New(event.UserJoined{
		UserID:       user.ID,
		ConnectionID: s.ID(),
		UserInfo:     user,
	}), user.ID)
}

func (h *Hub) removeSession(s Session) {
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	s.Close()

	userID := s.User().ID
	if !h.registry.Unregister(userID, s) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SetOnline(ctx, userID, false, time.Now().UTC()); err != nil {
		logger.Errorf("ws set offline user=%s: %v", userID, err)
	}
	h.registry.BroadcastAll(event.New(event.UserLeft{UserID: userID}))
}

// HandleMessage разбирает кадр клиента и выполняет команду.
// Ошибки уходят обратно этому подключению событием error.
func (h *Hub) HandleMessage(ctx context.Context, s Session, raw []byte) {
	in, err := event.Decode(raw)
	if err != nil {
		if errors.Is(err, event.ErrUnknownKind) {
			s.Send(event.New(event.Error{Message: "unknown event type"}))
		} else {
			s.Send(event.New(event.Error{Message: "malformed event"}))
		}
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	switch in := in.(type) {
	case event.TypingStart:
		err = h.typing.Start(ctx, in.ConversationID, s.User())
	case event.TypingStop:
		err = h.typing.Stop(ctx, in.ConversationID, s.User())
	case event.SendMessage:
		err = h.handleSendMessage(ctx, s, in)
	default:
		err = apperr.Validation("unknown event type")
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			logger.Errorf("ws handle event user=%s: %v", s.User().ID, err)
		}
		s.Send(event.New(event.Error{Message: apperr.Message(err)}))
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, s Session, in event.SendMessage) error {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	msg, err := h.messages.Append(ctx, service.AppendInput{
		ConversationID: in.ConversationID,
		SenderID:       s.User().ID,
		Content:        in.Content,
		Type:           model.MessageType(in.MessageType),
		ReplyToID:      in.ReplyToID,
	})
	if err != nil {
		return err
	}
	ev, recipients, err := h.newMessageEvent(ctx, msg)
	if err != nil {
		return err
	}
	h.registry.SendToMany(recipients, ev)
	// отправитель получает своё сообщение как подтверждение с присвоенным id
	s.Send(ev)
	return nil
}

// PublishMessage рассылает new_message всем активным участникам беседы, кроме отправителя.
// extra — дополнительные получатели (например, только что удалённый участник).
// Офлайн-получатели пропускаются.
func (h *Hub) PublishMessage(ctx context.Context, msg *model.Message, extra ...string) {
	defer logger.DeferLogDuration("ws.PublishMessage", time.Now())()
	if msg == nil {
		return
	}
	ev, recipients, err := h.newMessageEvent(ctx, msg)
	if err != nil {
		logger.Errorf("ws publish message %s: %v", msg.ID, err)
		return
	}
	recipients = lo.Uniq(append(recipients, lo.Without(extra, msg.SenderID)...))
	h.registry.SendToMany(recipients, ev)
}

func (h *Hub) newMessageEvent(ctx context.Context, msg *model.Message) (event.Event, []string, error) {
	conv, err := h.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return event.Event{}, nil, err
	}
	ps, err := h.store.ListParticipants(ctx, msg.ConversationID, true)
	if err != nil {
		return event.Event{}, nil, err
	}
	conv.Participants = ps
	conv.LastMessage = msg
	ev := event.New(event.NewMessage{Message: msg, Conversation: conv, Sender: msg.Sender})
	return ev, recipientsExcept(ps, msg.SenderID), nil
}

// PublishMessageUpdated рассылает message_updated участникам, кроме автора правки.
func (h *Hub) PublishMessageUpdated(ctx context.Context, msg *model.Message) {
	h.publishToParticipants(ctx, msg.ConversationID, msg.SenderID, event.New(event.MessageUpdated{Message: msg}))
}

func (h *Hub) PublishMessageDeleted(ctx context.Context, msg *model.Message) {
	h.publishToParticipants(ctx, msg.ConversationID, msg.SenderID, event.New(event.MessageDeleted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	}))
}

func (h *Hub) publishToParticipants(ctx context.Context, conversationID, actorID string, ev event.Event) {
	ps, err := h.store.ListParticipants(ctx, conversationID, true)
	if err != nil {
		logger.Errorf("ws publish %s conv=%s: %v", ev.Type, conversationID, err)
		return
	}
	h.registry.SendToMany(recipientsExcept(ps, actorID), ev)
}

func recipientsExcept(ps []model.Participant, userID string) []string {
	return lo.FilterMap(ps, func(p model.Participant, _ int) (string, bool) {
		return p.UserID, p.UserID != userID
	})
}

func (h *Hub) Register(s Session) {
	select {
	case h.register <- s:
	case <-h.done:
		s.Close()
	}
}

func (h *Hub) Unregister(s Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}
