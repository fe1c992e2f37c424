// Package event описывает закрытый набор событий реального времени:
// исходящие пуши сервера и входящие команды клиента.
package event

import (
	"github.com/whitechapel007/chat-app-pern/internal/model"
)

type Kind string

const (
	KindUsersOnline    Kind = "users_online"
	KindUserJoined     Kind = "user_joined"
	KindUserLeft       Kind = "user_left"
	KindNewMessage     Kind = "new_message"
	KindUserTyping     Kind = "user_typing"
	KindMessageUpdated Kind = "message_updated"
	KindMessageDeleted Kind = "message_deleted"
	KindError          Kind = "error"
)

// Payload реализуют только типы этого пакета.
type Payload interface {
	Kind() Kind
	payload()
}

// Event — кадр, который уходит клиенту: {"type": ..., "payload": ...}.
type Event struct {
	Type    Kind    `json:"type"`
	Payload Payload `json:"payload"`
}

func New(p Payload) Event {
	return Event{Type: p.Kind(), Payload: p}
}

type OnlineUser struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
	IsOnline     bool   `json:"isOnline"`
}

// UsersOnline — текущий состав онлайн, отправляется новому подключению.
type UsersOnline []OnlineUser

type UserJoined struct {
	UserID       string           `json:"userId"`
	ConnectionID string           `json:"connectionId"`
	UserInfo     model.UserPublic `json:"userInfo"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

type NewMessage struct {
	Message      *model.Message      `json:"message"`
	Conversation *model.Conversation `json:"conversation"`
	Sender       *model.UserPublic   `json:"sender"`
}

type UserTyping struct {
	UserID         string           `json:"userId"`
	ConversationID string           `json:"conversationId"`
	IsTyping       bool             `json:"isTyping"`
	UserInfo       model.UserPublic `json:"userInfo"`
}

type MessageUpdated struct {
	Message *model.Message `json:"message"`
}

type MessageDeleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type Error struct {
	Message string `json:"message"`
}

func (UsersOnline) Kind() Kind    { return KindUsersOnline }
func (UserJoined) Kind() Kind     { return KindUserJoined }
func (UserLeft) Kind() Kind       { return KindUserLeft }
func (NewMessage) Kind() Kind     { return KindNewMessage }
func (UserTyping) Kind() Kind     { return KindUserTyping }
func (MessageUpdated) Kind() Kind { return KindMessageUpdated }
func (MessageDeleted) Kind() Kind { return KindMessageDeleted }
func (Error) Kind() Kind          { return KindError }

func (UsersOnline) payload()    {}
func (UserJoined) payload()     {}
func (UserLeft) payload()       {}
func (NewMessage) payload()     {}
func (UserTyping) payload()     {}
func (MessageUpdated) payload() {}
func (MessageDeleted) payload() {}
func (Error) payload()          {}
