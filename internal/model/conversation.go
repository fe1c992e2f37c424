package model

import "time"

type ConversationKind string

const (
	ConversationDirect ConversationKind = "DIRECT"
	ConversationGroup  ConversationKind = "GROUP"
)

type Role string

const (
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

type Conversation struct {
	ID          string           `json:"id"`
	Kind        ConversationKind `json:"type"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`

	// DirectKey — упорядоченная пара участников DIRECT-диалога; у групп пустой.
	DirectKey string `json:"-"`

	Participants []Participant `json:"participants,omitempty"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
}

func (c *Conversation) IsGroup() bool { return c.Kind == ConversationGroup }

type Participant struct {
	ConversationID string      `json:"conversationId"`
	UserID         string      `json:"userId"`
	Role           Role        `json:"role"`
	JoinedAt       time.Time   `json:"joinedAt"`
	LeftAt         *time.Time  `json:"leftAt,omitempty"`
	User           *UserPublic `json:"user,omitempty"`
}

// Active — участник не покинул беседу.
func (p *Participant) Active() bool { return p.LeftAt == nil }

// DirectKey строит ключ уникальности личного диалога, не зависящий от порядка аргументов.
func DirectKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}
