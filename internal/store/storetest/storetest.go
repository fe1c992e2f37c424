// Package storetest — общий набор проверок для реализаций store.Store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

var base = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

// NewUser создаёт пользователя с уникальным username.
func NewUser(t *testing.T, s store.Store, name string) *model.User {
	t.Helper()
	u := &model.User{
		ID:         uuid.NewString(),
		Username:   name + "-" + uuid.NewString()[:8],
		FullName:   name,
		LastSeenAt: base,
		CreatedAt:  base,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

// Run прогоняет контрактные тесты для хранилища, созданного newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("UserNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetUser(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DirectKeyIsUnique", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b := NewUser(t, s, "alice"), NewUser(t, s, "bob")
		key := model.DirectKey(a.ID, b.ID)
		first := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationDirect, DirectKey: key, CreatedAt: base, UpdatedAt: base}
		require.NoError(t, s.CreateConversation(ctx, first))

		second := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationDirect, DirectKey: key, CreatedAt: base, UpdatedAt: base}
		err := s.CreateConversation(ctx, second)
		assert.ErrorIs(t, err, store.ErrConflict)

		found, err := s.FindDirect(ctx, model.DirectKey(b.ID, a.ID))
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
	})

	t.Run("GroupsDoNotCollideOnDirectKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		name := "team"
		for i := 0; i < 2; i++ {
			c := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationGroup, Name: &name, CreatedAt: base, UpdatedAt: base}
			require.NoError(t, s.CreateConversation(ctx, c))
		}
	})

	t.Run("WithTxRollsBack", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := uuid.NewString()
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(q store.Querier) error {
			c := &model.Conversation{ID: id, Kind: model.ConversationGroup, CreatedAt: base, UpdatedAt: base}
			require.NoError(t, q.CreateConversation(ctx, c))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = s.GetConversation(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ParticipantsLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b := NewUser(t, s, "alice"), NewUser(t, s, "bob")
		c := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationGroup, CreatedAt: base, UpdatedAt: base}
		require.NoError(t, s.CreateConversation(ctx, c))
		require.NoError(t, s.InsertParticipant(ctx, &model.Participant{ConversationID: c.ID, UserID: a.ID, Role: model.RoleAdmin, JoinedAt: base}))
		require.NoError(t, s.InsertParticipant(ctx, &model.Participant{ConversationID: c.ID, UserID: b.ID, Role: model.RoleMember, JoinedAt: base}))

		p, err := s.GetParticipant(ctx, c.ID, b.ID)
		require.NoError(t, err)
		left := base.Add(time.Minute)
		p.LeftAt = &left
		require.NoError(t, s.UpdateParticipant(ctx, p))

		active, err := s.ListParticipants(ctx, c.ID, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, a.ID, active[0].UserID)
		require.NotNil(t, active[0].User)
		assert.Equal(t, "alice", active[0].User.FullName)

		all, err := s.ListParticipants(ctx, c.ID, false)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		convs, err := s.ListConversations(ctx, b.ID)
		require.NoError(t, err)
		assert.Empty(t, convs)
	})

	t.Run("MessagesWindow", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := NewUser(t, s, "alice")
		c := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationGroup, CreatedAt: base, UpdatedAt: base}
		require.NoError(t, s.CreateConversation(ctx, c))
		var ids []string
		for i := 0; i < 5; i++ {
			at := base.Add(time.Duration(i) * time.Second)
			m := &model.Message{ID: uuid.NewString(), ConversationID: c.ID, SenderID: a.ID, Content: "m", Type: model.MessageText, CreatedAt: at, UpdatedAt: at}
			require.NoError(t, s.InsertMessage(ctx, m))
			ids = append(ids, m.ID)
		}

		asc, err := s.ListMessages(ctx, c.ID, store.MessageQuery{Limit: 2})
		require.NoError(t, err)
		require.Len(t, asc, 2)
		assert.Equal(t, ids[0], asc[0].ID)
		require.NotNil(t, asc[0].Sender)
		assert.Equal(t, a.ID, asc[0].Sender.ID)

		newest, err := s.ListMessages(ctx, c.ID, store.MessageQuery{Limit: 2, NewestFirst: true})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[4], ids[3]}, []string{newest[0].ID, newest[1].ID})

		before := base.Add(3 * time.Second)
		n, err := s.CountMessages(ctx, c.ID, store.MessageQuery{Before: &before})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		last, err := s.LastMessage(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, ids[4], last.ID)

		require.NoError(t, s.DeleteMessage(ctx, ids[4]))
		assert.ErrorIs(t, s.DeleteMessage(ctx, ids[4]), store.ErrNotFound)
		_, err = s.GetMessage(ctx, ids[4])
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("UserDirectory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b, c := NewUser(t, s, "alice"), NewUser(t, s, "bob"), NewUser(t, s, "Bobby")
		require.NoError(t, s.SetOnline(ctx, c.ID, true, base.Add(time.Hour)))

		all, err := s.ListUsers(ctx, store.UserQuery{ExcludeID: a.ID, Limit: 10})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, c.ID, all[0].ID)

		uq := store.UserQuery{Search: "BOB", Limit: 1}
		n, err := s.CountUsers(ctx, uq)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		found, err := s.ListUsers(ctx, uq)
		require.NoError(t, err)
		assert.Len(t, found, 1)

		n, err = s.CountUsers(ctx, store.UserQuery{Search: "%"})
		require.NoError(t, err)
		assert.Zero(t, n)

		b.FullName = "Robert"
		b.PasswordHash = "new-hash"
		require.NoError(t, s.UpdateUser(ctx, b))
		got, err := s.GetUser(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Robert", got.FullName)
		assert.Equal(t, "new-hash", got.PasswordHash)

		missing := *b
		missing.ID = uuid.NewString()
		assert.ErrorIs(t, s.UpdateUser(ctx, &missing), store.ErrNotFound)
	})

	t.Run("LockConversation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationGroup, CreatedAt: base, UpdatedAt: base}
		require.NoError(t, s.CreateConversation(ctx, c))

		require.NoError(t, s.WithTx(ctx, func(q store.Querier) error {
			return q.LockConversation(ctx, c.ID)
		}))
		err := s.WithTx(ctx, func(q store.Querier) error {
			return q.LockConversation(ctx, uuid.NewString())
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("FindOrCreateResolvesConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b := NewUser(t, s, "alice"), NewUser(t, s, "bob")
		key := model.DirectKey(a.ID, b.ID)
		winner := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationDirect, DirectKey: key, CreatedAt: base, UpdatedAt: base}

		finds := 0
		got, err := store.FindOrCreate(ctx, s,
			func(ctx context.Context, q store.Querier) (*model.Conversation, error) {
				finds++
				if finds == 1 {
					// конкурент успевает вставить между поиском и созданием
					require.NoError(t, s.CreateConversation(ctx, winner))
					return nil, store.ErrNotFound
				}
				return q.FindDirect(ctx, key)
			},
			func(ctx context.Context, q store.Querier) (*model.Conversation, error) {
				c := &model.Conversation{ID: uuid.NewString(), Kind: model.ConversationDirect, DirectKey: key, CreatedAt: base, UpdatedAt: base}
				return c, q.CreateConversation(ctx, c)
			})
		require.NoError(t, err)
		assert.Equal(t, winner.ID, got.ID)
		assert.Equal(t, 2, finds)
	})
}
