package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/model"
)

func seedMessages(t *testing.T, env *testEnv, conv *model.Conversation, sender *model.User, n int) []*model.Message {
	t.Helper()
	out := make([]*model.Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := env.msgs.Append(context.Background(), AppendInput{
			ConversationID: conv.ID,
			SenderID:       sender.ID,
			Content:        fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestAppend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := env.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: alice.ID, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, model.MessageText, msg.Type)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, alice.Username, msg.Sender.Username)

	got, err := env.convs.Get(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, !got.UpdatedAt.Before(msg.CreatedAt), "updatedAt must move with the newest message")

	img, err := env.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: bob.ID, Content: "/uploads/x.png", Type: model.MessageImage})
	require.NoError(t, err)
	assert.Equal(t, model.MessageImage, img.Type)
}

func TestAppendValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	cases := []struct {
		name string
		in   AppendInput
	}{
		{"empty", AppendInput{Content: ""}},
		{"blank", AppendInput{Content: "   "}},
		{"too long", AppendInput{Content: strings.Repeat("x", MaxMessageLen+1)}},
		{"system", AppendInput{Content: "hi", Type: model.MessageSystem}},
		{"unknown type", AppendInput{Content: "hi", Type: "VIDEO"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.ConversationID = conv.ID
			tc.in.SenderID = alice.ID
			_, err := env.msgs.Append(ctx, tc.in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "err: %v", err)
		})
	}

	_, err = env.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: alice.ID, Content: strings.Repeat("я", MaxMessageLen)})
	assert.NoError(t, err, "limit counts characters, not bytes")
}

func TestSendDirect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	first, err := env.msgs.SendDirect(ctx, alice.ID, bob.ID, AppendInput{Content: "hi"})
	require.NoError(t, err)
	second, err := env.msgs.SendDirect(ctx, bob.ID, alice.ID, AppendInput{Content: "hey"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, conv.ID)
}

func TestSendDirectRejectedLeavesNoConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	missing := uuid.NewString()

	cases := []struct {
		name string
		in   AppendInput
		kind apperr.Kind
	}{
		{"blank", AppendInput{Content: "   "}, apperr.KindValidation},
		{"too long", AppendInput{Content: strings.Repeat("x", MaxMessageLen+1)}, apperr.KindValidation},
		{"system", AppendInput{Content: "x", Type: model.MessageSystem}, apperr.KindValidation},
		{"bad type", AppendInput{Content: "x", Type: "VIDEO"}, apperr.KindValidation},
		{"foreign reply", AppendInput{Content: "x", ReplyToID: &missing}, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.msgs.SendDirect(ctx, alice.ID, bob.ID, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	for _, u := range []*model.User{alice, bob} {
		convs, err := env.convs.ListForUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, convs, "rejected direct send must not create a conversation")
	}

	_, err := env.msgs.SendDirect(ctx, alice.ID, alice.ID, AppendInput{Content: "me"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = env.msgs.SendDirect(ctx, alice.ID, missing, AppendInput{Content: "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAppendRequiresParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = env.msgs.Append(ctx, AppendInput{ConversationID: conv.ID, SenderID: eve.ID, Content: "let me in"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	_, err = env.msgs.Append(ctx, AppendInput{ConversationID: uuid.NewString(), SenderID: eve.ID, Content: "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = env.msgs.List(ctx, conv.ID, eve.ID, ListQuery{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAppendReplyMustBeInSameConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	ab, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	ac, err := env.convs.GetOrCreateDirect(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	original := seedMessages(t, env, ab, bob, 1)[0]
	reply, err := env.msgs.Append(ctx, AppendInput{ConversationID: ab.ID, SenderID: alice.ID, Content: "re", ReplyToID: &original.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, original.ID, *reply.ReplyToID)

	_, err = env.msgs.Append(ctx, AppendInput{ConversationID: ac.ID, SenderID: alice.ID, Content: "re", ReplyToID: &original.ID})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	sent := seedMessages(t, env, conv, alice, 25)

	first, err := env.msgs.List(ctx, conv.ID, bob.ID, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, model.Pagination{Page: 1, Limit: 20, Total: 25, TotalPages: 2, HasNext: true, HasPrev: false}, first.Pagination)
	require.Len(t, first.Messages, 20)
	assert.Equal(t, sent[5].ID, first.Messages[0].ID)
	assert.Equal(t, sent[24].ID, first.Messages[19].ID)
	for i := 1; i < len(first.Messages); i++ {
		assert.True(t, first.Messages[i].CreatedAt.After(first.Messages[i-1].CreatedAt), "oldest first, strictly increasing")
	}

	second, err := env.msgs.List(ctx, conv.ID, bob.ID, ListQuery{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, model.Pagination{Page: 2, Limit: 20, Total: 25, TotalPages: 2, HasNext: false, HasPrev: true}, second.Pagination)
	require.Len(t, second.Messages, 5)
	assert.Equal(t, sent[0].ID, second.Messages[0].ID)

	capped, err := env.msgs.List(ctx, conv.ID, bob.ID, ListQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, capped.Pagination.Limit)
	assert.Len(t, capped.Messages, 25)
}

func TestListEmptyConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	page, err := env.msgs.List(ctx, conv.ID, alice.ID, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, 0, page.Pagination.Total)
	assert.False(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)
}

func TestListCursors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	sent := seedMessages(t, env, conv, alice, 10)

	before := sent[6].CreatedAt
	page, err := env.msgs.List(ctx, conv.ID, bob.ID, ListQuery{Before: &before, Limit: 3, Page: 4})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, []string{sent[3].ID, sent[4].ID, sent[5].ID}, ids(page.Messages))
	assert.Equal(t, 1, page.Pagination.Page, "cursor ignores page")
	assert.Equal(t, 6, page.Pagination.Total)
	assert.True(t, page.Pagination.HasNext)

	after := sent[6].CreatedAt
	page, err = env.msgs.List(ctx, conv.ID, bob.ID, ListQuery{After: &after, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{sent[7].ID, sent[8].ID}, ids(page.Messages))

	lo, hi := sent[2].CreatedAt, sent[6].CreatedAt
	page, err = env.msgs.List(ctx, conv.ID, bob.ID, ListQuery{After: &lo, Before: &hi})
	require.NoError(t, err)
	assert.Equal(t, []string{sent[3].ID, sent[4].ID, sent[5].ID}, ids(page.Messages))
	assert.False(t, page.Pagination.HasNext)
}

func ids(ms []model.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestEditMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	msg := seedMessages(t, env, conv, alice, 1)[0]

	_, err = env.msgs.Edit(ctx, msg.ID, bob.ID, "hijack")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	_, err = env.msgs.Edit(ctx, msg.ID, alice.ID, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = env.msgs.Edit(ctx, uuid.NewString(), alice.ID, "x")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	edited, err := env.msgs.Edit(ctx, msg.ID, alice.ID, "  fixed typo  ")
	require.NoError(t, err)
	assert.Equal(t, "fixed typo", edited.Content)
	assert.True(t, edited.UpdatedAt.After(msg.UpdatedAt))
	assert.Equal(t, msg.CreatedAt, edited.CreatedAt)

	stored, err := env.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "fixed typo", stored.Content)
}

func TestEditSystemMessageRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	_, sys, err := env.convs.CreateGroup(ctx, CreateGroupInput{CreatorID: alice.ID, Name: "g", ParticipantIDs: []string{bob.ID}})
	require.NoError(t, err)

	_, err = env.msgs.Edit(ctx, sys.ID, alice.ID, "rewrite history")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv, err := env.convs.GetOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	sent := seedMessages(t, env, conv, alice, 2)

	_, err = env.msgs.Delete(ctx, sent[0].ID, bob.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	deleted, err := env.msgs.Delete(ctx, sent[0].ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, sent[0].ID, deleted.ID)

	_, err = env.msgs.Delete(ctx, sent[0].ID, alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	page, err := env.msgs.List(ctx, conv.ID, bob.ID, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{sent[1].ID}, ids(page.Messages))
}
