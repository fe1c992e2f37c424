package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/model"
)

func TestDirectConversation(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	var first, second model.Conversation
	env.doJSON(t, http.MethodPost, "/api/conversations/direct", alice.Token, map[string]string{"userId": bob.ID}, http.StatusOK, &first)
	env.doJSON(t, http.MethodPost, "/api/conversations/direct", bob.Token, map[string]string{"userId": alice.ID}, http.StatusOK, &second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.ConversationDirect, first.Kind)
	assert.Len(t, first.Participants, 2)

	status, body := env.do(t, http.MethodPost, "/api/conversations/direct", alice.Token, map[string]string{"userId": alice.ID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "cannot start a conversation with yourself", errorOf(t, body))

	status, _ = env.do(t, http.MethodPost, "/api/conversations/direct", alice.Token, map[string]string{"userId": "missing"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSendDirectAndList(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	var msg model.Message
	env.doJSON(t, http.MethodPost, "/api/conversations/direct/"+bob.ID+"/messages", alice.Token,
		map[string]string{"content": "hi bob"}, http.StatusCreated, &msg)
	assert.Equal(t, model.MessageText, msg.Type)
	assert.Equal(t, alice.ID, msg.SenderID)

	var convs []model.Conversation
	env.doJSON(t, http.MethodGet, "/api/conversations", bob.Token, nil, http.StatusOK, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, msg.ConversationID, convs[0].ID)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hi bob", convs[0].LastMessage.Content)

	var none []model.Conversation
	carol := env.register(t, "carol")
	env.doJSON(t, http.MethodGet, "/api/conversations", carol.Token, nil, http.StatusOK, &none)
	assert.Empty(t, none)
}

func TestSendDirectRejectedCreatesNothing(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	status, body := env.do(t, http.MethodPost, "/api/conversations/direct/"+bob.ID+"/messages", alice.Token,
		map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "content is required", errorOf(t, body))

	var convs []model.Conversation
	env.doJSON(t, http.MethodGet, "/api/conversations", bob.Token, nil, http.StatusOK, &convs)
	assert.Empty(t, convs)
	env.doJSON(t, http.MethodGet, "/api/conversations", alice.Token, nil, http.StatusOK, &convs)
	assert.Empty(t, convs)
}

func TestGroupLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")

	var group model.Conversation
	env.doJSON(t, http.MethodPost, "/api/conversations/group", alice.Token, map[string]any{
		"name":           "  Team  ",
		"participantIds": []string{bob.ID},
	}, http.StatusCreated, &group)
	require.NotNil(t, group.Name)
	assert.Equal(t, "Team", *group.Name)
	assert.Len(t, group.Participants, 2)
	base := "/api/conversations/" + group.ID

	status, body := env.do(t, http.MethodPost, base+"/participants", bob.Token, map[string]string{"userId": carol.ID})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "only group admins can add participants", errorOf(t, body))

	var added model.Participant
	env.doJSON(t, http.MethodPost, base+"/participants", alice.Token, map[string]string{"userId": carol.ID}, http.StatusCreated, &added)
	assert.Equal(t, carol.ID, added.UserID)
	assert.Equal(t, model.RoleMember, added.Role)

	var updated model.Conversation
	env.doJSON(t, http.MethodPut, base, alice.Token, map[string]string{"name": "Core"}, http.StatusOK, &updated)
	assert.Equal(t, "Core", *updated.Name)

	env.doJSON(t, http.MethodDelete, base+"/participants/"+carol.ID, alice.Token, nil, http.StatusOK, nil)
	status, _ = env.do(t, http.MethodGet, base, carol.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	env.doJSON(t, http.MethodDelete, base+"/participants/"+bob.ID, bob.Token, nil, http.StatusOK, nil)
	status, body = env.do(t, http.MethodDelete, base+"/participants/"+alice.ID, alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "the last participant cannot leave the group", errorOf(t, body))

	var page model.MessagePage
	env.doJSON(t, http.MethodGet, base+"/messages", alice.Token, nil, http.StatusOK, &page)
	texts := make([]string, 0, len(page.Messages))
	for _, m := range page.Messages {
		assert.Equal(t, model.MessageSystem, m.Type)
		texts = append(texts, m.Content)
	}
	assert.Equal(t, []string{
		`alice Test created the group "Team"`,
		"alice Test added carol Test to the group",
		`alice Test changed the group name to "Core"`,
		"alice Test removed carol Test from the group",
		"bob Test left the group",
	}, texts)
}

func TestUsersEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	var online []map[string]any
	env.doJSON(t, http.MethodGet, "/api/users/online", alice.Token, nil, http.StatusOK, &online)
	assert.Empty(t, online)

	var u model.UserPublic
	env.doJSON(t, http.MethodGet, "/api/users/"+bob.ID, alice.Token, nil, http.StatusOK, &u)
	assert.Equal(t, "bob", u.Username)
	assert.False(t, u.IsOnline)

	status, _ := env.do(t, http.MethodGet, "/api/users/nope", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
