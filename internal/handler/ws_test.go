package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/event"
	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/identity/mocks"
	"github.com/whitechapel007/chat-app-pern/internal/model"
)

type frame struct {
	Type    event.Kind      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func wsURL(base, path string) string {
	return "ws" + strings.TrimPrefix(base, "http") + path
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketEndToEnd(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	ca := dial(t, wsURL(env.srv.URL, "/ws?token="+alice.Token), nil)
	roster := readFrame(t, ca)
	require.Equal(t, event.KindUsersOnline, roster.Type)
	var online []event.OnlineUser
	require.NoError(t, json.Unmarshal(roster.Payload, &online))
	require.Len(t, online, 1)
	assert.Equal(t, alice.ID, online[0].UserID)

	var listed []event.OnlineUser
	env.doJSON(t, http.MethodGet, "/api/users/online", bob.Token, nil, http.StatusOK, &listed)
	assert.Equal(t, online, listed)

	var sent model.Message
	env.doJSON(t, http.MethodPost, "/api/conversations/direct/"+alice.ID+"/messages", bob.Token,
		map[string]string{"content": "ping"}, http.StatusCreated, &sent)

	f := readFrame(t, ca)
	require.Equal(t, event.KindNewMessage, f.Type)
	var nm struct {
		Message      model.Message      `json:"message"`
		Conversation model.Conversation `json:"conversation"`
		Sender       model.UserPublic   `json:"sender"`
	}
	require.NoError(t, json.Unmarshal(f.Payload, &nm))
	assert.Equal(t, sent.ID, nm.Message.ID)
	assert.Equal(t, "ping", nm.Message.Content)
	assert.Equal(t, bob.ID, nm.Sender.ID)
	assert.Len(t, nm.Conversation.Participants, 2)

	// ответ через websocket: отправитель получает своё сообщение с id
	require.NoError(t, ca.WriteJSON(map[string]any{
		"type":    "send_message",
		"payload": map[string]string{"conversationId": sent.ConversationID, "content": "pong"},
	}))
	f = readFrame(t, ca)
	require.Equal(t, event.KindNewMessage, f.Type)
	require.NoError(t, json.Unmarshal(f.Payload, &nm))
	assert.Equal(t, "pong", nm.Message.Content)
	assert.Equal(t, alice.ID, nm.Message.SenderID)

	require.NoError(t, ca.WriteJSON(map[string]any{"type": "dance", "payload": map[string]string{}}))
	f = readFrame(t, ca)
	require.Equal(t, event.KindError, f.Type)
	assert.JSONEq(t, `{"message":"unknown event type"}`, string(f.Payload))

	// второй пользователь подключается и уходит
	cb := dial(t, wsURL(env.srv.URL, "/ws"), http.Header{"Authorization": {"Bearer " + bob.Token}})
	require.Equal(t, event.KindUsersOnline, readFrame(t, cb).Type)
	f = readFrame(t, ca)
	require.Equal(t, event.KindUserJoined, f.Type)
	var joined event.UserJoined
	require.NoError(t, json.Unmarshal(f.Payload, &joined))
	assert.Equal(t, bob.ID, joined.UserID)
	assert.Equal(t, "bob", joined.UserInfo.Username)

	require.NoError(t, cb.WriteJSON(map[string]any{
		"type":    "typing_start",
		"payload": map[string]string{"conversationId": sent.ConversationID},
	}))
	f = readFrame(t, ca)
	require.Equal(t, event.KindUserTyping, f.Type)
	var typing event.UserTyping
	require.NoError(t, json.Unmarshal(f.Payload, &typing))
	assert.Equal(t, bob.ID, typing.UserID)
	assert.True(t, typing.IsTyping)

	cb.Close()
	f = readFrame(t, ca)
	require.Equal(t, event.KindUserLeft, f.Type)
	assert.JSONEq(t, `{"userId":"`+bob.ID+`"}`, string(f.Payload))
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := newAPIEnv(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL, "/ws"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSHandlerWithMockAuthenticator(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")

	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	p := &identity.Principal{User: model.UserPublic{ID: alice.ID, Username: "alice"}, TokenID: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	authn.EXPECT().Authenticate(gomock.Any(), "good").Return(p, nil).Times(2)
	authn.EXPECT().Authenticate(gomock.Any(), "expired").Return(nil, apperr.Authentication("token expired"))

	h := NewWSHandler(env.hub, authn, "token", "http://chat.example")
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	conn := dial(t, wsURL(srv.URL, "/ws"), http.Header{
		"X-Auth-Token": {"good"},
		"Origin":       {"http://chat.example"},
	})
	assert.Equal(t, event.KindUsersOnline, readFrame(t, conn).Type)
	assert.Eventually(t, func() bool { return env.registry.IsOnline(alice.ID) }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/ws"), http.Header{
		"X-Auth-Token": {"good"},
		"Origin":       {"http://evil.example"},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv.URL, "/ws?token=expired"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
