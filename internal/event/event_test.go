package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEncoding(t *testing.T) {
	raw, err := json.Marshal(New(UserLeft{UserID: "u1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user_left","payload":{"userId":"u1"}}`, string(raw))

	raw, err = json.Marshal(New(UsersOnline{{UserID: "u1", ConnectionID: "c1", IsOnline: true}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"users_online","payload":[{"userId":"u1","connectionId":"c1","isOnline":true}]}`, string(raw))

	raw, err = json.Marshal(New(UserTyping{UserID: "u1", ConversationID: "c1", IsTyping: false}))
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "user_typing", back["type"])
	assert.Equal(t, false, back["payload"].(map[string]any)["isTyping"])
}

func TestDecode(t *testing.T) {
	in, err := Decode([]byte(`{"type":"typing_start","payload":{"conversationId":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, TypingStart{ConversationID: "c1"}, in)

	in, err = Decode([]byte(`{"type":"send_message","payload":{"conversationId":"c1","content":"hi","replyToId":"m1"}}`))
	require.NoError(t, err)
	msg, ok := in.(SendMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Content)
	require.NotNil(t, msg.ReplyToID)
	assert.Equal(t, "m1", *msg.ReplyToID)

	_, err = Decode([]byte(`{"type":"join_room"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownKind)
}
