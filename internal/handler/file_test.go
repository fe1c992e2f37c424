package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/fileserver"
	"github.com/whitechapel007/chat-app-pern/internal/model"
)

func TestUploadThenSendAsMessage(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("meeting at noon"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/uploads", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var up fileserver.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	assert.Equal(t, model.MessageFile, up.MessageType)

	var msg model.Message
	env.doJSON(t, http.MethodPost, "/api/conversations/direct/"+bob.ID+"/messages", alice.Token, map[string]string{
		"content":     up.URL,
		"messageType": string(up.MessageType),
	}, http.StatusCreated, &msg)
	assert.Equal(t, model.MessageFile, msg.Type)

	get, err := env.srv.Client().Get(env.srv.URL + up.URL)
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	data, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, "meeting at noon", string(data))
}

func TestUploadRequiresAuth(t *testing.T) {
	env := newAPIEnv(t)
	status, _ := env.do(t, http.MethodPost, "/api/uploads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
