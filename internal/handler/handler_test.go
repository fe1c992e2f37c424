package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/whitechapel007/chat-app-pern/internal/config"
	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/presence"
	"github.com/whitechapel007/chat-app-pern/internal/service"
	"github.com/whitechapel007/chat-app-pern/internal/storage/memory"
	"github.com/whitechapel007/chat-app-pern/internal/store"
	"github.com/whitechapel007/chat-app-pern/internal/store/sqlite"
	"github.com/whitechapel007/chat-app-pern/internal/ws"
)

type apiEnv struct {
	srv      *httptest.Server
	store    store.Store
	hub      *ws.Hub
	registry *presence.Registry
	ids      *identity.Service
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ids := identity.NewService(st, memory.New(), identity.Config{Secret: []byte("test-secret"), BcryptCost: bcrypt.MinCost})
	msgs := service.NewMessageService(st, 20, 100)
	reg := presence.NewRegistry()
	hub := ws.NewHub(reg, st, msgs, ws.Options{})
	hubCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	cfg := config.Default()
	cfg.Uploads.Dir = t.TempDir()
	cfg.CORSAllowedOrigins = ""
	srv := httptest.NewServer(NewRouter(cfg, Deps{
		Identity: ids,
		Convs:    service.NewConversationService(st),
		Messages: msgs,
		Users:    st,
		Registry: reg,
		Hub:      hub,
	}))
	t.Cleanup(srv.Close)
	return &apiEnv{srv: srv, store: st, hub: hub, registry: reg, ids: ids}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

// doJSON выполняет запрос, проверяет статус и разбирает ответ в dst.
func (e *apiEnv) doJSON(t *testing.T, method, path, token string, body any, want int, dst any) {
	t.Helper()
	status, out := e.do(t, method, path, token, body)
	require.Equal(t, want, status, string(out))
	if dst != nil {
		require.NoError(t, json.Unmarshal(out, dst))
	}
}

type testUser struct {
	ID    string
	Token string
}

func (e *apiEnv) register(t *testing.T, username string) testUser {
	t.Helper()
	var resp authResponse
	e.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"fullName": username + " Test",
		"password": "secret123",
	}, http.StatusCreated, &resp)
	return testUser{ID: resp.User.ID, Token: resp.Token}
}

func errorOf(t *testing.T, body []byte) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Error
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
