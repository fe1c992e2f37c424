package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/middleware"
	"github.com/whitechapel007/chat-app-pern/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	authn          identity.Authenticator
	cookieName     string
	allowedOrigins string
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS (через запятую или "*").
func NewWSHandler(hub *ws.Hub, authn identity.Authenticator, cookieName, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, authn: authn, cookieName: cookieName, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS проверяет токен до upgrade: без него соединение не открывается.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tok := middleware.TokenFromRequest(r, h.cookieName)
	p, err := h.authn.Authenticate(r.Context(), tok)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAuthentication {
			writeError(w, http.StatusUnauthorized, apperr.Message(err))
			return
		}
		logger.Errorf("ws authenticate token=%s: %v", middleware.MaskToken(tok), err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%s: %v", p.UserID(), err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, p.User)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
