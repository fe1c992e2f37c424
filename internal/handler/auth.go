package handler

import (
	"net/http"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/middleware"
	"github.com/whitechapel007/chat-app-pern/internal/model"
)

// CookieConfig — параметры cookie с токеном.
type CookieConfig struct {
	Name   string
	Secure bool
	Domain string
}

type AuthHandler struct {
	svc    *identity.Service
	cookie CookieConfig
}

func NewAuthHandler(svc *identity.Service, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	return &AuthHandler{svc: svc, cookie: cookie}
}

type authResponse struct {
	User      model.UserPublic `json:"user"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, tok, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.setCookie(w, tok)
	writeJSON(w, http.StatusCreated, authResponse{User: u.ToPublic(), Token: tok.Value, ExpiresAt: tok.ExpiresAt})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, tok, err := h.svc.Login(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.setCookie(w, tok)
	writeJSON(w, http.StatusOK, authResponse{User: u.ToPublic(), Token: tok.Value, ExpiresAt: tok.ExpiresAt})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), p); err != nil {
		writeAppError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.ToPublic())
}

// ChangePassword — PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req identity.ChangePasswordInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, tok *identity.Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    tok.Value,
		Path:     "/",
		Domain:   h.cookie.Domain,
		Expires:  tok.ExpiresAt,
		MaxAge:   int(time.Until(tok.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
