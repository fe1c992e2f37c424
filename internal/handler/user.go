package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/middleware"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/presence"
	"github.com/whitechapel007/chat-app-pern/internal/service"
	"github.com/whitechapel007/chat-app-pern/internal/store"
)

type UserHandler struct {
	users    store.Querier
	dir      *service.UserService
	registry *presence.Registry
}

func NewUserHandler(users store.Querier, registry *presence.Registry) *UserHandler {
	return &UserHandler{users: users, dir: service.NewUserService(users), registry: registry}
}

// Online — список пользователей с открытым подключением.
func (h *UserHandler) Online(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

// List — GET /api/users?search=&page=&limit=, без самого запрашивающего.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.dir.List(r.Context(), middleware.GetUserID(r.Context()), service.UserListQuery{
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 0),
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.markOnline(page.Users)
	if page.Users == nil {
		page.Users = []model.UserPublic{}
	}
	writeJSON(w, http.StatusOK, page)
}

// ForConversation — кандидаты в собеседники для GET /api/users/for-conversation?search=.
func (h *UserHandler) ForConversation(w http.ResponseWriter, r *http.Request) {
	users, err := h.dir.ForConversation(r.Context(), middleware.GetUserID(r.Context()), r.URL.Query().Get("search"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.markOnline(users)
	if users == nil {
		users = []model.UserPublic{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.dir.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	pub := u.ToPublic()
	pub.IsOnline = h.registry.IsOnline(u.ID)
	writeJSON(w, http.StatusOK, pub)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeAppError(w, r, apperr.NotFound("user not found"))
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	pub := u.ToPublic()
	pub.IsOnline = h.registry.IsOnline(u.ID)
	writeJSON(w, http.StatusOK, pub)
}

// markOnline сверяет флаг онлайна с реестром подключений.
func (h *UserHandler) markOnline(users []model.UserPublic) {
	for i := range users {
		users[i].IsOnline = h.registry.IsOnline(users[i].ID)
	}
}
