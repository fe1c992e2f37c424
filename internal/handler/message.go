package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/whitechapel007/chat-app-pern/internal/middleware"
	"github.com/whitechapel007/chat-app-pern/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
	pub      Publisher
}

func NewMessageHandler(messages *service.MessageService, pub Publisher) *MessageHandler {
	return &MessageHandler{messages: messages, pub: pub}
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// List — GET /api/conversations/{id}/messages?page=&limit=&before=&after=
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	before, err := queryTime(r, "before")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	after, err := queryTime(r, "after")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	page, err := h.messages.List(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), service.ListQuery{
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 0),
		Before: before,
		After:  after,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.AppendInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ConversationID = chi.URLParam(r, "id")
	req.SenderID = middleware.GetUserID(r.Context())
	msg, err := h.messages.Append(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessage(r.Context(), msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.messages.Edit(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessageUpdated(r.Context(), msg)
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.Delete(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessageDeleted(r.Context(), msg)
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
