package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/whitechapel007/chat-app-pern/internal/middleware"
	"github.com/whitechapel007/chat-app-pern/internal/model"
	"github.com/whitechapel007/chat-app-pern/internal/service"
)

// Publisher доставляет события о сообщениях подключённым участникам.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *model.Message, extra ...string)
	PublishMessageUpdated(ctx context.Context, msg *model.Message)
	PublishMessageDeleted(ctx context.Context, msg *model.Message)
}

type ConversationHandler struct {
	convs    *service.ConversationService
	messages *service.MessageService
	pub      Publisher
}

func NewConversationHandler(convs *service.ConversationService, messages *service.MessageService, pub Publisher) *ConversationHandler {
	return &ConversationHandler{convs: convs, messages: messages, pub: pub}
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.convs.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.Get(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) GetOrCreateDirect(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, err := h.convs.GetOrCreateDirect(r.Context(), middleware.GetUserID(r.Context()), req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SendDirect находит или создаёт личную беседу с {userId} и добавляет в неё сообщение.
func (h *ConversationHandler) SendDirect(w http.ResponseWriter, r *http.Request) {
	var req service.AppendInput
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.messages.SendDirect(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "userId"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessage(r.Context(), msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGroupInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CreatorID = middleware.GetUserID(r.Context())
	conv, msg, err := h.convs.CreateGroup(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessage(r.Context(), msg)
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateGroupInput
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, msg, err := h.convs.UpdateGroup(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessage(r.Context(), msg)
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, msg, err := h.convs.AddParticipant(r.Context(), chi.URLParam(r, "id"), req.UserID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessage(r.Context(), msg)
	writeJSON(w, http.StatusCreated, p)
}

// RemoveParticipant — выход из группы (свой id) или исключение участника админом.
// Исключённый пользователь тоже получает системное сообщение.
func (h *ConversationHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "userId")
	msg, err := h.convs.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), target, middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h.pub.PublishMessage(r.Context(), msg, target)
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
