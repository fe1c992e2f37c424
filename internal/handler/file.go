package handler

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/whitechapel007/chat-app-pern/internal/fileserver"
)

// FileHandler — загрузка вложений; ответ содержит url и messageType (IMAGE или FILE) для отправки сообщения.
type FileHandler struct {
	fileSvc *fileserver.Service
}

func NewFileHandler(fileSvc *fileserver.Service) *FileHandler {
	return &FileHandler{fileSvc: fileSvc}
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.fileSvc.Upload(w, r)
}

func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.fileSvc.Serve(w, r, filepath.Base(chi.URLParam(r, "filename")))
}
