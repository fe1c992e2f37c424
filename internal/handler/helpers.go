package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAppError отображает kind ошибки в HTTP-статус. Внутренние ошибки логируются, клиенту — общий текст.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindAuthorization:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindAuthentication:
		status = http.StatusUnauthorized
		if errors.Is(err, identity.ErrTooManyAttempts) {
			status = http.StatusTooManyRequests
		}
	default:
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, apperr.Message(err))
}

// decodeJSON читает тело запроса в dst. Пустое тело — ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryTime разбирает RFC 3339 из query; отсутствующий параметр — nil.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, apperr.Validation("%s must be an RFC 3339 timestamp", key)
	}
	return &t, nil
}
