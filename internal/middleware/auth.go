package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
)

// TokenFromRequest ищет токен по порядку: Authorization: Bearer, query token, cookie, X-Auth-Token.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Auth-Token"))
}

// Auth пропускает запрос дальше только с действительным токеном; пользователь кладётся в контекст.
func Auth(authn identity.Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := TokenFromRequest(r, cookieName)
			p, err := authn.Authenticate(r.Context(), tok)
			if err != nil {
				status := http.StatusUnauthorized
				if apperr.KindOf(err) != apperr.KindAuthentication {
					logger.Errorf("auth middleware token=%s: %v", MaskToken(tok), err)
					status = http.StatusInternalServerError
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": apperr.Message(err)})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
