package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/whitechapel007/chat-app-pern/internal/config"
	"github.com/whitechapel007/chat-app-pern/internal/fileserver"
	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/middleware"
	"github.com/whitechapel007/chat-app-pern/internal/presence"
	"github.com/whitechapel007/chat-app-pern/internal/service"
	"github.com/whitechapel007/chat-app-pern/internal/store"
	"github.com/whitechapel007/chat-app-pern/internal/ws"
)

type Deps struct {
	Identity *identity.Service
	Convs    *service.ConversationService
	Messages *service.MessageService
	Users    store.Querier
	Registry *presence.Registry
	Hub      *ws.Hub
	// Limiter; nil — лимиты по умолчанию.
	Limiter *middleware.RateLimiter
}

// NewRouter собирает HTTP API: /api/* (JSON), /uploads/{filename}, /ws и /health.
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	authH := NewAuthHandler(d.Identity, CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
		Domain: cfg.Auth.CookieDomain,
	})
	convH := NewConversationHandler(d.Convs, d.Messages, d.Hub)
	msgH := NewMessageHandler(d.Messages, d.Hub)
	userH := NewUserHandler(d.Users, d.Registry)
	fileH := NewFileHandler(fileserver.New(cfg.Uploads.Dir, cfg.MaxUploadBytes()))
	wsH := NewWSHandler(d.Hub, d.Identity, cfg.Auth.CookieName, cfg.CORSAllowedOrigins)
	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(0, 0, 0)
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/uploads/{filename}", fileH.Serve)
	r.Get("/ws", wsH.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.ByIP)
		r.Post("/auth/register", authH.Register)
		r.Post("/auth/login", authH.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(d.Identity, cfg.Auth.CookieName))
			r.Use(limiter.ByUser)
			r.Post("/auth/logout", authH.Logout)
			r.Get("/auth/me", authH.Me)
			r.Put("/auth/password", authH.ChangePassword)

			r.Get("/users", userH.List)
			r.Get("/users/online", userH.Online)
			r.Get("/users/for-conversation", userH.ForConversation)
			r.Put("/users/me", userH.UpdateProfile)
			r.Get("/users/{id}", userH.GetUser)

			r.Get("/conversations", convH.List)
			r.Post("/conversations/direct", convH.GetOrCreateDirect)
			r.Post("/conversations/direct/{userId}/messages", convH.SendDirect)
			r.Post("/conversations/group", convH.CreateGroup)
			r.Get("/conversations/{id}", convH.Get)
			r.Put("/conversations/{id}", convH.UpdateGroup)
			r.Post("/conversations/{id}/participants", convH.AddParticipant)
			r.Delete("/conversations/{id}/participants/{userId}", convH.RemoveParticipant)
			r.Get("/conversations/{id}/messages", msgH.List)
			r.Post("/conversations/{id}/messages", msgH.Create)
			r.Put("/messages/{id}", msgH.Edit)
			r.Delete("/messages/{id}", msgH.Delete)

			r.Post("/uploads", fileH.Upload)
		})
	})
	return r
}
