package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/samikhan1239/Fiver/internal/config"
	"github.com/samikhan1239/Fiver/internal/domain"
	"github.com/samikhan1239/Fiver/internal/security"
	"github.com/samikhan1239/Fiver/internal/service"
	"github.com/samikhan1239/Fiver/internal/ws"
)

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware. The REST surface is the collaborator contract the live gateway
// relies on: history fetch, mark-read, unread count and the conversation
// inbox, all reading and writing the same message store.
func NewRouter(
	cfg *config.Config,
	msgSvc *service.MessageService,
	users domain.UserRepository,
	registry *ws.Registry,
	router *ws.Router,
	tokens *security.TokenService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokens, users))

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", handleHistory(msgSvc))
				r.Post("/", handleCreateMessage(msgSvc, router))
				r.Post("/mark-read", handleMarkRead(msgSvc))
				r.Get("/unread", handleUnreadCount(msgSvc))
				r.Get("/conversations", handleConversations(msgSvc))
			})

			r.Get("/users/{userID}", handleGetUser(users))
		})
	})

	r.Get("/ws", ws.MakeHandler(registry, router, msgSvc, tokens, cfg.CORSOrigins))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
