// Package api is the REST surface of the relay, mounted under /api.
package api

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// MessageSender runs the delivery pipeline for messages posted over REST.
type MessageSender interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (event.MessageEvent, error)
}

type Handler struct {
	auth     Authenticator
	users    Users
	chats    Chats
	delivery MessageSender
	limiter  contract.IRateLimiter
	log      *slog.Logger
}

func NewHandler(authenticator Authenticator, users Users, chats Chats, delivery MessageSender, log *slog.Logger) *Handler {
	return &Handler{auth: authenticator, users: users, chats: chats, delivery: delivery, log: log}
}

// WithRateLimiter caps the requests of each client on /api and on the /ws upgrade.
func (h *Handler) WithRateLimiter(limiter contract.IRateLimiter) *Handler {
	h.limiter = limiter
	return h
}

// Router mounts the REST routes and the realtime endpoint on /ws.
// Every /api route but /api/auth requires a bearer token.
func (h *Handler) Router(verifier contract.ICredentialVerifier, realtime http.Handler) *mux.Router {
	r := mux.NewRouter()
	if h.limiter != nil {
		r.Use(h.rateLimit)
	}
	r.HandleFunc("/up", h.Up).Methods(http.MethodGet)
	if realtime != nil {
		r.Handle("/ws", realtime).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware(verifier))
	protected.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)
	protected.HandleFunc("/users/{id}", h.UpdateUser).Methods(http.MethodPut)
	protected.HandleFunc("/push/subscribe", h.SubscribePush).Methods(http.MethodPost)
	protected.HandleFunc("/chats", h.CreateChat).Methods(http.MethodPost)
	protected.HandleFunc("/chats/{chatId}", h.UpdateChat).Methods(http.MethodPut)
	protected.HandleFunc("/chats/{userId}", h.ListChats).Methods(http.MethodGet)
	protected.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{chatId}", h.History).Methods(http.MethodGet)
	return r
}

// WithCORS lets browsers of the allowed origins call the api.
func WithCORS(handler http.Handler, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	return c.Handler(handler)
}

func (h *Handler) Up(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
