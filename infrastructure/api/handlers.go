package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type Authenticator interface {
	Register(ctx context.Context, req auth.RegisterRequest) (services.Session, error)
	Login(ctx context.Context, req auth.LoginRequest) (services.Session, error)
}

type Users interface {
	GetProfile(ctx context.Context, id domain.UserID) (domain.Profile, error)
	UpdateProfile(ctx context.Context, caller, id domain.UserID, req services.UpdateUserRequest) (domain.Profile, error)
	SubscribePush(ctx context.Context, caller domain.UserID, req services.PushSubscriptionRequest) error
}

type Chats interface {
	CreateChat(ctx context.Context, caller domain.UserID, req services.CreateChatRequest) (domain.Conversation, error)
	UpdateChat(ctx context.Context, caller domain.UserID, id domain.ConversationID, req services.UpdateChatRequest) (domain.Conversation, error)
	ListChats(ctx context.Context, caller, userID domain.UserID) ([]domain.Conversation, error)
	History(ctx context.Context, caller domain.UserID, id domain.ConversationID, page, limit int) ([]event.MessageEvent, error)
}

// SendMessageRequest accepts conversationId as an alias of chatId.
type SendMessageRequest struct {
	ChatID         domain.ConversationID `json:"chatId"`
	ConversationID domain.ConversationID `json:"conversationId"`
	Content        string                `json:"content"`
	MediaRef       string                `json:"mediaRef"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.GetProfile(r.Context(), domain.UserID(mux.Vars(r)["id"]))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	profile, err := h.users.UpdateProfile(r.Context(), caller, domain.UserID(mux.Vars(r)["id"]), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) SubscribePush(w http.ResponseWriter, r *http.Request) {
	var req services.PushSubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	if err := h.users.SubscribePush(r.Context(), caller, req); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "subscribed"})
}

func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req services.CreateChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	conversation, err := h.chats.CreateChat(r.Context(), caller, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conversation)
}

func (h *Handler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	conversation, err := h.chats.UpdateChat(r.Context(), caller, domain.ConversationID(mux.Vars(r)["chatId"]), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserIDFromContext(r.Context())
	conversations, err := h.chats.ListChats(r.Context(), caller, domain.UserID(mux.Vars(r)["userId"]))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

// SendMessage answers 201 once the message is stored, even if the live fan-out failed.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	conversationID := req.ChatID
	if conversationID == "" {
		conversationID = req.ConversationID
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	message, err := h.delivery.SendMessage(r.Context(), domain.SendMessageCommand{
		ConversationID: conversationID,
		SenderID:       caller,
		Content:        req.Content,
		MediaRef:       req.MediaRef,
	})
	if err != nil && !(stderrors.Is(err, errors.ErrPublish) && message.ID != "") {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	messages, err := h.chats.History(r.Context(), caller, domain.ConversationID(mux.Vars(r)["chatId"]), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if messages == nil {
		messages = []event.MessageEvent{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.fail(w, r, fmt.Errorf("%w: malformed body: %v", errors.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.log.Debug("Request refused", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": errors.Code(err)})
}

func queryInt(r *http.Request, name string) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errors.ErrValidation, name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
