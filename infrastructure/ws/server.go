// Package ws is the websocket transport of the relay.
// Clients authenticate with ?token=, then send join, typing and message frames.
package ws

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/sink"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// CloseAuthentication is sent before closing a connection whose credential was refused.
	CloseAuthentication = 4001

	maxFrameSize = 64 * 1024
)

// Delivery is what the transport needs from the delivery pipeline.
type Delivery interface {
	Connect(userID domain.UserID, sink contract.EventSink) domain.ConnectionID
	Disconnect(ctx context.Context, connID domain.ConnectionID)
	Touch(connID domain.ConnectionID)
	Join(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, conversationID domain.ConversationID) error
	Typing(ctx context.Context, cmd domain.TypingCommand) error
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (event.MessageEvent, error)
}

type Server struct {
	delivery Delivery
	verifier contract.ICredentialVerifier
	upgrader websocket.Upgrader
	opts     sink.Options
	log      *slog.Logger
}

// NewServer accepts every origin when allowedOrigins is empty.
func NewServer(delivery Delivery, verifier contract.ICredentialVerifier, allowedOrigins []string, opts sink.Options, log *slog.Logger) *Server {
	return &Server{
		delivery: delivery,
		verifier: verifier,
		upgrader: createUpgrader(allowedOrigins),
		opts:     opts,
		log:      log,
	}
}

func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || allowed[origin] || allowed["*"]
		},
	}
}

// ServeHTTP handles GET /ws?token=<jwt>.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		s.reject(conn, "No token provided")
		return
	}
	userID, err := s.verifier.Verify(token)
	if err != nil {
		s.log.Debug("WebSocket credential refused", "error", err)
		s.reject(conn, "Invalid token")
		return
	}

	out := sink.NewWebSocketSink(conn, toFrame, s.opts, s.log)
	go out.Run()

	ctx := auth.WithUserID(r.Context(), userID)
	connID := s.delivery.Connect(userID, out)
	s.log.Info("Client connected", "connection_id", connID, "user_id", userID)
	defer func() {
		s.delivery.Disconnect(context.WithoutCancel(ctx), connID)
		_ = out.Close()
		<-out.Done()
		s.log.Info("Client disconnected", "connection_id", connID, "user_id", userID)
	}()

	s.read(ctx, conn, out, connID, userID)
}

// read processes the frames of one connection strictly in order.
func (s *Server) read(ctx context.Context, conn *websocket.Conn, out *sink.WebSocketSink, connID domain.ConnectionID, userID domain.UserID) {
	readTimeout := 2 * s.pingInterval()
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		s.delivery.Touch(connID)
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Connection read failed", "connection_id", connID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.delivery.Touch(connID)

		reply, err := s.handle(ctx, connID, userID, data)
		if errors.ClosesConnection(err) {
			_ = out.CloseWith(CloseAuthentication, "Invalid token")
			return
		}
		if err := out.Send(reply); err != nil {
			s.log.Warn("Unable to reply", "connection_id", connID, "error", err)
		}
	}
}

// handle returns the ack or error frame answering one inbound frame.
func (s *Server) handle(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, data []byte) (any, error) {
	f, err := decodeInbound(data)
	if err == nil {
		err = auth.Validate(f)
	}
	if err != nil {
		return failure(f, err), err
	}

	switch f.Type {
	case joinFrame:
		err = s.delivery.Join(ctx, connID, userID, f.conversationID())
	case typingFrame:
		err = s.delivery.Typing(ctx, domain.TypingCommand{
			ConversationID: f.conversationID(),
			UserID:         userID,
			IsTyping:       f.IsTyping,
		})
	case messageFrame:
		var message event.MessageEvent
		message, err = s.delivery.SendMessage(ctx, domain.SendMessageCommand{
			ConversationID: f.conversationID(),
			SenderID:       userID,
			Content:        f.Content,
			MediaRef:       f.MediaRef,
		})
		if err == nil {
			return ack(f, &message), nil
		}
	}
	if err != nil {
		s.log.Debug("Frame refused", "connection_id", connID, "type", f.Type, "code", errors.Code(err), "error", err)
		return failure(f, err), err
	}
	return ack(f, nil), nil
}

func (s *Server) reject(conn *websocket.Conn, reason string) {
	message := websocket.FormatCloseMessage(CloseAuthentication, reason)
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	_ = conn.Close()
}

func (s *Server) pingInterval() time.Duration {
	if s.opts.PingInterval > 0 {
		return s.opts.PingInterval
	}
	return sink.DefaultPingInterval
}
