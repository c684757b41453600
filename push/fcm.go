package push

import (
	"bytes"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// FCMSender posts notifications to an FCM compatible HTTP endpoint.
type FCMSender struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewFCMSender(endpoint, serverKey string, timeout time.Duration) *FCMSender {
	return &FCMSender{endpoint: endpoint, serverKey: serverKey, client: &http.Client{Timeout: timeout}}
}

type fcmMessage struct {
	To           string            `json:"to"`
	Priority     string            `json:"priority"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
	Android      fcmAndroid        `json:"android"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

func (s *FCMSender) Send(ctx context.Context, deviceToken string, n domain.Notification) error {
	body, err := json.Marshal(fcmMessage{
		To:           deviceToken,
		Priority:     "high",
		Notification: fcmNotification{Title: n.Title, Body: n.Body},
		Data:         map[string]string{"chatId": n.ConversationID.String()},
		Android:      fcmAndroid{Priority: "high"},
	})
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	if s.serverKey != "" {
		request.Header.Set("Authorization", "key="+s.serverKey)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("fcm responded %d: %s", response.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// LogSender only logs, used when no push endpoint is configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, deviceToken string, n domain.Notification) error {
	s.log.Info("Push notification", "token", deviceToken, "title", n.Title, "conversation_id", n.ConversationID)
	return nil
}
