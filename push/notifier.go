// Package push delivers notifications to the devices of participants without a live connection.
package push

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
)

// Notifier sends one notification per registered device token of a user.
type Notifier struct {
	users  contract.IUserRepository
	sender contract.IPushSender
	log    *slog.Logger
}

func NewNotifier(users contract.IUserRepository, sender contract.IPushSender, log *slog.Logger) *Notifier {
	return &Notifier{users: users, sender: sender, log: log}
}

// Notify is a no-op for users without device tokens.
// Every token is tried, failures are joined into a single ErrNotification.
func (n *Notifier) Notify(ctx context.Context, userID domain.UserID, notification domain.Notification) error {
	user, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: load user %s: %w", errors.ErrNotification, userID, err)
	}
	if len(user.DeviceTokens) == 0 {
		n.log.Debug("No device token, notification skipped", "user_id", userID)
		return nil
	}

	var errs []error
	for _, token := range user.DeviceTokens {
		if err = n.sender.Send(ctx, token, notification); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: user %s: %w", errors.ErrNotification, userID, stderrors.Join(errs...))
	}
	return nil
}
