package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"strings"
)

type UpdateUserRequest struct {
	Username string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type PushSubscriptionRequest struct {
	FCMToken string `json:"fcmToken" validate:"required"`
}

// UserService exposes profiles and device registration, never credentials.
type UserService struct {
	users contract.IUserRepository
}

func NewUserService(users contract.IUserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetProfile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}

// UpdateProfile only lets a user change their own profile.
func (s *UserService) UpdateProfile(ctx context.Context, caller, id domain.UserID, req UpdateUserRequest) (domain.Profile, error) {
	if caller != id {
		return domain.Profile{}, fmt.Errorf("%w: %s can't update %s", errors.ErrAuthorization, caller, id)
	}
	if err := auth.Validate(req); err != nil {
		return domain.Profile{}, err
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.Email != "" {
		user.Email = strings.TrimSpace(req.Email)
	}
	if err = s.users.UpdateUser(ctx, user); err != nil {
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}

func (s *UserService) SubscribePush(ctx context.Context, caller domain.UserID, req PushSubscriptionRequest) error {
	if err := auth.Validate(req); err != nil {
		return err
	}
	return s.users.AddDeviceToken(ctx, caller, req.FCMToken)
}
