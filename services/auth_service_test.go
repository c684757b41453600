package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockIUserRepository(ctrl)
	tokens := auth.NewTokenManager("a-test-secret", time.Hour)
	svc := NewAuthService(mockRepo, tokens)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)

		// The repository receives a hash, never the plain password
		mockRepo.EXPECT().
			CreateUser(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, u domain.User) (domain.User, error) {
				req.NotEqual("secret-password", u.PasswordHash)
				req.Equal("alice", u.Username)
				u.ID = "user-uuid"
				return u, nil
			}).
			Times(1)

		session, err := svc.Register(ctx, auth.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "secret-password"})

		req.NoError(err)
		req.Equal(domain.UserID("user-uuid"), session.User.ID)
		userID, err := tokens.Verify(session.Token)
		req.NoError(err)
		req.Equal(domain.UserID("user-uuid"), userID)
	})

	t.Run("should fail when the request is invalid", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register(ctx, auth.RegisterRequest{Username: "al", Email: "alice@example.com", Password: "123"})

		req.ErrorIs(err, errors.ErrValidation)
	})

	t.Run("should fail when user already exists", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().
			CreateUser(gomock.Any(), gomock.Any()).
			Return(domain.User{}, errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(ctx, auth.RegisterRequest{Username: "alice", Email: "dup@example.com", Password: "secret-password"})

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, auth.NewTokenManager("a-test-secret", time.Hour))
	hashedPassword, err := auth.HashPassword("secret-password")
	require.NoError(t, err)
	storedUser := domain.User{ID: "uuid-123", Username: "alice", Email: "alice@example.com", PasswordHash: hashedPassword}

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().GetUserByEmail(gomock.Any(), "alice@example.com").Return(storedUser, nil).Times(1)

		session, err := svc.Login(ctx, auth.LoginRequest{Email: "alice@example.com", Password: "secret-password"})

		req.NoError(err)
		req.NotEmpty(session.Token)
		req.Equal("alice", session.User.Username)
	})

	t.Run("should return invalid credentials on wrong password", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().GetUserByEmail(gomock.Any(), "alice@example.com").Return(storedUser, nil).Times(1)

		_, err := svc.Login(ctx, auth.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().GetUserByEmail(gomock.Any(), "unknown@example.com").Return(domain.User{}, errors.ErrUserNotFound).Times(1)

		_, err := svc.Login(ctx, auth.LoginRequest{Email: "unknown@example.com", Password: "anything"})

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
