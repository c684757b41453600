package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
)

// Session is what register and login hand back to the client.
type Session struct {
	Token string         `json:"token"`
	User  domain.Profile `json:"user"`
}

type AuthService struct {
	userRepository contract.IUserRepository
	tokens         *auth.TokenManager
}

func NewAuthService(repo contract.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) (Session, error) {
	// Validation runs before any expensive hashing
	if err := auth.Validate(req); err != nil {
		return Session{}, err
	}

	// Hashing stays in the service, the repository never sees plain passwords
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(ctx, domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		return Session{}, err
	}
	return s.session(user)
}

func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (Session, error) {
	if err := auth.Validate(req); err != nil {
		return Session{}, err
	}

	// Same error whatever failed, to prevent user enumeration
	user, err := s.userRepository.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return Session{}, errors.ErrInvalidCredentials
	}
	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *AuthService) session(user domain.User) (Session, error) {
	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user.Profile()}, nil
}
