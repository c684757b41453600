package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestToken_Generate_And_Verify(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-test-secret", time.Hour)

	token, err := manager.GenerateToken("user-123")
	req.NoError(err)

	userID, err := manager.Verify(token)
	req.NoError(err)
	req.Equal(domain.UserID("user-123"), userID)
}

func TestToken_Expired(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-test-secret", time.Hour)
	issuedAt := time.Now().Add(-2 * time.Hour)
	manager.now = func() time.Time { return issuedAt }

	token, err := manager.GenerateToken("user-123")
	req.NoError(err)

	// Verified two hours later
	manager.now = time.Now
	_, err = manager.Verify(token)
	req.ErrorIs(err, errors.ErrAuthentication)
}

func TestToken_Rejected(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-test-secret", time.Hour)

	foreign, err := NewTokenManager("another-secret", time.Hour).GenerateToken("user-123")
	req.NoError(err)

	// "none" signed tokens are refused whatever the claims
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: "user-123"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	for _, token := range []string{"", "garbage", foreign, unsigned} {
		_, err = manager.Verify(token)
		req.ErrorIs(err, errors.ErrAuthentication)
	}
}
