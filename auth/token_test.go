package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-very-long-test-secret", time.Hour)

	// Given a token issued for user 42
	token, err := manager.GenerateToken(42, "alice", []string{"user"})
	req.NoError(err)

	// When it is validated
	claims, err := manager.ValidateToken(token)

	// Then the identity is recovered
	req.NoError(err)
	id, err := claims.ID()
	req.NoError(err)
	req.Equal(domain.UserID(42), id)
	req.Equal("alice", claims.Username)
	req.Equal([]string{"user"}, claims.Roles)
}

func TestTokenManager_Rejections(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-very-long-test-secret", time.Hour)
	expired := NewTokenManager("a-very-long-test-secret", -time.Minute)
	other := NewTokenManager("another-secret-entirely", time.Hour)

	expiredToken, err := expired.GenerateToken(1, "bob", nil)
	req.NoError(err)
	foreignToken, err := other.GenerateToken(1, "bob", nil)
	req.NoError(err)
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: "1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expiredToken},
		{"wrong secret", foreignToken},
		{"unsigned", noneToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrUnauthorized)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := require.New(t)

	withHeader := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	withHeader.Header.Set("Authorization", "Bearer abc")
	req.Equal("abc", TokenFromRequest(withHeader))

	withCookie := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	withCookie.AddCookie(&http.Cookie{Name: CookieName, Value: "def"})
	req.Equal("def", TokenFromRequest(withCookie))

	req.Empty(TokenFromRequest(httptest.NewRequest(http.MethodGet, "/api/chats", nil)))
}
