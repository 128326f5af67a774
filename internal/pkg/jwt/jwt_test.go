package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "relay-test-secret"

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestGenerateToken(t *testing.T) {
	t.Run("gateway identity round trip", func(t *testing.T) {
		token, err := GenerateToken(777001, testSecret, 24)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, int64(777001), claims.UserID)
		assert.Equal(t, issuer, claims.Issuer)
		assert.True(t, claims.ExpiresAt.After(time.Now()))
	})

	t.Run("distinct users get distinct tokens", func(t *testing.T) {
		a, err := GenerateToken(1, testSecret, 24)
		require.NoError(t, err)
		b, err := GenerateToken(2, testSecret, 24)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("negative chat ids survive", func(t *testing.T) {
		token, err := GenerateToken(-1001234567890, testSecret, 1)
		require.NoError(t, err)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, int64(-1001234567890), claims.UserID)
	})
}

func TestParseToken(t *testing.T) {
	valid, err := GenerateToken(42, testSecret, 24)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "another-secret"},
		{"garbage", "not-a-jwt-at-all", testSecret},
		{"three garbage segments", "a.b.c", testSecret},
		{"empty", "", testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(tt.token, tt.secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestParseToken_Expired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(past),
		},
	})

	claims, err := ParseToken(token, testSecret)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)

	// 0 小时有效期签发后立即过期
	zero, err := GenerateToken(42, testSecret, 0)
	require.NoError(t, err)
	_, err = ParseToken(zero, testSecret)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseToken_RejectsUnsignedToken(t *testing.T) {
	token := signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ParseToken(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestErrors(t *testing.T) {
	assert.Equal(t, "invalid token", ErrInvalidToken.Error())
	assert.Equal(t, "token has expired", ErrExpiredToken.Error())
}
