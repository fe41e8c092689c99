package handlers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, sub string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(expiresIn).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestUserFromHeader(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, testSecret, userID.String(), time.Hour)

	got, err := userFromHeader("Bearer "+token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	// Lowercase scheme and raw token are tolerated.
	got, err = userFromHeader("bearer "+token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	got, err = userFromHeader(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestUserFromHeaderRejections(t *testing.T) {
	userID := uuid.New()

	cases := map[string]string{
		"empty header":  "",
		"scheme only":   "Bearer ",
		"garbage token": "Bearer not.a.jwt",
		"wrong secret":  "Bearer " + signToken(t, "other-secret", userID.String(), time.Hour),
		"expired":       "Bearer " + signToken(t, testSecret, userID.String(), -time.Hour),
		"bad subject":   "Bearer " + signToken(t, testSecret, "not-a-uuid", time.Hour),
	}
	for name, header := range cases {
		_, err := userFromHeader(header, testSecret)
		assert.Error(t, err, name)
	}
}

func TestUserFromHeaderRejectsUnsignedToken(t *testing.T) {
	// alg=none must never be accepted.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": uuid.New().String(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = userFromHeader("Bearer "+token, testSecret)
	assert.Error(t, err)
}
