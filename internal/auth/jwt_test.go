package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier("secret")
	tok := signToken(t, "secret", Claims{
		UserID: "u1",
		OrgID:  "org1",
		Name:   "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	ident, err := v.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", ident.UserID)
	require.Equal(t, "org1", ident.OrgID)
	require.Equal(t, "Alice", ident.Name)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier("secret")

	_, err := v.Verify("")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongKey := signToken(t, "other-secret", Claims{UserID: "u1"})
	_, err = v.Verify(wrongKey)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := signToken(t, "secret", Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	noUser := signToken(t, "secret", Claims{})
	_, err = v.Verify(noUser)
	require.ErrorIs(t, err, ErrInvalidToken)
}
