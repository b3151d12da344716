package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := SignJWT(Claims{Sub: "google:123", Email: "owner@example.com", Name: "Owner"})
	require.NoError(t, err)

	claims, err := VerifyJWT(token)
	require.NoError(t, err)
	require.Equal(t, "google:123", claims.Sub)
	require.Equal(t, "owner@example.com", claims.Email)
	require.Greater(t, claims.Exp, claims.Iat)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	past := time.Now().Add(-2 * time.Hour)
	expired, err := SignJWT(Claims{Sub: "u1", Iat: past.Unix(), Exp: past.Add(time.Hour).Unix()})
	require.NoError(t, err)
	_, err = VerifyJWT(expired)
	require.True(t, errors.Is(err, ErrInvalidToken))

	t.Setenv("JWT_SECRET", "other-secret")
	foreign, err := SignJWT(Claims{Sub: "u1"})
	require.NoError(t, err)
	t.Setenv("JWT_SECRET", "test-secret")
	_, err = VerifyJWT(foreign)
	require.True(t, errors.Is(err, ErrInvalidToken))
}

func TestSignRequiresSubject(t *testing.T) {
	_, err := SignJWT(Claims{Email: "x@example.com"})
	require.Error(t, err)
}
