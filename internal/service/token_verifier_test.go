package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

func signTestToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestTokenVerifierValidateToken(t *testing.T) {
	verifier := NewTokenVerifier("s3cret")
	token := signTestToken(t, jwt.SigningMethodHS256, []byte("s3cret"), models.JWTClaims{
		UserID: "registrar-1",
		Role:   models.RoleRegistrar,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "registrar-1", claims.UserID)
	assert.Equal(t, models.RoleRegistrar, claims.Role)
}

func TestTokenVerifierRejects(t *testing.T) {
	verifier := NewTokenVerifier("s3cret")
	future := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := map[string]string{
		"wrong secret": signTestToken(t, jwt.SigningMethodHS256, []byte("other"), models.JWTClaims{UserID: "u", RegisteredClaims: future}),
		"expired": signTestToken(t, jwt.SigningMethodHS256, []byte("s3cret"), models.JWTClaims{
			UserID:           "u",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		}),
		"other algorithm": signTestToken(t, jwt.SigningMethodHS512, []byte("s3cret"), models.JWTClaims{UserID: "u", RegisteredClaims: future}),
		"no user":         signTestToken(t, jwt.SigningMethodHS256, []byte("s3cret"), models.JWTClaims{RegisteredClaims: future}),
		"garbage":         "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
