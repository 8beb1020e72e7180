package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-sim/agora/internal/auth"
)

func newManager(t *testing.T) *auth.JWTManager {
	t.Helper()
	m, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	return m
}

func TestIssueAndValidate(t *testing.T) {
	m := newManager(t)

	token, exp, err := m.IssueToken("buyer-0")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, exp.After(time.Now()))

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "buyer-0", claims.AgentID)
	assert.Equal(t, "buyer-0", claims.Subject)
	assert.Equal(t, "agora", claims.Issuer)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := newManager(t)

	_, err := m.ValidateToken("not-a-token")
	require.Error(t, err)
}

func TestValidateRejectsForeignKey(t *testing.T) {
	m := newManager(t)
	other := newManager(t)

	token, _, err := other.IssueToken("buyer-0")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	m, err := auth.NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := m.IssueToken("buyer-0")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	m := newManager(t)

	// An HMAC token signed with an arbitrary secret must be refused even if
	// its claims look right.
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "buyer-0",
			Issuer:    "agora",
			Audience:  jwt.ClaimStrings{"agora"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		AgentID: "buyer-0",
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.ValidateToken(forged)
	require.Error(t, err)
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	m := newManager(t)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "buyer-0",
			Issuer:    "agora",
			Audience:  jwt.ClaimStrings{"someone-else"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		AgentID: "buyer-0",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	require.Error(t, err)
}
