package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	tok, err := m.GenerateToken(42, "alice")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "user:42", claims.SubjectID())
}

func TestJWTManager_RejectsWrongSecretAndExpired(t *testing.T) {
	tok, err := NewJWTManager("other", time.Hour).GenerateToken(1, "bob")
	require.NoError(t, err)
	_, err = NewJWTManager("secret", time.Hour).VerifyToken(tok)
	assert.Error(t, err)

	m := NewJWTManager("secret", -time.Minute)
	expired, err := m.GenerateToken(1, "bob")
	require.NoError(t, err)
	_, err = m.VerifyToken(expired)
	assert.Error(t, err)
}
