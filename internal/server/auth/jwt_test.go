package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peertutor/tutorchat/internal/common"
)

var secret = []byte("test-secret")

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("u-1", "s-1", secret, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, sessionID, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", userID)
	assert.Equal(t, "s-1", sessionID)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("u-1", "s-1", secret, time.Minute)
	require.NoError(t, err)

	_, _, err = ParseToken(token, []byte("other-secret"))
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken("u-1", "s-1", secret, -time.Minute)
	require.NoError(t, err)

	_, _, err = ParseToken(token, secret)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestParseToken_Garbage(t *testing.T) {
	_, _, err := ParseToken("not.a.token", secret)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}
