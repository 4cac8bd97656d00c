package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateULIDIsSortableAndUnique(t *testing.T) {
	a := GenerateULID()
	time.Sleep(2 * time.Millisecond)
	b := GenerateULID()

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestVerifyAccessKeyPlaintext(t *testing.T) {
	assert.True(t, VerifyAccessKey("secret", "secret"))
	assert.False(t, VerifyAccessKey("secret", "wrong"))
	assert.False(t, VerifyAccessKey("", "anything"))
}

func TestVerifyAccessKeyBcrypt(t *testing.T) {
	hashed, err := HashAccessKey("secret")
	require.NoError(t, err)

	assert.True(t, VerifyAccessKey(hashed, "secret"))
	assert.False(t, VerifyAccessKey(hashed, "wrong"))
}

func TestOperatorTokenRoundTrip(t *testing.T) {
	token, err := GenerateOperatorToken("op-1", "jwt-secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "jwt-secret")
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims["sub"])
	assert.True(t, IsOperatorClaims(claims))

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := GenerateOperatorToken("op-1", "jwt-secret", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "jwt-secret")
	assert.Error(t, err)
}
