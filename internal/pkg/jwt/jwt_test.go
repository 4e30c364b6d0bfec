package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RoundTrip(t *testing.T) {
	svc := New("secret", time.Hour)

	token, err := svc.GenerateToken(42, "agent")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "agent", claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestService_RejectsWrongSecret(t *testing.T) {
	token, err := New("one", time.Hour).GenerateToken(1, "")
	require.NoError(t, err)

	_, err = New("two", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_RejectsExpired(t *testing.T) {
	svc := New("secret", time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := svc.GenerateToken(1, "")
	require.NoError(t, err)

	_, err = New("secret", time.Minute).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_RejectsMissingUser(t *testing.T) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = New("secret", time.Hour).ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}
