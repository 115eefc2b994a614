package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func TestNewJWTManager(t *testing.T) {
	manager := NewJWTManager(testSecret, "chatcore-api", 15*time.Minute)

	assert.NotNil(t, manager)
	assert.Equal(t, testSecret, manager.secretKey)
	assert.Equal(t, "chatcore-api", manager.audience)
	assert.Equal(t, 15*time.Minute, manager.accessTokenDuration)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager(testSecret, "chatcore-api", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "alice", "user")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	manager := NewJWTManager(testSecret, "chatcore-api", time.Nanosecond)

	token, err := manager.GenerateAccessToken(uuid.New(), "alice", "user")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	claims, err := manager.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
	assert.True(t, IsTokenExpired(token))
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewJWTManager(testSecret, "chatcore-api", time.Minute)
	verifier := NewJWTManager("another-secret-key-for-testing-purposes", "chatcore-api", time.Minute)

	token, err := issuer.GenerateAccessToken(uuid.New(), "alice", "user")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_WrongAudience(t *testing.T) {
	issuer := NewJWTManager(testSecret, "some-other-api", time.Minute)
	verifier := NewJWTManager(testSecret, "chatcore-api", time.Minute)

	token, err := issuer.GenerateAccessToken(uuid.New(), "alice", "user")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	manager := NewJWTManager(testSecret, "", time.Minute)
	claims := &Claims{
		UserID: uuid.New(),
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, claims).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_MissingUserID(t *testing.T) {
	manager := NewJWTManager(testSecret, "chatcore-api", time.Minute)

	token, err := manager.GenerateAccessToken(uuid.Nil, "ghost", "user")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestIsTokenExpired_Garbage(t *testing.T) {
	assert.True(t, IsTokenExpired("not-a-token"))
}
