package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/repository/memory"
	"chatcore-backend/pkg/push"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(repo push.TokenRepository, caller uuid.UUID) *gin.Engine {
	h := NewHandler(push.NewService(push.NoopProvider{}, repo, nil))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if caller != uuid.Nil {
			c.Set("user_id", caller)
		}
		c.Next()
	})
	r.POST("/v1/push/tokens", h.RegisterToken)
	r.DELETE("/v1/push/tokens", h.UnregisterToken)
	return r
}

func do(t *testing.T, r *gin.Engine, method string, body any) int {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, "/v1/push/tokens", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRegisterAndUnregisterToken(t *testing.T) {
	repo := memory.NewPushTokenRepository()
	alice := uuid.New()
	r := newRouter(repo, alice)

	// Execute
	code := do(t, r, http.MethodPost, gin.H{"token": "device-1", "type": "fcm", "platform": "android"})

	// Assert
	require.Equal(t, http.StatusCreated, code)
	tokens, err := repo.GetByUserID(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, push.TokenTypeFCM, tokens[0].Type)

	code = do(t, r, http.MethodDelete, gin.H{"token": "device-1"})
	require.Equal(t, http.StatusOK, code)
	tokens, err = repo.GetByUserID(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestRegisterTokenValidation(t *testing.T) {
	r := newRouter(memory.NewPushTokenRepository(), uuid.New())

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, gin.H{"token": "x", "type": "sms"}))
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, gin.H{"token": "x", "type": "apns", "platform": "palm"}))
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, gin.H{"type": "apns"}))
}

func TestRegisterTokenUnauthenticated(t *testing.T) {
	r := newRouter(memory.NewPushTokenRepository(), uuid.Nil)

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, gin.H{"token": "x", "type": "fcm"}))
}
