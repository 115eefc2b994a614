package video

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository/memory"
	"chatcore-backend/internal/service/signaling"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func newRouter() *gin.Engine {
	h := NewHandler(signaling.NewService(memory.NewCallSessionRepository(), nil, nil, nil))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			c.Set("user_id", id)
		}
		c.Next()
	})
	calls := r.Group("/v1/calls")
	calls.POST("", h.StartCall)
	calls.GET("/:id", h.GetCall)
	calls.DELETE("/:id", h.EndCall)
	calls.PUT("/:id/signal", h.PublishSignal)
	calls.GET("/:id/signal", h.ReadSignal)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, caller uuid.UUID, body any) (int, json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", caller.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env.Data
}

func TestOfferAnswerExchange(t *testing.T) {
	r := newRouter()
	alice, bob := uuid.New(), uuid.New()

	code, data := do(t, r, http.MethodPost, "/v1/calls", alice, gin.H{"peer_id": bob})
	require.Equal(t, http.StatusCreated, code)
	var session domain.CallSession
	require.NoError(t, json.Unmarshal(data, &session))
	base := "/v1/calls/" + session.ID.String()

	// Nothing published yet
	code, data = do(t, r, http.MethodGet, base+"/signal", bob, nil)
	require.Equal(t, http.StatusOK, code)
	var empty domain.SignalResponse
	require.NoError(t, json.Unmarshal(data, &empty))
	assert.False(t, empty.Present)

	code, _ = do(t, r, http.MethodPut, base+"/signal", alice, gin.H{"signal": "v=0 offer"})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodPut, base+"/signal", bob, gin.H{"signal": "v=0 answer"})
	require.Equal(t, http.StatusOK, code)

	code, data = do(t, r, http.MethodGet, base+"/signal", bob, nil)
	require.Equal(t, http.StatusOK, code)
	var offer domain.SignalResponse
	require.NoError(t, json.Unmarshal(data, &offer))
	assert.Equal(t, "v=0 offer", offer.Signal)
	assert.Equal(t, domain.RoleOfferer, offer.Role)

	code, data = do(t, r, http.MethodGet, base+"/signal", alice, nil)
	require.Equal(t, http.StatusOK, code)
	var answer domain.SignalResponse
	require.NoError(t, json.Unmarshal(data, &answer))
	assert.Equal(t, "v=0 answer", answer.Signal)

	// Outsiders are rejected
	code, _ = do(t, r, http.MethodGet, base, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, r, http.MethodDelete, base, bob, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, http.MethodGet, base, alice, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartCallValidation(t *testing.T) {
	r := newRouter()
	alice := uuid.New()

	code, _ := do(t, r, http.MethodPost, "/v1/calls", alice, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPost, "/v1/calls", alice, gin.H{"peer_id": alice})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStartCallWithSessionID(t *testing.T) {
	r := newRouter()
	alice, bob := uuid.New(), uuid.New()
	sessionID := uuid.New()

	code, data := do(t, r, http.MethodPost, "/v1/calls", alice, gin.H{"peer_id": bob, "session_id": sessionID})
	require.Equal(t, http.StatusCreated, code)
	var session domain.CallSession
	require.NoError(t, json.Unmarshal(data, &session))
	assert.Equal(t, sessionID, session.ID)

	// A stranger cannot take over an existing session id
	code, _ = do(t, r, http.MethodPost, "/v1/calls", uuid.New(), gin.H{"peer_id": bob, "session_id": sessionID})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestPublishEmptySignal(t *testing.T) {
	r := newRouter()

	code, _ := do(t, r, http.MethodPut, "/v1/calls/"+uuid.NewString()+"/signal", uuid.New(), gin.H{"signal": ""})

	assert.Equal(t, http.StatusBadRequest, code)
}
