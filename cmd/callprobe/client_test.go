package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	videoHandler "chatcore-backend/internal/handler/http/video"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/repository/memory"
	"chatcore-backend/internal/service/signaling"
	"chatcore-backend/pkg/jwt"
)

func newExchange(t *testing.T) (*httptest.Server, *jwt.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := jwt.NewJWTManager("callprobe-test-secret-callprobe-test", "chatcore-api", time.Hour)
	h := videoHandler.NewHandler(signaling.NewService(memory.NewCallSessionRepository(), nil, nil, nil))

	r := gin.New()
	calls := r.Group("/v1/calls", middleware.AuthMiddleware(manager, nil))
	calls.POST("", h.StartCall)
	calls.PUT("/:id/signal", h.PublishSignal)
	calls.GET("/:id/signal", h.ReadSignal)
	calls.DELETE("/:id", h.EndCall)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, manager
}

func clientFor(t *testing.T, srv *httptest.Server, manager *jwt.JWTManager, user uuid.UUID) *exchangeClient {
	t.Helper()
	token, err := manager.GenerateAccessToken(user, user.String(), "user")
	require.NoError(t, err)
	return newExchangeClient(srv.URL+"/", token, 5*time.Second)
}

func TestExchangeClientRelaysSignals(t *testing.T) {
	srv, manager := newExchange(t)
	alice, bob := uuid.New(), uuid.New()
	aliceClient := clientFor(t, srv, manager, alice)
	bobClient := clientFor(t, srv, manager, bob)
	ctx := context.Background()
	sessionID := uuid.New()

	// Setup expectations: bob polls before the session exists
	answered := make(chan string, 1)
	failed := make(chan error, 1)
	go func() {
		offer, err := bobClient.awaitPeer(ctx, sessionID, 10*time.Millisecond)
		if err != nil {
			failed <- err
			return
		}
		answered <- offer
	}()

	// Execute
	session, err := aliceClient.start(ctx, sessionID, bob)
	require.NoError(t, err)
	require.NoError(t, aliceClient.publish(ctx, session.ID, `{"type":"offer","sdp":"v=0"}`))

	// Assert
	select {
	case offer := <-answered:
		assert.Equal(t, `{"type":"offer","sdp":"v=0"}`, offer)
	case err := <-failed:
		t.Fatalf("awaitPeer failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never saw the offer")
	}
	assert.Equal(t, sessionID, session.ID)
	assert.Equal(t, alice, session.Offerer)

	require.NoError(t, bobClient.publish(ctx, session.ID, `{"type":"answer","sdp":"v=0"}`))
	signal, err := aliceClient.read(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, signal.Present)

	require.NoError(t, aliceClient.end(ctx, session.ID))
	_, err = bobClient.read(ctx, session.ID)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestExchangeClientOutsiderForbidden(t *testing.T) {
	srv, manager := newExchange(t)
	alice, bob := uuid.New(), uuid.New()
	ctx := context.Background()

	session, err := clientFor(t, srv, manager, alice).start(ctx, uuid.Nil, bob)
	require.NoError(t, err)

	_, err = clientFor(t, srv, manager, uuid.New()).awaitPeer(ctx, session.ID, 10*time.Millisecond)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		blob    string
		want    webrtc.SDPType
		wantErr bool
	}{
		{"offer", `{"type":"offer","sdp":"v=0"}`, webrtc.SDPTypeOffer, false},
		{"wrong type", `{"type":"answer","sdp":"v=0"}`, webrtc.SDPTypeOffer, true},
		{"not json", "v=0", webrtc.SDPTypeAnswer, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := decode(tt.blob, tt.want)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "v=0", desc.SDP)
		})
	}
}
