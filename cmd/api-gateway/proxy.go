package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/response"
)

// upstream is one backend service behind the gateway
type upstream struct {
	name  string
	proxy *httputil.ReverseProxy
}

func newUpstream(name, rawURL string) (*upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s url %q", name, rawURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.FromContext(r.Context()).Warn("Proxy error",
			zap.String("service", name),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeUnavailable(w, name)
	}
	return &upstream{name: name, proxy: proxy}, nil
}

// gateway routes signaling traffic to the video service and everything else
// under /v1 to the chat service. WebSocket upgrades pass through the proxy.
type gateway struct {
	chat  *upstream
	video *upstream
}

func (g *gateway) pick(path string) *upstream {
	switch {
	case path == "/v1/calls" || strings.HasPrefix(path, "/v1/calls/"), path == "/v1/ws/signaling":
		return g.video
	case strings.HasPrefix(path, "/v1/"), strings.HasPrefix(path, "/files/"):
		return g.chat
	}
	return nil
}

func (g *gateway) handle(c *gin.Context) {
	target := g.pick(c.Request.URL.Path)
	if target == nil {
		response.NotFound(c, "Route not found")
		return
	}
	c.Header("X-Upstream", target.name)
	target.proxy.ServeHTTP(c.Writer, c.Request)
}

func writeUnavailable(w http.ResponseWriter, service string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(response.Response{
		Success: false,
		Error: &response.ErrorDetail{
			Code:      string(apperrors.ErrCodeTransient),
			Message:   service + " unavailable",
			Retryable: true,
		},
		Meta: response.Meta{Timestamp: time.Now().UTC()},
	})
}
