package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/response"
)

// apiError is an error envelope returned by the exchange
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// exchangeClient talks to the video-service signaling REST API
type exchangeClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newExchangeClient(baseURL, token string, timeout time.Duration) *exchangeClient {
	return &exchangeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *exchangeClient) start(ctx context.Context, sessionID, peer uuid.UUID) (*domain.CallSession, error) {
	var session domain.CallSession
	err := c.do(ctx, http.MethodPost, "/v1/calls", domain.StartCallRequest{PeerID: peer, SessionID: sessionID}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *exchangeClient) publish(ctx context.Context, sessionID uuid.UUID, blob string) error {
	return c.do(ctx, http.MethodPut, "/v1/calls/"+sessionID.String()+"/signal", domain.SignalRequest{Signal: blob}, nil)
}

func (c *exchangeClient) read(ctx context.Context, sessionID uuid.UUID) (*domain.SignalResponse, error) {
	var signal domain.SignalResponse
	if err := c.do(ctx, http.MethodGet, "/v1/calls/"+sessionID.String()+"/signal", nil, &signal); err != nil {
		return nil, err
	}
	return &signal, nil
}

func (c *exchangeClient) end(ctx context.Context, sessionID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/calls/"+sessionID.String(), nil, nil)
}

// awaitPeer polls until the other participant has published a blob. A session
// the offerer has not started yet reads as not found and is polled again.
func (c *exchangeClient) awaitPeer(ctx context.Context, sessionID uuid.UUID, every time.Duration) (string, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		signal, err := c.read(ctx, sessionID)
		if err != nil {
			var apiErr *apiError
			if !errors.As(err, &apiErr) || apiErr.Code != string(apperrors.ErrCodeNotFound) {
				return "", err
			}
		} else if signal.Present {
			return signal.Signal, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for peer signal: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *exchangeClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	envelope := response.Response{}
	var data json.RawMessage
	envelope.Data = &data
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	if !envelope.Success {
		apiErr := &apiError{Status: resp.StatusCode}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
