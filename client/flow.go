package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dovidio/colino-backend/sessions"
)

// FlowStart is the response to a flow initiation: the URL to open in a
// browser and the session to poll while the user works through it.
type FlowStart struct {
	AuthorizationURL string `json:"authorization_url"`
	SessionID        string `json:"session_id"`
}

// PollResult is one poll of a flow session. TokenBundle fields are
// populated once Status is completed.
type PollResult struct {
	Status       sessions.Status `json:"status"`
	Message      string          `json:"message,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	sessions.TokenBundle
}

type refreshResponse struct {
	Message string `json:"message"`
	sessions.TokenBundle
}

// Initiate starts a new authorization flow.
func (c *Client) Initiate(ctx context.Context) (*FlowStart, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/initiate", nil)
	if err != nil {
		return nil, fmt.Errorf("[Client Initiate] failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[Client Initiate] request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var start FlowStart
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return nil, fmt.Errorf("[Client Initiate] failed to decode response: %w", err)
	}
	if start.AuthorizationURL == "" || start.SessionID == "" {
		return nil, fmt.Errorf("[Client Initiate] incomplete response from auth service")
	}
	return &start, nil
}

// Poll reads the flow session once.
func (c *Client) Poll(ctx context.Context, sessionID string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/poll/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("[Client Poll] failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[Client Poll] request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, apiError(resp)
	}

	var result PollResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("[Client Poll] failed to decode response: %w", err)
	}
	return &result, nil
}

// Await polls the session until the flow reaches a terminal status or
// ctx expires. A failed flow comes back as ErrAuthenticationFailed with
// the recorded reason; ctx carries the overall deadline, which should
// stay inside the session TTL.
func (c *Client) Await(ctx context.Context, sessionID string) (*sessions.TokenBundle, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.Poll(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		switch result.Status {
		case sessions.StatusCompleted:
			bundle := result.TokenBundle
			return &bundle, nil
		case sessions.StatusFailed:
			return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, result.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("[Client Await] authorization not completed: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Refresh redeems a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*sessions.TokenBundle, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("[Client Refresh] failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("[Client Refresh] failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[Client Refresh] request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var refreshed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return nil, fmt.Errorf("[Client Refresh] failed to decode response: %w", err)
	}
	bundle := refreshed.TokenBundle
	return &bundle, nil
}
