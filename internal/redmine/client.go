// Package redmine is a thin client for the tracker's REST API, used
// only to advance issue status from chat actions.
package redmine

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
)

// Redmine status ids involved in chat-driven transitions.
const (
	statusInProgress = 2
	statusResolved   = 3
	statusClosed     = 5
)

// Typed transition failures. The bot layer maps each to a short
// user-facing reply; none of them is a transport error.
var (
	ErrAlreadyClosed     = errors.New("redmine: issue already closed")
	ErrNotInProgress     = errors.New("redmine: issue is not in progress")
	ErrAlreadyInProgress = errors.New("redmine: issue already in progress")
)

// StatusClient advances an issue through its workflow.
type StatusClient interface {
	// Close resolves an issue. Fails with ErrAlreadyClosed when the
	// issue is resolved or closed already, and with ErrNotInProgress
	// when it is in any state other than "in progress".
	Close(ctx context.Context, issueID int64) error

	// TakeInProgress moves an issue into "in progress". Fails with
	// ErrAlreadyInProgress or ErrAlreadyClosed accordingly.
	TakeInProgress(ctx context.Context, issueID int64) error
}

// Client talks to the Redmine REST API with API-key authentication.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ StatusClient = (*Client)(nil)

// NewClient creates a Redmine REST client. baseURL is the root URL of
// the Redmine instance.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type issueEnvelope struct {
	Issue struct {
		ID     int64 `json:"id"`
		Status struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"status"`
	} `json:"issue"`
}

type statusUpdate struct {
	Issue struct {
		StatusID int `json:"status_id"`
	} `json:"issue"`
}

// Close resolves the issue when it is currently in progress.
func (c *Client) Close(ctx context.Context, issueID int64) error {
	status, err := c.issueStatus(ctx, issueID)
	if err != nil {
		return err
	}

	switch {
	case status == statusResolved || status == statusClosed:
		return ErrAlreadyClosed
	case status != statusInProgress:
		return ErrNotInProgress
	}

	return c.setStatus(ctx, issueID, statusResolved)
}

// TakeInProgress moves the issue into "in progress".
func (c *Client) TakeInProgress(ctx context.Context, issueID int64) error {
	status, err := c.issueStatus(ctx, issueID)
	if err != nil {
		return err
	}

	switch status {
	case statusInProgress:
		return ErrAlreadyInProgress
	case statusResolved, statusClosed:
		return ErrAlreadyClosed
	}

	return c.setStatus(ctx, issueID, statusInProgress)
}

// issueStatus fetches the issue's current status id.
func (c *Client) issueStatus(ctx context.Context, issueID int64) (int, error) {
	var envelope issueEnvelope
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/issues/%d.json", issueID), nil, &envelope); err != nil {
		return 0, fmt.Errorf("fetching issue %d: %w", issueID, err)
	}
	return envelope.Issue.Status.ID, nil
}

// setStatus updates the issue's status id.
func (c *Client) setStatus(ctx context.Context, issueID int64, statusID int) error {
	var body statusUpdate
	body.Issue.StatusID = statusID

	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/issues/%d.json", issueID), body, nil); err != nil {
		return fmt.Errorf("updating issue %d status: %w", issueID, err)
	}
	return nil
}

// do builds the request, handles auth and JSON (de)serialization.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response body: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d on %s %s: %s",
			resp.StatusCode, method, path, string(respBody))
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}

	return nil
}
