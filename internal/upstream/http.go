package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// HTTPClient implements Client against the platform's JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates an upstream client for the given base URL.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, http: client}
}

type listDialogsRequest struct {
	Criteria []string `json:"criteria,omitempty"`
	Cursor   string   `json:"cursor,omitempty"`
	Limit    int      `json:"limit"`
}

// ListDialogs fetches one page of the account's dialogs.
func (c *HTTPClient) ListDialogs(ctx context.Context, session models.AccountSession, criteria []string, cursor string, limit int) (DialogsPage, error) {
	var page DialogsPage
	err := c.post(ctx, session, "/platform/chat/dialogs/by-criteria", listDialogsRequest{
		Criteria: criteria,
		Cursor:   cursor,
		Limit:    limit,
	}, &page)
	return page, err
}

// ListUnanswered fetches the account's unanswered feed.
func (c *HTTPClient) ListUnanswered(ctx context.Context, session models.AccountSession) ([]UnansweredItem, error) {
	var resp struct {
		Items []UnansweredItem `json:"items"`
	}
	if err := c.post(ctx, session, "/platform/chat/unanswered", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ResolveProfiles resolves interlocutor metadata for the given ids.
func (c *HTTPClient) ResolveProfiles(ctx context.Context, session models.AccountSession, ids []string) ([]models.Profile, error) {
	var resp struct {
		Profiles []models.Profile `json:"profiles"`
	}
	err := c.post(ctx, session, "/platform/profiles", struct {
		IDs []string `json:"ids"`
	}{IDs: ids}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

func (c *HTTPClient) post(ctx context.Context, session models.AccountSession, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// The platform authenticates via the session cookie blob captured
	// at dashboard login.
	req.Header.Set("Cookie", session.AuthBlob)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(b))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
