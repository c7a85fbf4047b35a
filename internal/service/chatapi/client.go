// Package chatapi is the REST client for the ticket conversation backend:
// conversation fetch, message send, attachment upload and mark-read.
package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"TicketChat/internal/config"
	"TicketChat/internal/lib/sl"
	"TicketChat/internal/service/credentials"
)

// ErrUnauthorized is returned on HTTP 401. The polling fallback treats it
// as terminal for the session but keeps its timer running; forcing a
// re-login is the job of a higher-level auth layer.
var ErrUnauthorized = errors.New("unauthorized")

type Client struct {
	baseURL string
	creds   credentials.Source
	http    *http.Client
	log     *slog.Logger
}

func New(conf *config.Config, creds credentials.Source, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.API.BaseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.With(sl.Module("chat api")),
	}
}

// do sends the request with auth headers and returns the response body.
// A 401 maps to ErrUnauthorized, everything else non-2xx to a plain error.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.creds.Token())
	if c.creds.UserID() != "" {
		req.Header.Set("X-User-ID", c.creds.UserID())
	}
	if c.creds.IsPrivileged() {
		req.Header.Set("X-Privileged", "true")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) ticketURL(ticketID, suffix string) string {
	return fmt.Sprintf("%s/api/v1/tickets/%s/%s", c.baseURL, ticketID, suffix)
}
