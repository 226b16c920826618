// Package api is a thin HTTP client for the gatekeeper REST API.
package api

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

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/httpapi"
)

const basePath = "/api/v1"

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsUnauthenticated reports whether err is a 401 from the server.
func IsUnauthenticated(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken replaces the bearer token sent on subsequent calls.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Register(ctx context.Context, req httpapi.RegisterRequest) (*httpapi.AuthResponse, error) {
	var resp httpapi.AuthResponse
	if err := c.do(ctx, http.MethodPost, basePath+"/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (*httpapi.AuthResponse, error) {
	var resp httpapi.AuthResponse
	req := httpapi.AuthenticateRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, basePath+"/auth/authenticate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Me(ctx context.Context) (*httpapi.MeResponse, error) {
	var resp httpapi.MeResponse
	if err := c.do(ctx, http.MethodGet, basePath+"/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Delete(ctx context.Context, email string) (*httpapi.DeleteResponse, error) {
	var resp httpapi.DeleteResponse
	if err := c.do(ctx, http.MethodDelete, basePath+"/users/delete", httpapi.DeleteRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var er httpapi.ErrorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error == "" {
		return strings.TrimSpace(string(data))
	}
	if len(er.Fields) == 0 {
		return er.Error
	}
	parts := make([]string, 0, len(er.Fields))
	for k, v := range er.Fields {
		parts = append(parts, k+": "+v)
	}
	return er.Error + " (" + strings.Join(parts, ", ") + ")"
}
