// Package authclient is an HTTP client for services behind the session gate.
// It keeps the session cookies in a jar and renews the access token when a
// request is rejected with 401.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

var ErrSessionExpired = errors.New("session expired, please log in again")

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	logoutPath  = "/auth/refresh/logout"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}

// StatusError is returned for an unexpected response from the auth endpoints.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status: %d", e.Op, e.Status)
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(loginPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "login", Status: resp.StatusCode}
	}

	var result LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "logout", logoutPath)
}

// Refresh asks the server for a new access token. Any non-2xx answer means
// the refresh token is gone and yields ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context) error {
	err := c.post(ctx, "refresh", refreshPath)
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return err
}

func (c *Client) post(ctx context.Context, op, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode}
	}
	return nil
}

// FetchWithAuth sends req. On 401 it refreshes the session once and replays
// req once; the replayed response is returned whatever its status. When the
// refresh is refused the result is ErrSessionExpired.
func (c *Client) FetchWithAuth(ctx context.Context, req *http.Request) (*http.Response, error) {
	body, err := snapshot(req)
	if err != nil {
		return nil, fmt.Errorf("buffer body: %w", err)
	}

	resp, err := c.httpClient.Do(withBody(req.Clone(ctx), body))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	return c.httpClient.Do(withBody(req.Clone(ctx), body))
}

func snapshot(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

func withBody(req *http.Request, body []byte) *http.Request {
	if body == nil {
		req.Body = http.NoBody
		req.GetBody = nil
		return req
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.ContentLength = int64(len(body))
	return req
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
