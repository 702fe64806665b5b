package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3

	apiTimeout      = 60 * time.Second
	downloadTimeout = 300 * time.Second
)

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client talks to a Microsoft Graph compatible document store on behalf of
// one bearer token. Requests are retried with exponential backoff.
type Client struct {
	token  oauth2.TokenSource
	authed *http.Client
	plain  *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying client used for every request
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.plain = hc
	}
}

// WithSleep replaces the backoff sleep
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// NewClient creates a client authenticating with accessToken
func NewClient(accessToken string, opts ...Option) *Client {
	c := &Client{
		token: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		plain: &http.Client{},
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.authed = &http.Client{
		Transport: &oauth2.Transport{Source: c.token, Base: c.plain.Transport},
	}
	return c
}

// request describes one logical call; it may be attempted several times
type request struct {
	method     string
	url        string
	body       []byte
	anonymous  bool
	timeout    time.Duration
	maxRetries int
}

// do performs req, retrying transient failures. 401 responses fail
// immediately; any other status is returned to the caller as-is.
func (c *Client) do(ctx context.Context, req request) (*Response, error) {
	if req.timeout == 0 {
		req.timeout = apiTimeout
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.once(ctx, req)
		if err == nil {
			err = classify(resp)
			if err == nil {
				return resp, nil
			}
			if IsAuthError(err) {
				return nil, err
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt >= req.maxRetries {
			return nil, fmt.Errorf("%w: %v", ErrTransientExhausted, err)
		}

		delay := backoff(attempt)
		log.Printf("[sharepoint] %s attempt %d/%d failed, retrying in %s: %v",
			req.method, attempt+1, req.maxRetries+1, delay, err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) once(ctx context.Context, req request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	hc := c.authed
	if req.anonymous {
		hc = c.plain
	}
	httpResp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// classify maps a response onto the retry policy. nil means hand it back.
func classify(resp *Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if tokenExpired(resp.Body) {
			return ErrTokenExpired
		}
		return ErrAuthFailed
	case resp.StatusCode == http.StatusOK && strings.Contains(resp.Header.Get("Content-Type"), "text/html"):
		return errors.New("remote returned an HTML error page")
	}
	return nil
}

type graphError struct {
	Error struct {
		Code       string `json:"code"`
		InnerError struct {
			Code string `json:"code"`
		} `json:"innerError"`
	} `json:"error"`
}

func tokenExpired(body []byte) bool {
	var ge graphError
	if err := json.Unmarshal(body, &ge); err != nil {
		return false
	}
	code := ge.Error.Code
	inner := ge.Error.InnerError.Code
	return strings.Contains(strings.ToLower(code), "expired") ||
		strings.Contains(strings.ToLower(inner), "expired") ||
		code == "unauthenticated"
}

// backoff is 2^attempt seconds: 1s, 2s, 4s, ...
func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
