// Package backend is the portal's HTTP client for the backend of record.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
)

// DefaultTimeout bounds every backend call that carries no earlier deadline.
const DefaultTimeout = 15 * time.Second

// TokenSource yields the bearer credential of the current identity.
type TokenSource interface {
	AccessToken() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

// AccessToken implements TokenSource.
func (f TokenSourceFunc) AccessToken() string { return f() }

// Refresher is implemented by token sources that rotate credentials.
type Refresher interface {
	// Token returns the access token of accountID, or of the active identity
	// when accountID is empty. The credential is rotated first when it is about
	// to expire or equals rejected.
	Token(ctx context.Context, accountID, rejected string) (string, error)
}

type accountKey struct{}

// ForAccount pins the authorized calls made with ctx to accountID. Once another
// identity is active they fail with an authentication error instead of being
// sent with its token.
func ForAccount(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey{}, accountID)
}

func accountFrom(ctx context.Context) string {
	accountID, _ := ctx.Value(accountKey{}).(string)
	return accountID
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Dialer     *websocket.Dialer
}

// Client calls the backend API. Data calls authenticate with the attached TokenSource.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	dialer  *websocket.Dialer
	tokens  TokenSource
}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Details map[string]string `json:"details"`
}

// New constructs a Client for the backend at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: timeout}
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		timeout: timeout,
		dialer:  dialer,
		tokens:  TokenSourceFunc(func() string { return "" }),
	}, nil
}

// WithTokens returns a copy of the client that authenticates data calls with tokens.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	clone := *c
	clone.tokens = tokens
	return &clone
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// HTTPClient exposes the transport shared with sibling clients.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := *c.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	return target.String()
}

// authorized sends a call with the current access token. A rejected token is
// rotated once and the call retried; every authorized route is idempotent.
func (c *Client) authorized(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.token(ctx, "")
	if err != nil {
		return err
	}
	err = c.do(ctx, method, path, query, token, body, out)
	if !errors.Is(err, apperr.Authentication) {
		return err
	}
	if _, ok := c.tokens.(Refresher); !ok {
		return err
	}

	fresh, refreshErr := c.token(ctx, token)
	if refreshErr != nil {
		return refreshErr
	}
	if fresh == token {
		return err
	}
	return c.do(ctx, method, path, query, fresh, body, out)
}

// token resolves the bearer for ctx. rejected, when set, is a token the backend refused.
func (c *Client) token(ctx context.Context, rejected string) (string, error) {
	if refresher, ok := c.tokens.(Refresher); ok {
		return refresher.Token(ctx, accountFrom(ctx), rejected)
	}
	token := c.tokens.AccessToken()
	if token == "" {
		return "", apperr.New(apperr.KindAuthentication, "not signed in")
	}
	return token, nil
}

// EventToken returns a usable access token for opening the event stream.
func (c *Client) EventToken(ctx context.Context) (string, error) {
	return c.token(ctx, "")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, "invalid request payload", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return TransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransportError(ctx, err)
	}

	var payload envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil && resp.StatusCode < 300 {
			return apperr.Wrap(apperr.KindBackend, "malformed backend response", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.FromStatus(resp.StatusCode, describe(payload))
	}

	if out == nil || len(payload.Data) == 0 || string(payload.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload.Data, out); err != nil {
		return apperr.Wrap(apperr.KindBackend, "malformed backend response", err)
	}
	return nil
}

func describe(payload envelope) string {
	if len(payload.Details) == 0 {
		return payload.Message
	}
	fields := make([]string, 0, len(payload.Details))
	for field, rule := range payload.Details {
		fields = append(fields, fmt.Sprintf("%s (%s)", field, rule))
	}
	sort.Strings(fields)
	return payload.Message + ": " + strings.Join(fields, ", ")
}

// TransportError classifies a failed round trip as a timeout or network error.
func TransportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.KindTimeout, "the backend did not respond in time", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindNetwork, "request canceled", err)
	}
	return apperr.Wrap(apperr.KindNetwork, "unable to reach the backend", err)
}
