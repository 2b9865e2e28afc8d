// Package admin calls the privileged manage-users function. Only administrator
// views use it; the function itself rejects every other identity.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
)

const manageUsersPath = "/manage-users"

// Options configures a Client.
type Options struct {
	// FunctionsURL is the root of the functions endpoint, e.g. https://host/functions/v1.
	FunctionsURL string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Tokens       backend.TokenSource
}

// Client lists, provisions and removes accounts.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	tokens   backend.TokenSource
	validate *validator.Validate
}

type createRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName"`
}

type deleteRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type functionResponse struct {
	Users   []backend.Account `json:"users"`
	User    *backend.Account  `json:"user"`
	Message string            `json:"message"`
	Error   string            `json:"error"`
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.FunctionsURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid functions url %q", opts.FunctionsURL)
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("admin client requires a token source")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = backend.DefaultTimeout
	}

	return &Client{
		endpoint: base.String() + manageUsersPath,
		http:     httpClient,
		timeout:  timeout,
		tokens:   opts.Tokens,
		validate: validator.New(),
	}, nil
}

// ListAccounts returns every account.
func (c *Client) ListAccounts(ctx context.Context) ([]backend.Account, error) {
	resp, err := c.call(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	if resp.Users == nil {
		return []backend.Account{}, nil
	}
	return resp.Users, nil
}

// CreateAccount provisions an account with a placeholder credential. The
// backend sends the credential-setup notification.
func (c *Client) CreateAccount(ctx context.Context, email, displayName string) (backend.Account, error) {
	payload := createRequest{Email: strings.TrimSpace(email), FullName: strings.TrimSpace(displayName)}
	if err := c.validate.Struct(payload); err != nil {
		if payload.Email == "" {
			return backend.Account{}, apperr.Wrap(apperr.KindValidation, "email is required", err)
		}
		return backend.Account{}, apperr.Wrap(apperr.KindValidation, "email is invalid", err)
	}

	resp, err := c.call(ctx, http.MethodPost, payload)
	if err != nil {
		return backend.Account{}, err
	}
	if resp.User == nil {
		return backend.Account{}, apperr.New(apperr.KindBackend, "malformed function response")
	}
	return *resp.User, nil
}

// DeleteAccount removes the account permanently. Confirmation is the caller's job.
func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	payload := deleteRequest{UserID: strings.TrimSpace(id)}
	if err := c.validate.Struct(payload); err != nil {
		return apperr.Wrap(apperr.KindValidation, "user id is required", err)
	}
	_, err := c.call(ctx, http.MethodDelete, payload)
	return err
}

// call sends one request. A rejected token is rotated once and the request
// retried; the function refuses a bad token before acting on the body.
func (c *Client) call(ctx context.Context, method string, body interface{}) (functionResponse, error) {
	token, err := c.token(ctx, "")
	if err != nil {
		return functionResponse{}, err
	}
	resp, err := c.send(ctx, method, token, body)
	if !errors.Is(err, apperr.Authentication) {
		return resp, err
	}
	if _, ok := c.tokens.(backend.Refresher); !ok {
		return resp, err
	}
	fresh, refreshErr := c.token(ctx, token)
	if refreshErr != nil {
		return functionResponse{}, refreshErr
	}
	if fresh == token {
		return resp, err
	}
	return c.send(ctx, method, fresh, body)
}

func (c *Client) token(ctx context.Context, rejected string) (string, error) {
	if refresher, ok := c.tokens.(backend.Refresher); ok {
		return refresher.Token(ctx, "", rejected)
	}
	token := c.tokens.AccessToken()
	if token == "" {
		return "", apperr.New(apperr.KindAuthentication, "not signed in")
	}
	return token, nil
}

func (c *Client) send(ctx context.Context, method, token string, body interface{}) (functionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return functionResponse{}, apperr.Wrap(apperr.KindValidation, "invalid request payload", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, reader)
	if err != nil {
		return functionResponse{}, apperr.Wrap(apperr.KindNetwork, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return functionResponse{}, backend.TransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return functionResponse{}, backend.TransportError(ctx, err)
	}

	var payload functionResponse
	decodeErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return functionResponse{}, apperr.FromStatus(resp.StatusCode, payload.Error)
	}
	if decodeErr != nil {
		return functionResponse{}, apperr.Wrap(apperr.KindBackend, "malformed function response", decodeErr)
	}
	if payload.Error != "" {
		return functionResponse{}, apperr.New(apperr.KindBackend, payload.Error)
	}
	return payload, nil
}
