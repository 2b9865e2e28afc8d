package backend

import (
	"context"
	"net/http"
)

const authPath = "/api/v1/auth"

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, authPath+"/login", nil, "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	return session, err
}

// SignUp registers an account. No session is issued.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (Account, error) {
	var account Account
	err := c.do(ctx, http.MethodPost, authPath+"/signup", nil, "", map[string]string{
		"email":     email,
		"password":  password,
		"full_name": fullName,
	}, &account)
	return account, err
}

// GetSession returns the account behind accessToken.
func (c *Client) GetSession(ctx context.Context, accessToken string) (Account, error) {
	var account Account
	err := c.do(ctx, http.MethodGet, authPath+"/session", nil, accessToken, nil, &account)
	return account, err
}

// Refresh rotates a refresh token into a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, authPath+"/refresh", nil, "", map[string]string{
		"refresh_token": refreshToken,
	}, &session)
	return session, err
}

// SignOut revokes the sessions of the account behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, authPath+"/logout", nil, accessToken, nil, nil)
}

// UpdatePassword changes the password of the account behind accessToken.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (Account, error) {
	var account Account
	err := c.do(ctx, http.MethodPut, authPath+"/password", nil, accessToken, map[string]string{
		"password": password,
	}, &account)
	return account, err
}

// RecoverPassword asks the backend to send a reset link to email.
func (c *Client) RecoverPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, authPath+"/recover", nil, "", map[string]string{"email": email}, nil)
}

// ResetPassword completes a reset with the token from the reset link.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.do(ctx, http.MethodPost, authPath+"/reset", nil, "", map[string]string{
		"token":    token,
		"password": password,
	}, nil)
}
