package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token and installs it on the client
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &resp, false)
	if err != nil {
		return "", fmt.Errorf("login as %q: %w", username, err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("login: backend returned no access token")
	}
	c.SetToken(resp.AccessToken)
	return resp.AccessToken, nil
}
