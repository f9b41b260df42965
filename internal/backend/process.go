package backend

import (
	"context"
	"net/http"
)

type statusResponse struct {
	Running bool `json:"running"`
}

type startResponse struct {
	Started bool `json:"started"`
}

// Status reports whether the feed's background process is running
func (c *Client) Status(ctx context.Context, feed Feed) (bool, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, feed.StatusPath, nil, &resp, true); err != nil {
		return false, err
	}
	return resp.Running, nil
}

// Start asks the backend to start the feed's process. The boolean is the backend's
// "started" acknowledgement; false means it refused (e.g. already running).
func (c *Client) Start(ctx context.Context, feed Feed) (bool, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, feed.StartPath, nil, &resp, true); err != nil {
		return false, err
	}
	return resp.Started, nil
}

// Stop asks the backend to stop the feed's process
func (c *Client) Stop(ctx context.Context, feed Feed) error {
	return c.do(ctx, http.MethodPost, feed.StopPath, nil, nil, true)
}

// Send pushes current values once before polling starts (gateway feed only)
func (c *Client) Send(ctx context.Context, feed Feed) error {
	if feed.SendPath == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, feed.SendPath, nil, nil, true)
}

// FeedLogin makes the backend log in to the remote gateway (gateway feed only)
func (c *Client) FeedLogin(ctx context.Context, feed Feed) error {
	if feed.LoginPath == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, feed.LoginPath, nil, nil, true)
}

// FeedBackend binds a client to one feed for the lifecycle controller
type FeedBackend struct {
	Client BackendClient
	Feed   Feed
}

func (b FeedBackend) Start(ctx context.Context) (bool, error) {
	return b.Client.Start(ctx, b.Feed)
}

func (b FeedBackend) Stop(ctx context.Context) error {
	return b.Client.Stop(ctx, b.Feed)
}
