package backend

import (
	"context"
	"net/http"
)

// Command is one entry of the backend's CLI registry
type Command struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	ArgsSchema  map[string]any `json:"args_schema"`
}

type executeRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// ExecuteResult is the backend's answer to a CLI command
type ExecuteResult struct {
	OK     bool     `json:"ok"`
	Output string   `json:"output"`
	Data   any      `json:"data"`
	Logs   []string `json:"logs"`
	Error  string   `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Commands lists the registered CLI commands
func (c *Client) Commands(ctx context.Context) ([]Command, error) {
	var cmds []Command
	if err := c.do(ctx, http.MethodGet, "/cli/commands", nil, &cmds, true); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Execute runs one CLI command on the backend. A nil args map is sent as {}.
func (c *Client) Execute(ctx context.Context, command string, args map[string]any) (ExecuteResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var res ExecuteResult
	err := c.do(ctx, http.MethodPost, "/cli/execute", executeRequest{Command: command, Args: args}, &res, true)
	return res, err
}

// Health returns the backend's self-reported status ("ok" when healthy)
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp, true); err != nil {
		return "", err
	}
	return resp.Status, nil
}
