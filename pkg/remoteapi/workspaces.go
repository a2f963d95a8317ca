package remoteapi

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Workspace is a remote note tree a local directory can be linked to.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Client) ListWorkspaces(ctx context.Context, token string) ([]Workspace, error) {
	var workspaces []Workspace
	_, err := c.do(ctx, http.MethodGet, "/workspaces", token, nil, nil, &workspaces)
	return workspaces, err
}

func (c *Client) CreateWorkspace(ctx context.Context, token, name string) (Workspace, error) {
	var ws Workspace
	body := map[string]string{"name": name}
	_, err := c.do(ctx, http.MethodPost, "/workspaces", token, nil, body, &ws)
	return ws, err
}

func (c *Client) GetWorkspace(ctx context.Context, token, id string) (Workspace, error) {
	var ws Workspace
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%s", id), token, nil, nil, &ws)
	return ws, err
}

func (c *Client) UpdateWorkspace(ctx context.Context, token, id, name string) (Workspace, error) {
	var ws Workspace
	body := map[string]string{"name": name}
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/workspaces/%s", id), token, nil, body, &ws)
	return ws, err
}

func (c *Client) DeleteWorkspace(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/workspaces/%s", id), token, nil, nil, nil)
	return err
}
