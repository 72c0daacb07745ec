package azuredevopsapi

import (
	"context"
	"net/http"
	"net/url"
)

// GetProjects lists the organization's projects.
func (c *Client) GetProjects(ctx context.Context) ([]Object, error) {
	return c.list(ctx, request{method: http.MethodGet, path: "_apis/projects"})
}

// CheckConnection verifies the organization URL and token.
func (c *Client) CheckConnection(ctx context.Context) error {
	_, err := c.list(ctx, request{
		method: http.MethodGet,
		path:   "_apis/projects",
		query:  url.Values{"$top": {"1"}},
	})
	return err
}
