package github

import (
	"context"
	"fmt"
	"net/http"

	"stackbot-deployment/internal/models"
)

// LoadConfig reads .github/docker-cloud-config.yml from the default branch of
// the repository.
func (c *Client) LoadConfig(ctx context.Context, owner, repo string) (*models.RepoConfig, error) {
	path := fmt.Sprintf("/repos/%s/%s/contents/.github/%s", owner, repo, models.ConfigFileName)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw")

	data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", models.ConfigFileName, err)
	}
	return models.ParseRepoConfig(data)
}
