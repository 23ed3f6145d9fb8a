package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"stackbot-deployment/internal/models"
)

// Notify posts message on the pull request for target, or on the commit when
// no pull request can be found. With neither available it logs and returns nil.
func (c *Client) Notify(ctx context.Context, target models.NotifyTarget, message string) error {
	log := c.logger.WithFields(logrus.Fields{
		"repo":   target.Owner + "/" + target.Repo,
		"branch": target.BranchName,
	})

	prNumber := target.PRNumber
	if prNumber == 0 {
		n, err := c.findPullRequest(ctx, target)
		if err != nil {
			return err
		}
		prNumber = n
	}

	if prNumber != 0 {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", target.Owner, target.Repo, prNumber)
		return c.postComment(ctx, path, message)
	}

	if target.SHA == "" {
		log.Error("Cannot comment on commit because the git SHA is not defined")
		return nil
	}

	log.WithField("sha", target.SHA).Info("Adding a comment directly to the commit")
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/comments", target.Owner, target.Repo, target.SHA)
	return c.postComment(ctx, path, message)
}

// findPullRequest searches for an open or closed pull request whose head is
// the target branch. It returns 0 when nothing matches.
func (c *Client) findPullRequest(ctx context.Context, target models.NotifyTarget) (int, error) {
	query := fmt.Sprintf("repo:%s/%s head:%s is:pr", target.Owner, target.Repo, target.BranchName)
	if target.SHA != "" {
		query += " " + target.SHA
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/search/issues?q="+url.QueryEscape(query), nil)
	if err != nil {
		return 0, err
	}
	data, err := c.do(req)
	if err != nil {
		return 0, err
	}

	var result struct {
		Items []struct {
			Number int `json:"number"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("failed to decode github search response: %w", err)
	}

	if len(result.Items) == 0 {
		c.logger.WithField("query", query).Warn("Could not find any pull request matching the search criteria")
		return 0, nil
	}
	return result.Items[0].Number, nil
}

func (c *Client) postComment(ctx context.Context, path, message string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, map[string]string{"body": message})
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}
