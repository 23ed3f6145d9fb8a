package dockercloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"

	"stackbot-deployment/internal/models"
)

const stackPath = "/api/app/v1/stack/"

// APIError is returned when the API answers with a non-success status or a
// body that is not JSON. Body holds the decoded JSON when available and the
// raw text otherwise.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       interface{}
}

func (e *APIError) Error() string {
	detail, ok := e.Body.(string)
	if !ok {
		b, _ := json.Marshal(e.Body)
		detail = string(b)
	}
	return fmt.Sprintf("docker cloud %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, detail)
}

type Client struct {
	URL    string
	user   string
	apiKey string
	client *http.Client
}

func NewClient(url, user, apiKey string) *Client {
	return &Client{
		URL:    strings.TrimRight(url, "/"),
		user:   user,
		apiKey: apiKey,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
	}
}

func (c *Client) ListStacks(ctx context.Context) ([]models.Stack, error) {
	var list models.StackList
	if err := c.do(ctx, http.MethodGet, stackPath, nil, &list); err != nil {
		return nil, err
	}
	return list.Objects, nil
}

func (c *Client) GetStack(ctx context.Context, uuid string) (*models.Stack, error) {
	var stack models.Stack
	if err := c.do(ctx, http.MethodGet, stackPath+uuid+"/", nil, &stack); err != nil {
		return nil, err
	}
	return &stack, nil
}

// GetService fetches a service by the resource URI listed on its stack.
func (c *Client) GetService(ctx context.Context, resourceURI string) (*models.Service, error) {
	var svc models.Service
	if err := c.do(ctx, http.MethodGet, resourceURI, nil, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (c *Client) CreateStack(ctx context.Context, payload interface{}) (*models.Stack, error) {
	var stack models.Stack
	if err := c.do(ctx, http.MethodPost, stackPath, payload, &stack); err != nil {
		return nil, err
	}
	return &stack, nil
}

func (c *Client) StartStack(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, stackPath+uuid+"/start/", nil, nil)
}

func (c *Client) RedeployStack(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, stackPath+uuid+"/redeploy/?reuse_volumes=true", nil, nil)
}

func (c *Client) TerminateStack(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodDelete, stackPath+uuid+"/", nil, nil)
}

// StackWebURL links to the stack in the Docker Cloud dashboard.
func (c *Client) StackWebURL(stack *models.Stack) string {
	return fmt.Sprintf("https://cloud.docker.com/app/%s/stack/%s", c.user, stack.UUID)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request payload")
		}
		body = bytes.NewReader(payloadBytes)
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.URL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s %s", method, path)
	}
	req.SetBasicAuth(c.user, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "docker cloud %s %s failed", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read docker cloud response for %s %s", method, path)
	}

	var parsed interface{}
	jsonErr := json.Unmarshal(data, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode > 299 || jsonErr != nil {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
		if jsonErr == nil {
			apiErr.Body = parsed
		}
		return errors.WithStack(apiErr)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrapf(err, "failed to decode docker cloud response for %s %s", method, path)
		}
	}
	return nil
}
