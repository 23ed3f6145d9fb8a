// Package stack drives remote Docker Cloud stacks through their lifecycle:
// creation with collision-free port assignment, redeploys, termination, and
// polling until a stack is running.
package stack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stackbot-deployment/internal/logger"
	"stackbot-deployment/internal/models"
	"stackbot-deployment/internal/ports"
)

const (
	DefaultRetries      = 10
	DefaultPollInterval = 5 * time.Second

	serviceFetchLimit = 8
)

// API is the subset of the remote stack API the controller needs.
type API interface {
	ListStacks(ctx context.Context) ([]models.Stack, error)
	GetStack(ctx context.Context, uuid string) (*models.Stack, error)
	GetService(ctx context.Context, resourceURI string) (*models.Service, error)
	CreateStack(ctx context.Context, payload interface{}) (*models.Stack, error)
	StartStack(ctx context.Context, uuid string) error
	RedeployStack(ctx context.Context, uuid string) error
	TerminateStack(ctx context.Context, uuid string) error
}

type Controller struct {
	api      API
	retries  int
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *logrus.Entry
}

type Option func(*Controller)

// WithPolling overrides the delay between polls and the retry budget.
func WithPolling(interval time.Duration, retries int) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.interval = interval
		}
		if retries > 0 {
			c.retries = retries
		}
	}
}

func NewController(api API, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		retries:  DefaultRetries,
		interval: DefaultPollInterval,
		sleep:    sleepContext,
		logger:   logger.WithModule("stack"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindStackByName returns the first stack in the inventory with the given
// name, or nil when there is none.
func (c *Controller) FindStackByName(ctx context.Context, name string) (*models.Stack, error) {
	return c.findStack(ctx, name, func(models.Stack) bool { return true })
}

// FindActiveStackByName is FindStackByName restricted to stacks that are not
// terminating or terminated.
func (c *Controller) FindActiveStackByName(ctx context.Context, name string) (*models.Stack, error) {
	return c.findStack(ctx, name, func(s models.Stack) bool { return s.Status().Active() })
}

func (c *Controller) findStack(ctx context.Context, name string, keep func(models.Stack) bool) (*models.Stack, error) {
	stacks, err := c.api.ListStacks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range stacks {
		if stacks[i].Name == name && keep(stacks[i]) {
			return &stacks[i], nil
		}
	}
	return nil, nil
}

// CreateStack creates a stack named after the branch from tmpl and waits for
// it to be running.
func (c *Controller) CreateStack(ctx context.Context, name string, tmpl models.StackTemplate) (*models.Stack, error) {
	log := c.logger.WithField("stack", name)
	log.Info("Stack will be created")

	stacks, err := c.api.ListStacks(ctx)
	if err != nil {
		return nil, err
	}

	active := ports.ActiveStacks(stacks)
	var uris []string
	for _, s := range active {
		uris = append(uris, s.Services...)
	}
	services, err := c.fetchServices(ctx, uris)
	if err != nil {
		return nil, err
	}

	used := ports.Used(active, services, tmpl.Name())
	port := ports.Suggest(used, int(tmpl.OuterPortRangeMin))
	log.WithFields(logrus.Fields{
		"used_ports":     len(used),
		"suggested_port": port,
	}).Info("Suggested outer port")

	created, err := c.api.CreateStack(ctx, newStackPayload(name, tmpl, port))
	if err != nil {
		return nil, err
	}

	log.Info("Waiting for stack to start")
	return c.WaitForRunning(ctx, created.UUID)
}

// RedeployStack redeploys an existing stack, keeping its volumes, and waits
// for it to be running again.
func (c *Controller) RedeployStack(ctx context.Context, stack *models.Stack) (*models.Stack, error) {
	log := c.logger.WithField("stack", stack.Name)
	log.Info("Stack will be redeployed")

	if err := c.api.RedeployStack(ctx, stack.UUID); err != nil {
		return nil, err
	}

	log.Info("Waiting for stack to start")
	return c.WaitForRunning(ctx, stack.UUID)
}

// TerminateStack schedules the stack for termination. It does not wait for
// the stack to reach the terminated state.
func (c *Controller) TerminateStack(ctx context.Context, stack *models.Stack) error {
	c.logger.WithField("stack", stack.Name).Info("Stack will be terminated")
	return c.api.TerminateStack(ctx, stack.UUID)
}

// StackWebURL links to the stack in the provider dashboard when the API
// knows how to build one.
func (c *Controller) StackWebURL(stack *models.Stack) string {
	if d, ok := c.api.(interface{ StackWebURL(*models.Stack) string }); ok {
		return d.StackWebURL(stack)
	}
	return ""
}

// ServiceURLs maps each service of the stack to its published endpoints,
// rewritten from tcp:// to http://.
func (c *Controller) ServiceURLs(ctx context.Context, stack *models.Stack) (map[string][]string, error) {
	services, err := c.fetchServices(ctx, stack.Services)
	if err != nil {
		return nil, err
	}

	urls := make(map[string][]string, len(services))
	for _, uri := range stack.Services {
		svc := services[uri]
		list := []string{}
		for _, p := range svc.ContainerPorts {
			if p.EndpointURI != "" {
				list = append(list, httpEndpoint(p.EndpointURI))
			}
		}
		urls[svc.Name] = list
	}
	return urls, nil
}

func (c *Controller) fetchServices(ctx context.Context, uris []string) (map[string]*models.Service, error) {
	results := make([]*models.Service, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(serviceFetchLimit)
	for i, uri := range uris {
		i, uri := i, uri
		g.Go(func() error {
			svc, err := c.api.GetService(gctx, uri)
			if err != nil {
				return err
			}
			results[i] = svc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	services := make(map[string]*models.Service, len(uris))
	for i, uri := range uris {
		services[uri] = results[i]
	}
	return services, nil
}

func newStackPayload(name string, tmpl models.StackTemplate, outerPort int) map[string]interface{} {
	service := map[string]interface{}{
		"image": fmt.Sprintf("%s:%s", tmpl.ImageRepo, name),
		"container_ports": []map[string]int{
			{
				"inner_port": int(tmpl.InnerPort),
				"outer_port": outerPort,
			},
		},
	}
	for k, v := range tmpl.Template {
		service[k] = v
	}

	return map[string]interface{}{
		"name":     name,
		"nickname": name,
		"services": []map[string]interface{}{service},
	}
}

func httpEndpoint(uri string) string {
	if strings.HasPrefix(uri, "tcp://") {
		return "http://" + strings.TrimPrefix(uri, "tcp://")
	}
	return uri
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-timer.C:
		return nil
	}
}
