package stack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stackbot-deployment/internal/models"
)

// fakeAPI serves a fixed inventory and replays scripted states from GetStack.
// The last scripted state repeats forever.
type fakeAPI struct {
	mu sync.Mutex

	stacks   []models.Stack
	services map[string]*models.Service
	states   []string

	polls      int
	starts     int
	redeploys  []string
	terminates []string
	payloads   []interface{}

	listErr error
}

func (f *fakeAPI) ListStacks(ctx context.Context) ([]models.Stack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Stack(nil), f.stacks...), nil
}

func (f *fakeAPI) GetStack(ctx context.Context, uuid string) (*models.Stack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		state = f.states[f.polls]
	}
	f.polls++
	return &models.Stack{UUID: uuid, Name: "feature-x", State: state}, nil
}

func (f *fakeAPI) GetService(ctx context.Context, uri string) (*models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc, ok := f.services[uri]
	if !ok {
		return nil, fmt.Errorf("service %s not found", uri)
	}
	return svc, nil
}

func (f *fakeAPI) CreateStack(ctx context.Context, payload interface{}) (*models.Stack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return &models.Stack{UUID: "new-uuid", Name: "feature-x", State: "Not Running"}, nil
}

func (f *fakeAPI) StartStack(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeAPI) RedeployStack(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeploys = append(f.redeploys, uuid)
	return nil
}

func (f *fakeAPI) TerminateStack(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates = append(f.terminates, uuid)
	return nil
}

// newTestController returns a controller whose sleeps return immediately and
// are counted in *sleeps.
func newTestController(api API, retries int) (*Controller, *[]time.Duration) {
	c := NewController(api, WithPolling(time.Second, retries))
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}
