package stack

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"stackbot-deployment/internal/models"
)

func inventory() *fakeAPI {
	return &fakeAPI{
		stacks: []models.Stack{
			{UUID: "1", Name: "feature-a", State: "Running", Services: []string{"/svc/a-web/", "/svc/a-db/"}},
			{UUID: "2", Name: "feature-x", State: "Terminated", Services: []string{"/svc/x-old/"}},
			{UUID: "3", Name: "feature-x", State: "Running", Services: []string{"/svc/x-web/"}},
			{UUID: "4", Name: "feature-b", State: "Terminating", Services: []string{"/svc/b-web/"}},
		},
		services: map[string]*models.Service{
			"/svc/a-web/": {Name: "web", ContainerPorts: []models.ContainerPort{
				{InnerPort: 80, OuterPort: 8000, EndpointURI: "tcp://web-1.acme.svc.dockerapp.io:8000/"},
			}},
			"/svc/a-db/": {Name: "db", ContainerPorts: []models.ContainerPort{{InnerPort: 5432, OuterPort: 8001}}},
			"/svc/x-old/": {Name: "web", ContainerPorts: []models.ContainerPort{{InnerPort: 80, OuterPort: 8002}}},
			"/svc/x-web/": {Name: "web", ContainerPorts: []models.ContainerPort{{InnerPort: 80, OuterPort: 8003}}},
			"/svc/b-web/": {Name: "web", ContainerPorts: []models.ContainerPort{{InnerPort: 80, OuterPort: 8001}}},
		},
		states: []string{"Running"},
	}
}

func TestFindStackByName(t *testing.T) {
	api := inventory()
	c, _ := newTestController(api, 10)
	ctx := context.Background()

	stack, err := c.FindStackByName(ctx, "feature-x")
	if err != nil {
		t.Fatalf("FindStackByName failed: %v", err)
	}
	if stack == nil || stack.UUID != "2" {
		t.Errorf("FindStackByName() = %+v, want first match with UUID 2", stack)
	}

	active, err := c.FindActiveStackByName(ctx, "feature-x")
	if err != nil {
		t.Fatalf("FindActiveStackByName failed: %v", err)
	}
	if active == nil || active.UUID != "3" {
		t.Errorf("FindActiveStackByName() = %+v, want UUID 3", active)
	}

	missing, err := c.FindStackByName(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("FindStackByName(nope) = %+v, %v; want nil, nil", missing, err)
	}

	terminating, err := c.FindActiveStackByName(ctx, "feature-b")
	if err != nil || terminating != nil {
		t.Errorf("FindActiveStackByName(feature-b) = %+v, %v; want nil, nil", terminating, err)
	}
}

func TestFindStackByNameError(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("boom")}
	c, _ := newTestController(api, 10)

	if _, err := c.FindStackByName(context.Background(), "feature-x"); err == nil {
		t.Error("expected error but got none")
	}
}

func TestCreateStack(t *testing.T) {
	api := inventory()
	c, _ := newTestController(api, 10)

	tmpl := models.StackTemplate{
		ImageRepo:         "acme/web",
		InnerPort:         80,
		OuterPortRangeMin: 8000,
		Template: map[string]interface{}{
			"name":                  "web",
			"target_num_containers": 1,
		},
	}

	stack, err := c.CreateStack(context.Background(), "feature-y", tmpl)
	if err != nil {
		t.Fatalf("CreateStack failed: %v", err)
	}
	if stack.UUID != "new-uuid" {
		t.Errorf("UUID = %v, want %v", stack.UUID, "new-uuid")
	}

	// 8000 and 8003 are taken by active "web" services; 8001 belongs to a
	// db service and to a terminating stack, 8002 to a terminated one.
	want := map[string]interface{}{
		"name":     "feature-y",
		"nickname": "feature-y",
		"services": []map[string]interface{}{
			{
				"image":                 "acme/web:feature-y",
				"container_ports":       []map[string]int{{"inner_port": 80, "outer_port": 8001}},
				"name":                  "web",
				"target_num_containers": 1,
			},
		},
	}
	if len(api.payloads) != 1 {
		t.Fatalf("payloads = %v, want 1", len(api.payloads))
	}
	if diff := cmp.Diff(want, api.payloads[0]); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if api.polls != 1 {
		t.Errorf("polls = %v, want 1", api.polls)
	}
}

func TestCreateStackTemplateOverrides(t *testing.T) {
	payload := newStackPayload("feature-y", models.StackTemplate{
		ImageRepo: "acme/web",
		InnerPort: 80,
		Template:  map[string]interface{}{"image": "acme/pinned:1.0"},
	}, 9000)

	services := payload["services"].([]map[string]interface{})
	if image := services[0]["image"]; image != "acme/pinned:1.0" {
		t.Errorf("image = %v, want template override", image)
	}
}

func TestRedeployStack(t *testing.T) {
	api := &fakeAPI{states: []string{"Redeploying", "Running"}}
	c, _ := newTestController(api, 10)

	stack, err := c.RedeployStack(context.Background(), &models.Stack{UUID: "abc", Name: "feature-x"})
	if err != nil {
		t.Fatalf("RedeployStack failed: %v", err)
	}
	if stack.State != "Running" {
		t.Errorf("State = %v, want Running", stack.State)
	}
	if diff := cmp.Diff([]string{"abc"}, api.redeploys); diff != "" {
		t.Errorf("redeploys mismatch (-want +got):\n%s", diff)
	}
}

func TestTerminateStackDoesNotPoll(t *testing.T) {
	api := &fakeAPI{states: []string{"Terminating"}}
	c, sleeps := newTestController(api, 10)

	if err := c.TerminateStack(context.Background(), &models.Stack{UUID: "abc", Name: "feature-x"}); err != nil {
		t.Fatalf("TerminateStack failed: %v", err)
	}
	if diff := cmp.Diff([]string{"abc"}, api.terminates); diff != "" {
		t.Errorf("terminates mismatch (-want +got):\n%s", diff)
	}
	if api.polls != 0 || len(*sleeps) != 0 {
		t.Errorf("polls = %v, sleeps = %v; want none", api.polls, len(*sleeps))
	}
}

func TestServiceURLs(t *testing.T) {
	api := inventory()
	c, _ := newTestController(api, 10)

	urls, err := c.ServiceURLs(context.Background(), &api.stacks[0])
	if err != nil {
		t.Fatalf("ServiceURLs failed: %v", err)
	}

	want := map[string][]string{
		"web": {"http://web-1.acme.svc.dockerapp.io:8000/"},
		"db":  {},
	}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Errorf("ServiceURLs mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceURLsFetchError(t *testing.T) {
	api := inventory()
	c, _ := newTestController(api, 10)

	_, err := c.ServiceURLs(context.Background(), &models.Stack{Services: []string{"/svc/unknown/"}})
	if err == nil {
		t.Error("expected error but got none")
	}
}

type dashboardAPI struct{ fakeAPI }

func (d *dashboardAPI) StackWebURL(stack *models.Stack) string {
	return "https://dashboard/" + stack.UUID
}

func TestStackWebURL(t *testing.T) {
	plain, _ := newTestController(&fakeAPI{}, 10)
	if got := plain.StackWebURL(&models.Stack{UUID: "abc"}); got != "" {
		t.Errorf("StackWebURL() = %v, want empty", got)
	}

	withDashboard, _ := newTestController(&dashboardAPI{}, 10)
	if got := withDashboard.StackWebURL(&models.Stack{UUID: "abc"}); got != "https://dashboard/abc" {
		t.Errorf("StackWebURL() = %v, want https://dashboard/abc", got)
	}
}
