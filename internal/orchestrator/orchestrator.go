// Package orchestrator reacts to source-control events by creating,
// redeploying, or terminating the stack that belongs to a branch, and reports
// the outcome as a comment.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/moby/locker"
	"github.com/sirupsen/logrus"

	"stackbot-deployment/internal/dockercloud"
	"stackbot-deployment/internal/logger"
	"stackbot-deployment/internal/models"
	"stackbot-deployment/internal/trigger"
)

type ConfigLoader interface {
	LoadConfig(ctx context.Context, owner, repo string) (*models.RepoConfig, error)
}

type Notifier interface {
	Notify(ctx context.Context, target models.NotifyTarget, message string) error
}

// Stacks is the lifecycle surface of the stack controller.
type Stacks interface {
	FindActiveStackByName(ctx context.Context, name string) (*models.Stack, error)
	CreateStack(ctx context.Context, name string, tmpl models.StackTemplate) (*models.Stack, error)
	RedeployStack(ctx context.Context, stack *models.Stack) (*models.Stack, error)
	TerminateStack(ctx context.Context, stack *models.Stack) error
	ServiceURLs(ctx context.Context, stack *models.Stack) (map[string][]string, error)
	StackWebURL(stack *models.Stack) string
}

type Orchestrator struct {
	configs  ConfigLoader
	notifier Notifier
	stacks   Stacks
	branches *locker.Locker
	logger   *logrus.Entry
}

func New(configs ConfigLoader, notifier Notifier, stacks Stacks) *Orchestrator {
	return &Orchestrator{
		configs:  configs,
		notifier: notifier,
		stacks:   stacks,
		branches: locker.New(),
		logger:   logger.WithModule("orchestrator"),
	}
}

// Handle dispatches the event to the handler for its kind.
func (o *Orchestrator) Handle(ctx context.Context, event models.Event) error {
	switch event.Kind {
	case models.StatusChange:
		return o.HandleStatus(ctx, event)
	case models.ChangeRequestClosed:
		return o.HandlePullRequestClosed(ctx, event)
	}
	return fmt.Errorf("unsupported event kind %v", event.Kind)
}

// HandleStatus deploys the branch stack when a CI status change matches the
// repository trigger policy. An existing stack is redeployed, otherwise a new
// one is created. Deployment failures are reported as a comment and returned.
func (o *Orchestrator) HandleStatus(ctx context.Context, event models.Event) error {
	log := logger.WithEvent(o.logger, event.Kind.String(), event.BranchName)
	if event.FromSelf {
		log.Info("The issuer is the bot, skip")
		return nil
	}

	cfg, err := o.configs.LoadConfig(ctx, event.Owner, event.Repo)
	if err != nil {
		log.WithError(err).Error("Failed to load repository configuration")
		return err
	}

	decision := trigger.Evaluate(event, cfg.Policy())
	log.WithFields(decision.Fields()).WithFields(logrus.Fields{
		"issuer": event.IssuerKey,
		"state":  event.State,
	}).Info("Evaluated trigger rules")
	if !decision.Admitted() {
		log.Info("This event does not match the rules for deploying the stack, will be skipped")
		return nil
	}

	o.branches.Lock(event.BranchName)
	defer o.branches.Unlock(event.BranchName)

	if err := o.deploy(ctx, log, event, cfg); err != nil {
		log.WithError(err).Error("Error while deploying stack")
		o.notify(ctx, log, event, fmt.Sprintf(
			":stop_sign: Something went wrong while deploying the stack `%s`. Have a look at the error message below.\n\n%s",
			event.BranchName, FormatError(err)))
		return err
	}
	return nil
}

func (o *Orchestrator) deploy(ctx context.Context, log *logrus.Entry, event models.Event, cfg *models.RepoConfig) error {
	name := event.BranchName

	existing, err := o.stacks.FindActiveStackByName(ctx, name)
	if err != nil {
		return err
	}

	if existing != nil {
		if _, err := o.stacks.RedeployStack(ctx, existing); err != nil {
			return err
		}
		log.Info("Stack has been redeployed")
		if !cfg.Notify.OnUpdate {
			log.Info("Skip notification on stack update")
			return nil
		}
		o.notify(ctx, log, event, fmt.Sprintf(":rocket: Stack `%s` has been redeployed!", name))
		return nil
	}

	created, err := o.stacks.CreateStack(ctx, name, cfg.Stack)
	if err != nil {
		return err
	}
	log.Info("Stack has been created")
	if !cfg.Notify.OnCreate {
		log.Info("Skip notification on stack create")
		return nil
	}

	urls, err := o.stacks.ServiceURLs(ctx, created)
	if err != nil {
		return err
	}
	o.notify(ctx, log, event, createdMessage(name, o.stacks.StackWebURL(created), urls))
	return nil
}

// HandlePullRequestClosed schedules the branch stack for termination.
func (o *Orchestrator) HandlePullRequestClosed(ctx context.Context, event models.Event) error {
	log := logger.WithEvent(o.logger, event.Kind.String(), event.BranchName)
	if event.FromSelf {
		log.Info("The issuer of the event is the bot, skip")
		return nil
	}

	o.branches.Lock(event.BranchName)
	defer o.branches.Unlock(event.BranchName)

	if err := o.terminate(ctx, log, event); err != nil {
		log.WithError(err).Error("Error while terminating stack")
		o.notify(ctx, log, event, fmt.Sprintf(
			":stop_sign: Something went wrong while terminating the stack `%s`. Have a look at the error message below.\n\n%s",
			event.BranchName, FormatError(err)))
		return err
	}
	return nil
}

func (o *Orchestrator) terminate(ctx context.Context, log *logrus.Entry, event models.Event) error {
	name := event.BranchName

	existing, err := o.stacks.FindActiveStackByName(ctx, name)
	if err != nil {
		return err
	}
	if existing == nil {
		log.Info("The stack does not exist or has already been terminated")
		return nil
	}

	if err := o.stacks.TerminateStack(ctx, existing); err != nil {
		return err
	}
	log.Info("Stack has been scheduled for termination")

	cfg, err := o.configs.LoadConfig(ctx, event.Owner, event.Repo)
	if err != nil {
		return err
	}
	if !cfg.Notify.OnDelete {
		log.Info("Skip notification on stack delete")
		return nil
	}
	o.notify(ctx, log, event, fmt.Sprintf(":skull: Stack `%s` has been scheduled for termination!", name))
	return nil
}

// notify posts a comment; a failure to comment is logged, never returned.
func (o *Orchestrator) notify(ctx context.Context, log *logrus.Entry, event models.Event, message string) {
	if err := o.notifier.Notify(ctx, event.Target(), message); err != nil {
		log.WithError(err).Error("Failed to post comment")
	}
}

func createdMessage(name, webURL string, urls map[string][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":tada: Your new stack `%s` has been created!\n\n%s\n", name, webURL)

	services := make([]string, 0, len(urls))
	for svc := range urls {
		services = append(services, svc)
	}
	sort.Strings(services)

	if len(services) > 0 {
		b.WriteString("\n")
	}
	for _, svc := range services {
		fmt.Fprintf(&b, "* %s\n", svc)
		for _, u := range urls[svc] {
			fmt.Fprintf(&b, "  * %s\n", u)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatError renders err as a fenced block for a comment. Remote API errors
// with a JSON body are shown as indented JSON; anything else is printed with
// its stack trace when one was recorded.
func FormatError(err error) string {
	var apiErr *dockercloud.APIError
	if errors.As(err, &apiErr) {
		if _, raw := apiErr.Body.(string); !raw {
			pretty, jsonErr := json.MarshalIndent(apiErr.Body, "", "  ")
			if jsonErr == nil {
				return fmt.Sprintf("```json\n%s\n```", pretty)
			}
		}
	}
	return fmt.Sprintf("```\n%+v\n```", err)
}
