package stack

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stackbot-deployment/internal/models"
)

var (
	// ErrRetriesExhausted means the stack stayed in a stalled state for the
	// whole retry budget.
	ErrRetriesExhausted = errors.New("too many retries")

	// ErrStackTerminated means the stack was terminated while waiting for it
	// to run.
	ErrStackTerminated = errors.New("aborting, stack has been terminated")
)

type pollAction int

const (
	pollDone pollAction = iota
	pollHold
	pollStart
	pollAbort
	pollAgain
)

// nextAction decides what the poller does after observing state.
func nextAction(state models.StackState) pollAction {
	switch state {
	case models.StateRunning:
		return pollDone
	case models.StateStarting, models.StateRedeploying:
		return pollHold
	case models.StateTerminated:
		return pollAbort
	case models.StateNotRunning:
		return pollStart
	default:
		return pollAgain
	}
}

// WaitForRunning polls the stack until it is running. Every poll spends one
// unit of the retry budget except polls that observe the stack starting or
// redeploying. A stack found not running is started and polled again.
func (c *Controller) WaitForRunning(ctx context.Context, uuid string) (*models.Stack, error) {
	remaining := c.retries
	for {
		if remaining <= 0 {
			return nil, errors.Wrapf(ErrRetriesExhausted, "stack %s did not reach running after %d attempts", uuid, c.retries)
		}
		remaining--

		if err := c.sleep(ctx, c.interval); err != nil {
			return nil, err
		}

		stack, err := c.api.GetStack(ctx, uuid)
		if err != nil {
			return nil, err
		}

		log := c.logger.WithFields(logrus.Fields{
			"stack": stack.Name,
			"state": stack.State,
		})

		action := nextAction(stack.Status())
		switch action {
		case pollDone:
			return stack, nil
		case pollHold:
			remaining++
			log.Info("Stack is still in progress, hold on")
			continue
		}

		log = log.WithField("retries_left", remaining)
		switch action {
		case pollAbort:
			log.Error("Stack has been terminated while waiting for it")
			return nil, errors.Wrapf(ErrStackTerminated, "stack %s", stack.Name)
		case pollStart:
			log.Info("Stack not running, trying to start it")
			if err := c.api.StartStack(ctx, uuid); err != nil {
				return nil, err
			}
		default:
			log.Info("Stack not running yet")
		}
	}
}
