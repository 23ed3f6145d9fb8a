package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stackbot-deployment/internal/models"
)

// ErrIgnoredEvent is returned for deliveries the orchestrator does not handle.
var ErrIgnoredEvent = errors.New("ignored event")

type repository struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type sender struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

type statusPayload struct {
	SHA      string `json:"sha"`
	State    string `json:"state"`
	Context  string `json:"context"`
	Branches []struct {
		Name string `json:"name"`
	} `json:"branches"`
	Repository repository `json:"repository"`
	Sender     sender     `json:"sender"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository repository `json:"repository"`
	Sender     sender     `json:"sender"`
}

// ParseEvent decodes a webhook delivery by its X-GitHub-Event name. Events
// other than status and closed pull requests yield ErrIgnoredEvent.
func ParseEvent(name, deliveryID string, body []byte) (models.Event, error) {
	switch name {
	case "status":
		var p statusPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return models.Event{}, fmt.Errorf("invalid status payload: %w", err)
		}
		if len(p.Branches) == 0 {
			return models.Event{}, fmt.Errorf("%w: status for %s is not attached to a branch", ErrIgnoredEvent, p.SHA)
		}
		return models.Event{
			Kind:       models.StatusChange,
			DeliveryID: deliveryID,
			Owner:      p.Repository.Owner.Login,
			Repo:       p.Repository.Name,
			BranchName: p.Branches[0].Name,
			IssuerKey:  p.Context,
			State:      p.State,
			SHA:        p.SHA,
			FromSelf:   isBot(p.Sender),
		}, nil

	case "pull_request":
		var p pullRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return models.Event{}, fmt.Errorf("invalid pull_request payload: %w", err)
		}
		if p.Action != "closed" {
			return models.Event{}, fmt.Errorf("%w: pull_request.%s", ErrIgnoredEvent, p.Action)
		}
		return models.Event{
			Kind:       models.ChangeRequestClosed,
			DeliveryID: deliveryID,
			Owner:      p.Repository.Owner.Login,
			Repo:       p.Repository.Name,
			BranchName: p.PullRequest.Head.Ref,
			SHA:        p.PullRequest.Head.SHA,
			PRNumber:   p.Number,
			FromSelf:   isBot(p.Sender),
		}, nil
	}
	return models.Event{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, name)
}

func isBot(s sender) bool {
	return s.Type == "Bot"
}

// ValidSignature checks an X-Hub-Signature-256 header against the body.
func ValidSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
