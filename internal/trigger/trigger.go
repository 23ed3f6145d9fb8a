package trigger

import (
	"github.com/sirupsen/logrus"

	"stackbot-deployment/internal/models"
)

// Decision holds the outcome of each admission check.
type Decision struct {
	BranchAllowed bool
	IssuerAllowed bool
	StateMatches  bool
}

// Admitted is true only when every check passed.
func (d Decision) Admitted() bool {
	return d.BranchAllowed && d.IssuerAllowed && d.StateMatches
}

// Fields exposes the individual checks for structured logging.
func (d Decision) Fields() logrus.Fields {
	return logrus.Fields{
		"branch_allowed": d.BranchAllowed,
		"issuer_allowed": d.IssuerAllowed,
		"state_matches":  d.StateMatches,
	}
}

// Evaluate runs all three checks against the event.
func Evaluate(event models.Event, policy models.TriggerPolicy) Decision {
	return Decision{
		BranchAllowed: IsAllowed(event.BranchName, policy.Branches),
		IssuerAllowed: containsIssuer(policy.AllowedIssuers, event.IssuerKey),
		StateMatches:  event.State == policy.ExpectedState,
	}
}

// ShouldTrigger reports whether the event may start a stack action.
func ShouldTrigger(event models.Event, policy models.TriggerPolicy) bool {
	return Evaluate(event, policy).Admitted()
}

func containsIssuer(issuers []string, key string) bool {
	for _, issuer := range issuers {
		if issuer == key {
			return true
		}
	}
	return false
}
