package trigger

import (
	"regexp"
	"strings"

	"stackbot-deployment/internal/models"
)

// IsAllowed reports whether branch passes the policy. Only takes precedence
// over Ignore; an absent or empty policy admits every branch.
func IsAllowed(branch string, policy *models.BranchPolicy) bool {
	if policy == nil {
		return true
	}
	if policy.Only != nil {
		return matchesAny(branch, policy.Only)
	}
	if policy.Ignore != nil {
		return !matchesAny(branch, policy.Ignore)
	}
	return true
}

func matchesAny(branch string, entries []string) bool {
	for _, entry := range entries {
		if matches(branch, entry) {
			return true
		}
	}
	return false
}

// matches compares a literal entry exactly, or a /pattern/ entry as an
// unanchored regular expression. Patterns that fail to compile match nothing.
func matches(branch, entry string) bool {
	if isPattern(entry) {
		re, err := regexp.Compile(entry[1 : len(entry)-1])
		if err != nil {
			return false
		}
		return re.MatchString(branch)
	}
	return entry == branch
}

func isPattern(entry string) bool {
	return len(entry) >= 2 && strings.HasPrefix(entry, "/") && strings.HasSuffix(entry, "/")
}
