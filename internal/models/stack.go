package models

import "strings"

// StackState is the normalized lifecycle state of a remote stack.
type StackState int

const (
	StateUnknown StackState = iota
	StateNotRunning
	StateStarting
	StateRunning
	StateRedeploying
	StateTerminating
	StateTerminated
)

var stackStates = map[string]StackState{
	"not running": StateNotRunning,
	"starting":    StateStarting,
	"running":     StateRunning,
	"redeploying": StateRedeploying,
	"terminating": StateTerminating,
	"terminated":  StateTerminated,
}

// ParseStackState maps the free-form state reported by the remote API onto
// StackState. Matching ignores case, surrounding space, and '-'/'_' separators.
func ParseStackState(raw string) StackState {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", " ", "_", " ").Replace(key)
	if state, ok := stackStates[key]; ok {
		return state
	}
	return StateUnknown
}

func (s StackState) String() string {
	for name, state := range stackStates {
		if state == s {
			return name
		}
	}
	return "unknown"
}

// Active reports whether the stack still counts as deployed.
func (s StackState) Active() bool {
	return s != StateTerminating && s != StateTerminated
}

type Stack struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	State       string   `json:"state"`
	ResourceURI string   `json:"resource_uri,omitempty"`
	Services    []string `json:"services"`
}

// Status returns the normalized state of the stack.
func (s *Stack) Status() StackState {
	return ParseStackState(s.State)
}

type ContainerPort struct {
	InnerPort   int    `json:"inner_port"`
	OuterPort   int    `json:"outer_port"`
	Protocol    string `json:"protocol,omitempty"`
	EndpointURI string `json:"endpoint_uri,omitempty"`
}

type Service struct {
	UUID           string          `json:"uuid,omitempty"`
	Name           string          `json:"name"`
	ResourceURI    string          `json:"resource_uri,omitempty"`
	ContainerPorts []ContainerPort `json:"container_ports"`
}

// StackList is the paginated envelope returned when listing stacks.
type StackList struct {
	Objects []Stack `json:"objects"`
}
