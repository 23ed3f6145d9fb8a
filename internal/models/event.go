package models

// EventKind discriminates the inbound notifications the orchestrator reacts to.
type EventKind int

const (
	StatusChange EventKind = iota
	ChangeRequestClosed
)

func (k EventKind) String() string {
	switch k {
	case StatusChange:
		return "status"
	case ChangeRequestClosed:
		return "pull_request.closed"
	default:
		return "unknown"
	}
}

// Event is an inbound source-control notification. It is built once per
// delivery and never mutated.
type Event struct {
	Kind       EventKind
	DeliveryID string
	Owner      string
	Repo       string
	BranchName string
	IssuerKey  string
	State      string
	SHA        string
	PRNumber   int
	FromSelf   bool
}

// NotifyTarget identifies where a comment about an event should be posted.
type NotifyTarget struct {
	Owner      string
	Repo       string
	BranchName string
	SHA        string
	PRNumber   int
}

// Target derives the notification target of the event.
func (e Event) Target() NotifyTarget {
	return NotifyTarget{
		Owner:      e.Owner,
		Repo:       e.Repo,
		BranchName: e.BranchName,
		SHA:        e.SHA,
		PRNumber:   e.PRNumber,
	}
}
