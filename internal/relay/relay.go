package relay

import "context"

type Command struct {
	ID   string
	Text string
}

// Mailbox is the poll-based command channel between the control plane and the
// orchestrator. At most one command is outstanding at a time; claiming a new
// command supersedes any stale prior result.
type Mailbox interface {
	// Poll claims the oldest pending command, or returns nil when none is
	// pending.
	Poll(ctx context.Context) (*Command, error)
	// PublishResult stores the result payload for a claimed command.
	PublishResult(ctx context.Context, commandID string, payload []byte) error
}
