package model

import "errors"

// Wire-level sentinel errors (§7 "Wire" group): a malformed or unrecognized
// message is dropped and logged by the caller, never surfaced further, and
// never disconnects the peer.
var (
	// ErrMalformed is returned when a message fails to decode, or its
	// declared size does not match its parsed size.
	ErrMalformed = errors.New("model: malformed wire message")
	// ErrUnknownKind is returned when a command or object tag is not a
	// recognized kind.
	ErrUnknownKind = errors.New("model: unknown wire kind")
)

// CommandError records a stateful command failure: which command, in which
// transaction position, and why (§7 "Command" group).
type CommandError struct {
	CommandName string
	Code        int
	Index       int
}

func (e *CommandError) Error() string {
	return e.CommandName + ": command rejected"
}
