package registry

import "errors"

// Sentinel error values, checked with errors.Is.
var (
	// ErrInvalidScope is returned by queries and mutations when the named
	// scope instance does not exist.
	ErrInvalidScope = errors.New("registry: invalid scope")

	// ErrNotAlive is returned by Join when the member is not alive at the
	// owning node at the moment the owner processes the request.
	ErrNotAlive = errors.New("registry: member not alive")

	// ErrNotInGroup is returned by Leave when no entry exists for the
	// requested (group, handle) pair at the owning node.
	ErrNotInGroup = errors.New("registry: member not in group")

	// ErrCallTimeout is returned by Mailbox.Call when no reply arrives
	// within the caller's timeout.
	ErrCallTimeout = errors.New("registry: call timed out")

	// ErrCallTargetDead is returned by a Mailbox.Call implementation that
	// watches the target's liveness, when death is reported before a reply
	// arrives. pkg/transport.Mailbox never returns it.
	ErrCallTargetDead = errors.New("registry: call target died")

	// ErrNoMailbox is returned by the fan-out services when a Scope was
	// constructed without WithMailbox.
	ErrNoMailbox = errors.New("registry: scope has no mailbox")
)
