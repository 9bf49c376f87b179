// Package transport is the HTTP implementation of registry.Transport and
// registry.Mailbox, grounded on this codebase's sibling cluster
// coordinator's PostJSON/GetJSON helpers and its chaos-capable transport
// client. It knows nothing about registry semantics beyond the wire
// envelopes in pkg/registry/wire.go; it only moves bytes between the
// peer addresses discovery hands it.
package transport
