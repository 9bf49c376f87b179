// Package liveness is the in-process implementation of the registry
// engine's Monitor collaborator, plus the local Inbox that
// pkg/transport.Mailbox delivers into: it is the thing the engine calls
// out to instead of inspecting a task's internals directly.
//
// A task is whatever goroutine-backed unit of work the host process
// registers as a group member, identified by a registry.Handle: Monitor
// keeps its liveness flag (set by Register, cleared by Kill), and Inbox
// holds the channel the fan-out services and remote peers deliver
// envelopes into.
package liveness
