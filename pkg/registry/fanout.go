package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// The fan-out services never touch the scope task: they snapshot the
// query surface once and then drive delivery entirely from the caller's
// goroutine tree, so a slow or dead member can never stall a Join, Leave,
// or another fan-out call.

// Reply pairs a member with the response its worker collected in
// MultiCall.
type Reply struct {
	Handle Handle
	Meta   Meta
	Body   []byte
}

// Bad is a member MultiCall could not collect a reply from, either
// because it died mid-call or because it did not answer before timeout.
type Bad struct {
	Handle Handle
	Meta   Meta
}

// Publish snapshots members and delivers msg to each one's inbox with
// fire-and-forget semantics. It returns the snapshot size; per-member
// delivery failures are not reported back to the caller.
func (s *Scope) Publish(group GroupName, msg []byte) int {
	return s.publish(s.Members(group), msg)
}

// LocalPublish is Publish restricted to this node's own members.
func (s *Scope) LocalPublish(group GroupName, msg []byte) int {
	return s.publish(s.LocalMembers(group), msg)
}

func (s *Scope) publish(members []Member, msg []byte) int {
	if s.mailbox == nil {
		return len(members)
	}
	for _, m := range members {
		go func(h Handle) {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			_ = s.mailbox.Send(ctx, h, msg)
		}(m.Handle)
	}
	return len(members)
}

// MultiCall snapshots members and spawns one worker goroutine per member
// to deliver msg and wait up to timeout for a reply, isolating a slow or
// dead target from the rest of the scatter. It returns exactly one
// classification — a Reply or a Bad — per snapshotted member.
func (s *Scope) MultiCall(ctx context.Context, group GroupName, msg []byte, timeout time.Duration) ([]Reply, []Bad, error) {
	if s.mailbox == nil {
		return nil, nil, ErrNoMailbox
	}
	members := s.Members(group)

	type result struct {
		reply *Reply
		bad   *Bad
	}
	results := make([]result, len(members))

	var wg sync.WaitGroup
	wg.Add(len(members))
	for i, m := range members {
		i, m := i, m
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			body, err := s.mailbox.Call(callCtx, m.Handle, msg, timeout)
			if err != nil {
				results[i] = result{bad: &Bad{Handle: m.Handle, Meta: m.Meta}}
				return
			}
			results[i] = result{reply: &Reply{Handle: m.Handle, Meta: m.Meta, Body: body}}
		}()
	}
	wg.Wait()

	replies := make([]Reply, 0, len(results))
	bad := make([]Bad, 0, len(results))
	for _, r := range results {
		switch {
		case r.reply != nil:
			replies = append(replies, *r.reply)
		case r.bad != nil:
			bad = append(bad, *r.bad)
		}
	}
	s.metrics.multiCall(len(members), len(replies), len(bad))
	return replies, bad, nil
}

// MultiCallJSON is a convenience wrapper around MultiCall that marshals
// req to JSON before fanning it out, sparing callers that []byte
// plumbing. Replies and bad entries still come back raw, body undecoded.
func (s *Scope) MultiCallJSON(ctx context.Context, group GroupName, req any, timeout time.Duration) ([]Reply, []Bad, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	return s.MultiCall(ctx, group, body, timeout)
}

const publishTimeout = 2 * time.Second
