package liveness

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

// ErrNoSuchTask is returned when a message is addressed to a handle that
// has no registered inbox on this node.
var ErrNoSuchTask = errors.New("liveness: no such task")

// Envelope is one message delivered through an Inbox: a fan-out Publish
// (Token empty, no reply expected) or a MultiCall request/reply pair
// correlated by Token.
type Envelope struct {
	Token string
	Body  []byte
	From  registry.NodeID
}

// Inbox is the local half of the registry.Mailbox contract: a per-handle
// mailbox channel that application code reads from to receive
// Publish/MultiCall traffic, and a reply-correlation table MultiCall's
// callers wait on.
type Inbox struct {
	mu      sync.Mutex
	boxes   map[registry.Handle]chan Envelope
	pending sync.Map // token (string) -> chan []byte
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{boxes: make(map[registry.Handle]chan Envelope)}
}

// Register creates h's inbox with the given buffer size and returns the
// receive side for the registered task to consume. Re-registering h
// replaces its previous inbox.
func (ib *Inbox) Register(h registry.Handle, bufSize int) <-chan Envelope {
	ch := make(chan Envelope, bufSize)
	ib.mu.Lock()
	ib.boxes[h] = ch
	ib.mu.Unlock()
	return ch
}

// Unregister removes h's inbox.
func (ib *Inbox) Unregister(h registry.Handle) {
	ib.mu.Lock()
	delete(ib.boxes, h)
	ib.mu.Unlock()
}

// Deliver places env into h's inbox without blocking; a full inbox drops
// the message, matching Publish's best-effort delivery guarantee.
func (ib *Inbox) Deliver(h registry.Handle, env Envelope) error {
	ib.mu.Lock()
	ch, ok := ib.boxes[h]
	ib.mu.Unlock()
	if !ok {
		return ErrNoSuchTask
	}
	select {
	case ch <- env:
		return nil
	default:
		return nil
	}
}

// NewWait registers a fresh correlation token and returns it along with
// the channel its reply will arrive on. Callers select on the returned
// channel against their own timeout/death signals and must call
// CancelWait if they give up before a reply arrives.
func (ib *Inbox) NewWait() (string, <-chan []byte) {
	token := newToken()
	ch := make(chan []byte, 1)
	ib.pending.Store(token, ch)
	return token, ch
}

// Reply delivers body to whoever is waiting on token, if anyone still is.
func (ib *Inbox) Reply(token string, body []byte) {
	if v, ok := ib.pending.LoadAndDelete(token); ok {
		v.(chan []byte) <- body
	}
}

// CancelWait stops waiting on token without delivering a reply.
func (ib *Inbox) CancelWait(token string) {
	ib.pending.Delete(token)
}

func newToken() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
