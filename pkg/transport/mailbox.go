package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kaivolabs/pgreg/pkg/liveness"
	"github.com/kaivolabs/pgreg/pkg/registry"
)

// Mailbox implements registry.Mailbox on top of a local liveness.Inbox
// for handles owned by this node and HTTP forwarding through the same
// transport for everything else.
type Mailbox struct {
	t     *HTTPTransport
	inbox *liveness.Inbox
}

// NewMailbox returns a Mailbox that delivers locally through inbox and
// remotely through t.
func NewMailbox(t *HTTPTransport, inbox *liveness.Inbox) *Mailbox {
	return &Mailbox{t: t, inbox: inbox}
}

type sendRequest struct {
	Task  registry.TaskID `json:"task"`
	From  registry.NodeID `json:"from,omitempty"`
	Token string          `json:"token,omitempty"`
	Body  []byte          `json:"body"`
}

type sendResponse struct {
	Err string `json:"err,omitempty"`
}

type replyRequest struct {
	Token string `json:"token"`
	Body  []byte `json:"body"`
}

func (mb *Mailbox) Send(ctx context.Context, h registry.Handle, msg []byte) error {
	if h.Owner() == mb.t.Self() {
		return mb.inbox.Deliver(h, liveness.Envelope{Body: msg, From: mb.t.Self()})
	}
	addr, ok := mb.t.addrOf(h.Owner())
	if !ok {
		return fmt.Errorf("transport: unknown node %s", h.Owner())
	}
	url := fmt.Sprintf("%s/tasks/%s/send", normalizeBase(addr), h.Task)
	var resp sendResponse
	if err := postJSON(ctx, url, sendRequest{Task: h.Task, From: mb.t.Self(), Body: msg}, &resp); err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("transport: %s", resp.Err)
	}
	return nil
}

func (mb *Mailbox) Call(ctx context.Context, h registry.Handle, msg []byte, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, replyCh := mb.inbox.NewWait()
	if err := mb.deliverCall(ctx, h, token, msg); err != nil {
		mb.inbox.CancelWait(token)
		return nil, err
	}

	select {
	case body := <-replyCh:
		return body, nil
	case <-ctx.Done():
		mb.inbox.CancelWait(token)
		return nil, registry.ErrCallTimeout
	}
}

func (mb *Mailbox) deliverCall(ctx context.Context, h registry.Handle, token string, msg []byte) error {
	if h.Owner() == mb.t.Self() {
		return mb.inbox.Deliver(h, liveness.Envelope{Token: token, Body: msg, From: mb.t.Self()})
	}
	addr, ok := mb.t.addrOf(h.Owner())
	if !ok {
		return fmt.Errorf("transport: unknown node %s", h.Owner())
	}
	url := fmt.Sprintf("%s/tasks/%s/send", normalizeBase(addr), h.Task)
	var resp sendResponse
	if err := postJSON(ctx, url, sendRequest{Task: h.Task, From: mb.t.Self(), Token: token, Body: msg}, &resp); err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("transport: %s", resp.Err)
	}
	return nil
}

// ReplyTo delivers a MultiCall response back to whichever node is
// waiting on token. Application code handling a call received through
// an Inbox calls this once it has produced a reply; to is the From node
// carried on the inbound liveness.Envelope's originating sendRequest.
func (mb *Mailbox) ReplyTo(ctx context.Context, to registry.NodeID, token string, body []byte) error {
	if to == mb.t.Self() {
		mb.inbox.Reply(token, body)
		return nil
	}
	addr, ok := mb.t.addrOf(to)
	if !ok {
		return fmt.Errorf("transport: unknown node %s", to)
	}
	url := fmt.Sprintf("%s/tasks/reply", normalizeBase(addr))
	return postJSON(ctx, url, replyRequest{Token: token, Body: body}, nil)
}

// serveTaskInbox handles inbound Send/Call deliveries addressed to a
// task hosted on this node: POST /tasks/{id}/send.
func (mb *Mailbox) serveTaskInbox(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h := registry.Handle{Node: mb.t.Self(), Task: registry.TaskID(r.PathValue("id"))}
	err := mb.inbox.Deliver(h, liveness.Envelope{Token: req.Token, Body: req.Body, From: req.From})
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		_ = json.NewEncoder(w).Encode(sendResponse{Err: err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(sendResponse{})
}

// serveTaskReply handles a remote node forwarding back a MultiCall
// reply: POST /tasks/reply, correlated by token against a wait this
// Mailbox's Call registered earlier.
func (mb *Mailbox) serveTaskReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mb.inbox.Reply(req.Token, req.Body)
	w.WriteHeader(http.StatusNoContent)
}

// Mount registers the task-inbox and reply endpoints on mux.
func (mb *Mailbox) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /tasks/{id}/send", mb.serveTaskInbox)
	mux.HandleFunc("POST /tasks/reply", mb.serveTaskReply)
}
