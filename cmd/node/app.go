package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

// app wires the application-facing HTTP surface: join/leave/members/
// publish/multi_call against a named scope, addressed at /v1/{scope}/....
type app struct {
	dir *registry.Registry
	log *zap.Logger
}

func (a *app) mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/{scope}/join", a.handleJoin)
	mux.HandleFunc("POST /v1/{scope}/leave", a.handleLeave)
	mux.HandleFunc("GET /v1/{scope}/members", a.handleMembers)
	mux.HandleFunc("GET /v1/{scope}/groups", a.handleGroupNames)
	mux.HandleFunc("POST /v1/{scope}/publish", a.handlePublish)
	mux.HandleFunc("POST /v1/{scope}/multi_call", a.handleMultiCall)
}

func (a *app) scope(w http.ResponseWriter, r *http.Request) *registry.Scope {
	name := r.PathValue("scope")
	s, ok := a.dir.Get(name)
	if !ok {
		http.Error(w, registry.ErrInvalidScope.Error(), http.StatusNotFound)
		return nil
	}
	return s
}

type joinRequest struct {
	Group  registry.GroupName `json:"group"`
	Handle registry.Handle    `json:"handle"`
	Meta   registry.Meta      `json:"meta"`
}

type joinResponse struct {
	Kind registry.JoinCallbackKind `json:"kind"`
}

func (a *app) handleJoin(w http.ResponseWriter, r *http.Request) {
	s := a.scope(w, r)
	if s == nil {
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := s.Join(r.Context(), req.Group, req.Handle, req.Meta)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{Kind: kind})
}

type leaveRequest struct {
	Group  registry.GroupName `json:"group"`
	Handle registry.Handle    `json:"handle"`
}

func (a *app) handleLeave(w http.ResponseWriter, r *http.Request) {
	s := a.scope(w, r)
	if s == nil {
		return
	}
	var req leaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Leave(r.Context(), req.Group, req.Handle); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleMembers(w http.ResponseWriter, r *http.Request) {
	s := a.scope(w, r)
	if s == nil {
		return
	}
	group := registry.GroupName(r.URL.Query().Get("group"))
	var members []registry.Member
	if r.URL.Query().Get("local") == "1" {
		members = s.LocalMembers(group)
	} else {
		members = s.Members(group)
	}
	writeJSON(w, http.StatusOK, members)
}

func (a *app) handleGroupNames(w http.ResponseWriter, r *http.Request) {
	s := a.scope(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.GroupNames(nil))
}

type publishRequest struct {
	Group registry.GroupName `json:"group"`
	Body  json.RawMessage    `json:"body"`
	Local bool               `json:"local"`
}

func (a *app) handlePublish(w http.ResponseWriter, r *http.Request) {
	s := a.scope(w, r)
	if s == nil {
		return
	}
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var n int
	if req.Local {
		n = s.LocalPublish(req.Group, req.Body)
	} else {
		n = s.Publish(req.Group, req.Body)
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

type multiCallRequest struct {
	Group     registry.GroupName `json:"group"`
	Body      json.RawMessage    `json:"body"`
	TimeoutMS int                `json:"timeout_ms"`
}

type multiCallResponse struct {
	Replies []registry.Reply `json:"replies"`
	Bad     []registry.Bad   `json:"bad"`
}

func (a *app) handleMultiCall(w http.ResponseWriter, r *http.Request) {
	s := a.scope(w, r)
	if s == nil {
		return
	}
	var req multiCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout+time.Second)
	defer cancel()
	replies, bad, err := s.MultiCall(ctx, req.Group, req.Body, timeout)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, multiCallResponse{Replies: replies, Bad: bad})
}

func writeRegistryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrInvalidScope):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrNotAlive), errors.Is(err, registry.ErrNotInGroup):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrNoMailbox):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
