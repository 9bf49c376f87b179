package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

// Server mounts the HTTP endpoints that implement the wire side of the
// registry engine's inter-node RPCs: join_on_node, leave_on_node,
// sync_join, sync_leave, and the anti-entropy snapshot exchange, all
// multiplexed through one envelope-framed endpoint per scope. It is the
// receiving end of another node's HTTPTransport.Call/Broadcast.
type Server struct {
	registry *registry.Registry
	log      *zap.Logger
}

// NewServer returns a Server dispatching into dir.
func NewServer(dir *registry.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{registry: dir, log: log}
}

// Mount registers the registry RPC endpoint on mux.
func (srv *Server) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /registry/", srv.serveRPC)
}

func (srv *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "malformed scope path", http.StatusBadRequest)
		return
	}
	s, ok := srv.registry.Get(scope)
	if !ok {
		http.Error(w, registry.ErrInvalidScope.Error(), http.StatusNotFound)
		return
	}

	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := dispatch(s, env)
	if err != nil {
		srv.log.Warn("registry rpc dispatch failed", zap.String("scope", scope), zap.String("kind", env.Kind), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

// scopeFromPath extracts "name" from "/registry/name/rpc".
func scopeFromPath(path string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "/registry/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "rpc" {
		return "", false
	}
	return parts[0], true
}

func dispatch(s *registry.Scope, env envelope) (envelope, error) {
	switch env.Kind {
	case "join_on_node":
		var msg registry.JoinOnNode
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return envelope{}, err
		}
		return encodeReply(s.HandleJoinOnNode(msg))
	case "leave_on_node":
		var msg registry.LeaveOnNode
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return envelope{}, err
		}
		return encodeReply(s.HandleLeaveOnNode(msg))
	case "sync_join":
		var msg registry.SyncJoin
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return envelope{}, err
		}
		s.HandleSyncJoin(msg)
		return envelope{}, nil
	case "sync_leave":
		var msg registry.SyncLeave
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return envelope{}, err
		}
		s.HandleSyncLeave(msg)
		return envelope{}, nil
	case "snapshot":
		var msg registry.Snapshot
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return envelope{}, err
		}
		return encodeReply(s.HandleSnapshot(msg))
	default:
		return envelope{}, errUnknownKind(env.Kind)
	}
}

func encodeReply(v any) (envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Payload: payload}, nil
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "transport: unknown rpc kind " + string(e) }
