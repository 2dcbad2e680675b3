// Package runtime implements the per-hosting-service HTTP façade that
// wraps a local actor.System: create-actor, tell, ask, list, health,
// restart and delete, all guarded by the shared-secret header.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/najoast/actorsys/events"
	"github.com/najoast/actorsys/proto"
	"github.com/najoast/actorsys/system"
	"github.com/najoast/actorsys/transport"
)

// consumerSubscriber is the subset of *transport.Consumer the façade
// needs; narrowed to an interface so tests can substitute a fake without
// standing up a real bus backend.
type consumerSubscriber interface {
	EnsureSubscribed(ctx context.Context, actorID, actorType string)
}

// Server is the HTTP façade a hosting service runs alongside its
// actor.System, exposing the /runtime endpoints the gateway and peer
// hosting services call.
type Server struct {
	sys       *system.System
	serviceID string
	apiKey    string
	logger    *slog.Logger
	consumer  consumerSubscriber

	mux *http.ServeMux
	srv *http.Server
}

// Config configures a Server.
type Config struct {
	Addr      string
	ServiceID string
	APIKey    string // shared-secret value required in the X-API-KEY header
	Logger    *slog.Logger

	// Consumer, when set, is subscribed to a freshly spawned actor's bus
	// topic immediately after create-actor succeeds, so inter-service
	// Tells over the streaming bus reach it without a separate
	// subscription step.
	Consumer *transport.Consumer
}

// NewServer builds a Server bound to sys; call ListenAndServe to start
// accepting connections.
func NewServer(sys *system.System, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		sys:       sys,
		serviceID: cfg.ServiceID,
		apiKey:    cfg.APIKey,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	// Assign through a nil check rather than directly: a nil
	// *transport.Consumer stored in the consumerSubscriber interface
	// field would compare non-nil, defeating the "consumer != nil" guard
	// in handleCreateActor.
	if cfg.Consumer != nil {
		s.consumer = cfg.Consumer
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/runtime/create-actor", s.withAuth(s.handleCreateActor))
	s.mux.HandleFunc("/runtime/tell", s.withAuth(s.handleTell))
	s.mux.HandleFunc("/runtime/ask", s.withAuth(s.handleAsk))
	s.mux.HandleFunc("/runtime/actors", s.withAuth(s.handleListActors))
	s.mux.HandleFunc("/runtime/actors/", s.withAuth(s.handleActorByID))

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the façade until the server is shut down
// or a fatal error occurs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("runtime facade listening", "addr", s.srv.Addr, "serviceId", s.serviceID)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleHealth answers the gateway health monitor's unauthenticated
// liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-KEY") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid X-API-KEY")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func (s *Server) handleCreateActor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var cmd proto.CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode create command: %v", err))
		return
	}

	ref, err := s.sys.Spawn(system.SpawnParams{
		ActorID:   cmd.ActorID,
		ActorType: cmd.ActorType,
		Params:    cmd.Params,
	})
	if err != nil {
		s.logger.Error("spawn failed", "actorType", cmd.ActorType, "error", err)
		writeError(w, http.StatusBadRequest, "spawn_failed", err.Error())
		return
	}

	if s.consumer != nil {
		s.consumer.EnsureSubscribed(context.Background(), ref.ID(), cmd.ActorType)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"actor_id":   ref.ID(),
		"actor_type": cmd.ActorType,
		"service_id": s.serviceID,
		"state":      ref.State().String(),
	})
}

func (s *Server) handleTell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var cmd proto.TellCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode tell command: %v", err))
		return
	}

	ref, ok := s.sys.Get(cmd.TargetActorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "actor not hosted here")
		return
	}
	if cmd.SenderActorID != "" {
		s.sys.RecordSender(cmd.Message.MessageID, cmd.SenderActorID)
	}
	if err := ref.Tell(cmd.Message, nil); err != nil {
		writeError(w, http.StatusConflict, "tell_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var cmd proto.TellCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode ask command: %v", err))
		return
	}

	ref, ok := s.sys.Get(cmd.TargetActorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "actor not hosted here")
		return
	}

	reply, err := ref.Ask(r.Context(), cmd.Message, 10*time.Second)
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, "ask_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListActors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.sys.AllIDs())
}

// handleActorByID dispatches /runtime/actors/{id}, /runtime/actors/{id}/health
// and /runtime/actors/{id}/restart by trailing-path inspection, since the
// module targets Go 1.21 and predates method-and-pattern ServeMux routing.
func (s *Server) handleActorByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/runtime/actors/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not_found", "missing actor id")
		return
	}
	actorID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.stopActor(w, actorID)
	case len(parts) == 2 && parts[1] == "health" && r.Method == http.MethodGet:
		s.actorHealth(w, actorID)
	case len(parts) == 2 && parts[1] == "restart" && r.Method == http.MethodPost:
		s.restartActor(w, actorID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "no such runtime route")
	}
}

func (s *Server) stopActor(w http.ResponseWriter, actorID string) {
	if err := s.sys.Stop(actorID); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) actorHealth(w http.ResponseWriter, actorID string) {
	snap, err := s.sys.Health(actorID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":           snap.State.String(),
		"last_message_at": snap.LastMessageAt,
		"queue_size":      snap.QueueSize,
	})
}

func (s *Server) restartActor(w http.ResponseWriter, actorID string) {
	if err := s.sys.Restart(actorID, fmt.Errorf("administrative restart requested")); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PublishServiceEvent emits a ServiceDown/ServiceRecovered event onto the
// underlying system's event bus, used by the registration client when it
// detects its own connectivity to the gateway has flapped.
func (s *Server) PublishServiceEvent(evtType events.Type, err error) {
	s.sys.Bus().Publish(events.Event{
		Type:      evtType,
		ServiceID: s.serviceID,
		Err:       err,
		Timestamp: time.Now(),
	})
}
