// Package gateway implements the public control-plane HTTP API: actor
// and service CRUD, forwarding creates/deletes/tells to the hosting
// service that owns each actor, backed by the central actor and service
// registries.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/najoast/actorsys/proto"
	"github.com/najoast/actorsys/registry"
	"github.com/najoast/actorsys/transport"
)

// actorCreator is the subset of *transport.HTTPTransport the gateway
// needs to forward creation requests; creation has no bus equivalent so
// it is never part of the Transport interface used for tell/ask routing.
type actorCreator interface {
	CreateActor(ctx context.Context, baseURL string, cmd proto.CreateCommand) error
}

// Server is the control-plane gateway's HTTP server.
type Server struct {
	actors   *registry.Registry
	services *registry.ServiceRegistry
	router   *transport.Router
	creator  actorCreator
	monitor  *HealthMonitor
	apiKey   string
	logger   *slog.Logger

	mux *http.ServeMux
	srv *http.Server
}

// Config configures a Server.
type Config struct {
	Addr           string
	APIKey         string
	MetricsEnabled bool
	Logger         *slog.Logger
}

// NewServer wires a gateway Server over the given registries, router,
// and creator (normally the same *transport.HTTPTransport backing
// router.HTTP).
func NewServer(actors *registry.Registry, services *registry.ServiceRegistry, router *transport.Router, creator actorCreator, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		actors:   actors,
		services: services,
		router:   router,
		creator:  creator,
		apiKey:   cfg.APIKey,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	if cfg.MetricsEnabled {
		s.mux.HandleFunc("/metrics", s.handleMetrics)
	}

	s.mux.HandleFunc("/api/v1/actors", requireAPIKey(s.apiKey, s.handleActorsCollection))
	s.mux.HandleFunc("/api/v1/actors/by-service/", requireAPIKey(s.apiKey, s.handleActorsByService))
	s.mux.HandleFunc("/api/v1/actors/", requireAPIKey(s.apiKey, s.handleActorByID))
	s.mux.HandleFunc("/api/v1/services", requireAPIKey(s.apiKey, s.handleServicesList))
	s.mux.HandleFunc("/api/v1/services/register", requireAPIKey(s.apiKey, s.handleServiceRegister))
	s.mux.HandleFunc("/api/v1/services/heartbeat", requireAPIKey(s.apiKey, s.handleServiceHeartbeat))

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the gateway until shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", "addr", s.srv.Addr)
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

// SetHealthMonitor wires the gateway's health monitor in so re-
// registration from a previously unhealthy service can be treated as an
// immediate recovery rather than waiting for the next probe tick.
func (s *Server) SetHealthMonitor(m *HealthMonitor) {
	s.monitor = m
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
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

type createActorRequest struct {
	ServiceID string                 `json:"serviceId"`
	ActorType string                 `json:"actorType"`
	ActorID   string                 `json:"actorId,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

func (s *Server) handleActorsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createActor(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.actors.List())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST or GET required")
	}
}

func (s *Server) createActor(w http.ResponseWriter, r *http.Request) {
	var req createActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode request: %v", err))
		return
	}

	svc, ok := s.services.Get(req.ServiceID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_service", fmt.Sprintf("service %s not registered", req.ServiceID))
		return
	}
	if !svc.Healthy {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", fmt.Sprintf("service %s is unavailable", req.ServiceID))
		return
	}
	if !s.services.SupportsActorType(req.ServiceID, req.ActorType) {
		writeError(w, http.StatusBadRequest, "unknown_actor_type", fmt.Sprintf("service %s does not support %s", req.ServiceID, req.ActorType))
		return
	}

	rec, err := s.actors.Create(req.ActorID, req.ActorType, req.ServiceID, svc.ServiceURL, req.Params)
	if err != nil {
		writeError(w, http.StatusConflict, "create_failed", err.Error())
		return
	}

	cmd := proto.CreateCommand{ActorType: req.ActorType, ActorID: rec.ActorID, Params: req.Params, RequesterID: req.ServiceID}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.creator.CreateActor(ctx, svc.ServiceURL, cmd); err != nil {
		_ = s.actors.Delete(rec.ActorID)
		writeError(w, http.StatusBadGateway, "spawn_failed", err.Error())
		return
	}

	if err := s.actors.MarkActive(rec.ActorID); err != nil {
		s.logger.Warn("mark active failed", "actor_id", rec.ActorID, "error", err)
	}
	rec.Status = proto.StatusActive

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleActorsByService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	serviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/actors/by-service/")
	if serviceID == "" {
		writeError(w, http.StatusNotFound, "not_found", "missing serviceId")
		return
	}
	if _, ok := s.services.Get(serviceID); !ok {
		writeError(w, http.StatusNotFound, "unknown_service", serviceID)
		return
	}
	writeJSON(w, http.StatusOK, s.actors.LookupByService(serviceID))
}

func (s *Server) handleActorByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/actors/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not_found", "missing actor id")
		return
	}
	actorID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getActor(w, actorID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.deleteActor(w, r, actorID)
	case len(parts) == 2 && parts[1] == "tell" && r.Method == http.MethodPost:
		s.tellActor(w, r, actorID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "no such gateway route")
	}
}

func (s *Server) getActor(w http.ResponseWriter, actorID string) {
	rec, ok := s.actors.LookupByID(actorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "actor not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteActor(w http.ResponseWriter, r *http.Request, actorID string) {
	rec, ok := s.actors.LookupByID(actorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "actor not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	address := transport.JoinAddress(rec.ServiceURL, rec.ActorID)
	if err := s.router.HTTP.Stop(ctx, address); err != nil {
		s.logger.Warn("hosting service stop failed, removing record anyway", "actor_id", actorID, "error", err)
	}

	if err := s.actors.Delete(actorID); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tellRequest struct {
	TargetActorID string          `json:"targetActorId"`
	SenderActorID string          `json:"senderActorId,omitempty"`
	Message       *proto.Envelope `json:"message"`
}

func (s *Server) tellActor(w http.ResponseWriter, r *http.Request, actorID string) {
	var req tellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode tell request: %v", err))
		return
	}

	rec, ok := s.actors.LookupByID(actorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "actor not found")
		return
	}
	if rec.Status == proto.StatusUnavailable {
		writeError(w, http.StatusServiceUnavailable, "actor_unavailable", "actor's hosting service is unavailable")
		return
	}

	dest := transport.Destination{ServiceURL: rec.ServiceURL, ActorID: rec.ActorID, ActorType: rec.ActorType}
	if err := s.router.SendDataPlane(r.Context(), dest, req.Message, req.SenderActorID); err != nil {
		writeError(w, http.StatusBadGateway, "tell_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func (s *Server) handleServicesList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.services.List())
}

type registerRequest struct {
	ServiceID           string   `json:"serviceId"`
	ServiceURL          string   `json:"serviceUrl"`
	SupportedActorTypes []string `json:"supportedActorTypes,omitempty"`
}

func (s *Server) handleServiceRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode register request: %v", err))
		return
	}
	if req.ServiceID == "" || req.ServiceURL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "serviceId and serviceUrl are required")
		return
	}
	prev, known := s.services.Get(req.ServiceID)
	rec := s.services.Register(req.ServiceID, req.ServiceURL, req.SupportedActorTypes)
	if s.monitor != nil && known && !prev.Healthy {
		s.monitor.OnReregister(req.ServiceID)
	}
	writeJSON(w, http.StatusOK, rec)
}

type heartbeatRequest struct {
	ServiceID string `json:"serviceId"`
}

func (s *Server) handleServiceHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("decode heartbeat request: %v", err))
		return
	}
	if err := s.services.Heartbeat(req.ServiceID); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}
