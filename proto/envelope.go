// Package proto defines the wire-level message types exchanged between
// clients, the control-plane gateway, and hosting services.
package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope carries one message payload between actors, locally or across
// services. It is the unit exchanged over both the HTTP control transport
// and the streaming-bus transport.
type Envelope struct {
	// Type is a registered tag identifying how Payload should be decoded.
	Type string `json:"type"`

	// MessageID uniquely identifies this envelope.
	MessageID string `json:"messageId"`

	// Timestamp is when the envelope was created.
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID links request/response pairs across an ask exchange.
	CorrelationID string `json:"correlationId,omitempty"`

	// Payload is the opaque message body, decoded according to Type.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an Envelope with a fresh message id and the current
// timestamp, marshaling payload to JSON.
func NewEnvelope(msgType string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope payload: %w", err)
	}
	return &Envelope{
		Type:      msgType,
		MessageID: uuid.NewString(),
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

// MarshalJSON renders Timestamp as RFC3339Nano, matching the wire form
// used throughout the rest of this system's JSON surfaces.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		alias:     (*alias)(e),
	})
}

// UnmarshalJSON parses the RFC3339Nano timestamp produced by MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse envelope timestamp: %w", err)
		}
		e.Timestamp = ts
	}
	return nil
}

// TellCommand is the wire form of a fire-and-forget send, used by both the
// HTTP control transport and the streaming-bus transport.
type TellCommand struct {
	TargetActorID string    `json:"targetActorId"`
	SenderActorID string    `json:"senderActorId,omitempty"`
	Message       *Envelope `json:"message"`
}

// CreateCommand is the wire form of an actor creation request.
type CreateCommand struct {
	ActorType   string                 `json:"actorType"`
	ActorID     string                 `json:"actorId,omitempty"`
	Params      map[string]interface{} `json:"params,omitempty"`
	RequesterID string                 `json:"requesterId,omitempty"`
}

// ActorStatus is the lifecycle status of an actor as tracked by the
// central registry.
type ActorStatus string

const (
	StatusCreated     ActorStatus = "CREATED"
	StatusActive      ActorStatus = "ACTIVE"
	StatusUnavailable ActorStatus = "UNAVAILABLE"
	StatusStopped     ActorStatus = "STOPPED"
)

// ActorRecord is the central registry's authoritative record for one
// actor: its identity, the service that hosts it, and its current status.
type ActorRecord struct {
	ActorID    string                 `json:"actorId"`
	ActorType  string                 `json:"actorType"`
	ServiceID  string                 `json:"serviceId"`
	ServiceURL string                 `json:"serviceUrl"`
	Status     ActorStatus            `json:"state"`
	CreatedAt  time.Time              `json:"createdAt"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// ServiceRecord is the service registry's record for one hosting service.
type ServiceRecord struct {
	ServiceID           string    `json:"serviceId"`
	ServiceURL          string    `json:"serviceUrl"`
	LastHeartbeat       time.Time `json:"lastHeartbeat"`
	Healthy             bool      `json:"healthy"`
	SupportedActorTypes []string  `json:"supportedActorTypes,omitempty"`
}
