package domain

import (
	"time"

	"github.com/google/uuid"
)

// SignalRole is the slot a participant writes to
type SignalRole string

const (
	RoleOfferer  SignalRole = "offer"
	RoleAnswerer SignalRole = "answer"
)

// CallSession relays opaque signaling blobs between exactly two participants.
// Transient: stored in a redis hash with TTL or in memory. An empty signal is absent.
type CallSession struct {
	ID             uuid.UUID `json:"session_id"`
	Offerer        uuid.UUID `json:"offerer"`
	Answerer       uuid.UUID `json:"answerer"`
	OffererSignal  string    `json:"offerer_signal,omitempty"`
	AnswererSignal string    `json:"answerer_signal,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// RoleOf returns the slot of id, or false for non-participants.
func (s *CallSession) RoleOf(id uuid.UUID) (SignalRole, bool) {
	switch id {
	case s.Offerer:
		return RoleOfferer, true
	case s.Answerer:
		return RoleAnswerer, true
	}
	return "", false
}

// Peer returns the other participant
func (s *CallSession) Peer(id uuid.UUID) uuid.UUID {
	if id == s.Offerer {
		return s.Answerer
	}
	return s.Offerer
}

// SignalOf returns the blob stored in a slot
func (s *CallSession) SignalOf(role SignalRole) string {
	if role == RoleOfferer {
		return s.OffererSignal
	}
	return s.AnswererSignal
}

// SetSignal overwrites the blob of a slot
func (s *CallSession) SetSignal(role SignalRole, blob string) {
	if role == RoleOfferer {
		s.OffererSignal = blob
		return
	}
	s.AnswererSignal = blob
}

// StartCallRequest is the request body for starting a session. A zero
// SessionID allocates a new session.
type StartCallRequest struct {
	PeerID    uuid.UUID `json:"peer_id" binding:"required"`
	SessionID uuid.UUID `json:"session_id"`
}

// SignalRequest carries a signaling blob as text
type SignalRequest struct {
	Signal string `json:"signal" binding:"required"`
}

// SignalResponse is the peer blob read back by a participant
type SignalResponse struct {
	SessionID uuid.UUID  `json:"session_id"`
	Role      SignalRole `json:"role"`
	Signal    string     `json:"signal,omitempty"`
	Present   bool       `json:"present"`
}
