package domain

import "github.com/google/uuid"

// Identity is the caller as supplied by the identity provider (JWT claims).
// It is read-only for the lifetime of a request.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
}

// SystemSenderID marks messages authored by the service itself.
var SystemSenderID = uuid.Nil
