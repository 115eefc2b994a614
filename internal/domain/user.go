package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the directory record of an identity, created on its first visit.
// Tagged holds the identities the user marked as friends.
// Maps to CockroachDB users table
type User struct {
	ID        uuid.UUID `json:"user_id" db:"user_id"`
	Label     string    `json:"label" db:"label"`
	Tagged    IDSet     `json:"tagged" db:"tagged"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewUser builds the record for an identity, not yet persisted
func NewUser(identity Identity, now time.Time) *User {
	return &User{
		ID:        identity.ID,
		Label:     identity.Label,
		Tagged:    NewIDSet(),
		CreatedAt: now,
	}
}

// Clone returns a copy that shares no state with u
func (u *User) Clone() *User {
	c := *u
	c.Tagged = u.Tagged.Clone()
	return &c
}
