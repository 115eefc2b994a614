package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// ConversationKind distinguishes direct threads from groups
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// directNamespace seeds name-based ids of direct conversations.
var directNamespace = uuid.MustParse("6f1c2b7e-3a51-4d0c-9a57-0c4e5d1b8f21")

// ConversationRef addresses a message log
type ConversationRef struct {
	ID   uuid.UUID        `json:"conversation_id"`
	Kind ConversationKind `json:"kind"`
}

// DirectConversation is the 2-party thread between two identities.
// Maps to CockroachDB direct_conversations table
type DirectConversation struct {
	ID           uuid.UUID    `json:"conversation_id" db:"conversation_id"`
	Key          string       `json:"conversation_key" db:"conversation_key"`
	Participants [2]uuid.UUID `json:"participants" db:"participants"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// sortedPair orders a and b by their bytes
func sortedPair(a, b uuid.UUID) [2]uuid.UUID {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

// DirectKey joins the sorted pair with "_". DirectKey(a,b) == DirectKey(b,a).
func DirectKey(a, b uuid.UUID) string {
	p := sortedPair(a, b)
	return p[0].String() + "_" + p[1].String()
}

// DirectID derives the conversation id from the pair key.
func DirectID(a, b uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(directNamespace, []byte(DirectKey(a, b)))
}

// NewDirectConversation builds the record for a pair, not yet persisted
func NewDirectConversation(a, b uuid.UUID, now time.Time) *DirectConversation {
	return &DirectConversation{
		ID:           DirectID(a, b),
		Key:          DirectKey(a, b),
		Participants: sortedPair(a, b),
		CreatedAt:    now,
	}
}

// HasParticipant reports whether id is one of the two parties
func (c *DirectConversation) HasParticipant(id uuid.UUID) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}

// Peer returns the other participant
func (c *DirectConversation) Peer(id uuid.UUID) uuid.UUID {
	if c.Participants[0] == id {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// Link is the share path of the conversation
func (c *DirectConversation) Link() string { return "/chat/" + c.ID.String() }

// Ref addresses the message log of the conversation
func (c *DirectConversation) Ref() ConversationRef {
	return ConversationRef{ID: c.ID, Kind: KindDirect}
}

// DirectConversationResponse is a conversation plus its share link
type DirectConversationResponse struct {
	*DirectConversation
	Link string `json:"link"`
}

// ToResponse wraps the conversation for API output
func (c *DirectConversation) ToResponse() *DirectConversationResponse {
	return &DirectConversationResponse{DirectConversation: c, Link: c.Link()}
}
