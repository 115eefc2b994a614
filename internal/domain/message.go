package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BodyType tags the message payload variant
type BodyType string

const (
	BodyText       BodyType = "text"
	BodyAttachment BodyType = "attachment"
)

// Body is the message payload. Implemented only by TextBody and AttachmentBody.
type Body interface {
	Type() BodyType
	sealed()
}

// TextBody carries a plain text message
type TextBody struct {
	Text string `json:"text"`
}

func (TextBody) Type() BodyType { return BodyText }
func (TextBody) sealed()        {}

// AttachmentBody references an uploaded blob. The bytes never pass through the message log.
type AttachmentBody struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (AttachmentBody) Type() BodyType { return BodyAttachment }
func (AttachmentBody) sealed()        {}

// bodyJSON is the wire shape of Body: {"type":"text","text":...} or
// {"type":"attachment","url":...,"filename":...}
type bodyJSON struct {
	Type     BodyType `json:"type"`
	Text     string   `json:"text,omitempty"`
	URL      string   `json:"url,omitempty"`
	Filename string   `json:"filename,omitempty"`
}

// EncodeBody marshals a body with its type tag
func EncodeBody(b Body) ([]byte, error) {
	switch v := b.(type) {
	case TextBody:
		return json.Marshal(bodyJSON{Type: BodyText, Text: v.Text})
	case AttachmentBody:
		return json.Marshal(bodyJSON{Type: BodyAttachment, URL: v.URL, Filename: v.Filename})
	case nil:
		return nil, fmt.Errorf("message body is nil")
	default:
		return nil, fmt.Errorf("unknown message body %T", b)
	}
}

// DecodeBody parses a tagged body
func DecodeBody(data []byte) (Body, error) {
	var raw bodyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}
	return raw.body()
}

func (r bodyJSON) body() (Body, error) {
	switch r.Type {
	case BodyText:
		return TextBody{Text: r.Text}, nil
	case BodyAttachment:
		return AttachmentBody{URL: r.URL, Filename: r.Filename}, nil
	default:
		return nil, fmt.Errorf("unknown message body type %q", r.Type)
	}
}

// Message is one entry of a conversation log.
// Maps to Cassandra messages table, clustered by seq
type Message struct {
	ID             uuid.UUID        `json:"message_id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	Kind           ConversationKind `json:"kind"`
	SenderID       uuid.UUID        `json:"sender_id"`
	SenderLabel    string           `json:"sender_label"`
	Body           Body             `json:"-"`
	Seq            int64            `json:"seq"`
	SentAt         time.Time        `json:"sent_at"`
	ViewOnce       bool             `json:"view_once"`
	ViewedBy       IDSet            `json:"viewed_by"`
}

type messageAlias Message

type messageJSON struct {
	*messageAlias
	Body json.RawMessage `json:"body"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	body, err := EncodeBody(m.Body)
	if err != nil {
		return nil, err
	}
	if m.ViewedBy == nil {
		m.ViewedBy = IDSet{}
	}
	return json.Marshal(messageJSON{messageAlias: (*messageAlias)(&m), Body: body})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	aux := messageJSON{messageAlias: (*messageAlias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	body, err := DecodeBody(aux.Body)
	if err != nil {
		return err
	}
	m.Body = body
	if m.ViewedBy == nil {
		m.ViewedBy = IDSet{}
	}
	return nil
}

// IsSystem reports whether the service authored the message
func (m *Message) IsSystem() bool { return m.SenderID == SystemSenderID }

// Clone copies the message including its viewed-by set
func (m *Message) Clone() *Message {
	c := *m
	c.ViewedBy = m.ViewedBy.Clone()
	return &c
}

// Ref addresses the conversation of the message
func (m *Message) Ref() ConversationRef {
	return ConversationRef{ID: m.ConversationID, Kind: m.Kind}
}

// NewMessage builds an unsequenced message; the store assigns Seq and SentAt.
func NewMessage(ref ConversationRef, sender Identity, body Body, viewOnce bool) *Message {
	return &Message{
		ID:             uuid.New(),
		ConversationID: ref.ID,
		Kind:           ref.Kind,
		SenderID:       sender.ID,
		SenderLabel:    sender.Label,
		Body:           body,
		ViewOnce:       viewOnce,
		ViewedBy:       IDSet{},
	}
}

// SendMessageRequest is the request body for a text message
type SendMessageRequest struct {
	Text     string `json:"text"`
	ViewOnce bool   `json:"view_once"`
}
