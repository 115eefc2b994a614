// Package visibility derives what each viewer may see of a message and records
// view-once consumption.
package visibility

import (
	"time"

	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/pkg/constants"
)

// ViewState is the per-viewer visibility of a message
type ViewState string

const (
	Visible ViewState = "visible"
	Hidden  ViewState = "hidden"
)

// Options are per-session render settings
type Options struct {
	Marker string
}

// DefaultOptions renders hidden text as the standard redaction marker
func DefaultOptions() Options {
	return Options{Marker: constants.RedactionMarker}
}

// Rendered is a message as one viewer sees it
type Rendered struct {
	MessageID   uuid.UUID              `json:"message_id"`
	Seq         int64                  `json:"seq"`
	SenderID    uuid.UUID              `json:"sender_id"`
	SenderLabel string                 `json:"sender_label"`
	Type        domain.BodyType        `json:"type"`
	State       ViewState              `json:"state"`
	Text        string                 `json:"text,omitempty"`
	Attachment  *domain.AttachmentBody `json:"attachment,omitempty"`
	ViewOnce    bool                   `json:"view_once"`
	System      bool                   `json:"system"`
	SentAt      time.Time              `json:"sent_at"`
}

// StateOf is Hidden iff the message is view-once, the viewer is not the sender
// and the viewer has already consumed it.
func StateOf(msg *domain.Message, viewer uuid.UUID) ViewState {
	if msg.ViewOnce && msg.SenderID != viewer && msg.ViewedBy.Has(viewer) {
		return Hidden
	}
	return Visible
}

// ShouldMark reports whether rendering msg to viewer consumes it.
func ShouldMark(msg *domain.Message, viewer uuid.UUID) bool {
	return msg.ViewOnce && msg.SenderID != viewer && !msg.ViewedBy.Has(viewer)
}

// RenderText renders msg for viewer with the default options
func RenderText(msg *domain.Message, viewer uuid.UUID) Rendered {
	return Render(msg, viewer, DefaultOptions())
}

// Render is pure: it must run on every read because ViewedBy grows between renders.
func Render(msg *domain.Message, viewer uuid.UUID, opts Options) Rendered {
	r := Rendered{
		MessageID:   msg.ID,
		Seq:         msg.Seq,
		SenderID:    msg.SenderID,
		SenderLabel: msg.SenderLabel,
		State:       StateOf(msg, viewer),
		ViewOnce:    msg.ViewOnce,
		System:      msg.IsSystem(),
		SentAt:      msg.SentAt,
	}
	if msg.Body != nil {
		r.Type = msg.Body.Type()
	}

	if r.State == Hidden {
		r.Text = opts.Marker
		return r
	}

	switch body := msg.Body.(type) {
	case domain.TextBody:
		r.Text = body.Text
	case domain.AttachmentBody:
		a := body
		r.Attachment = &a
		r.Text = body.Filename
	}
	return r
}

// RenderAll renders a snapshot for viewer, preserving order
func RenderAll(msgs []*domain.Message, viewer uuid.UUID, opts Options) []Rendered {
	out := make([]Rendered, len(msgs))
	for i, m := range msgs {
		out[i] = Render(m, viewer, opts)
	}
	return out
}
