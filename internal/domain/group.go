package domain

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who may join a group without an invitation
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Group is a named N-party conversation.
// Maps to CockroachDB groups table (members/admins as STRING[] columns)
type Group struct {
	ID         uuid.UUID  `json:"group_id" db:"group_id"`
	Name       string     `json:"name" db:"name"`
	Members    IDSet      `json:"members" db:"members"`
	Admins     IDSet      `json:"admins" db:"admins"`
	Visibility Visibility `json:"visibility" db:"visibility"`
	CreatedBy  uuid.UUID  `json:"created_by" db:"created_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	Version    int64      `json:"version" db:"version"`
}

// NewGroup seeds creator as the sole member and sole admin.
func NewGroup(name string, visibility Visibility, creator uuid.UUID, now time.Time) *Group {
	return &Group{
		ID:         uuid.New(),
		Name:       name,
		Members:    NewIDSet(creator),
		Admins:     NewIDSet(creator),
		Visibility: visibility,
		CreatedBy:  creator,
		CreatedAt:  now,
		Version:    1,
	}
}

// IsMember reports whether id belongs to the group
func (g *Group) IsMember(id uuid.UUID) bool { return g.Members.Has(id) }

// IsAdmin reports whether id holds the admin role
func (g *Group) IsAdmin(id uuid.UUID) bool { return g.Admins.Has(id) }

// IsPublic reports whether anyone may join
func (g *Group) IsPublic() bool { return g.Visibility == VisibilityPublic }

// Consistent reports whether admins ⊆ members holds.
func (g *Group) Consistent() bool { return g.Admins.SubsetOf(g.Members) }

// Clone returns a deep copy so callers never share the member sets.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = g.Members.Clone()
	c.Admins = g.Admins.Clone()
	return &c
}

// Link is the share path of the group
func (g *Group) Link() string { return "/group/" + g.ID.String() }

// GroupCreate is the request body for creating a group
type GroupCreate struct {
	Name       string     `json:"name" binding:"required"`
	Visibility Visibility `json:"visibility"`
}

// MemberChange is the request body for member and role mutations
type MemberChange struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// GroupResponse is a group plus its share link
type GroupResponse struct {
	*Group
	Link string `json:"link"`
}

// ToResponse wraps the group for API output
func (g *Group) ToResponse() *GroupResponse {
	return &GroupResponse{Group: g, Link: g.Link()}
}
