package domain

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// IDSet is a set of identity ids. It encodes as a sorted JSON array.
type IDSet map[uuid.UUID]struct{}

// NewIDSet builds a set from ids
func NewIDSet(ids ...uuid.UUID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set
func (s IDSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether the set grew.
func (s IDSet) Add(id uuid.UUID) bool {
	if s.Has(id) {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether the set shrank.
func (s IDSet) Remove(id uuid.UUID) bool {
	if !s.Has(id) {
		return false
	}
	delete(s, id)
	return true
}

// Clone returns an independent copy
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// SubsetOf reports whether every id of s is also in other.
func (s IDSet) SubsetOf(other IDSet) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the ids in byte order, for stable output
func (s IDSet) Sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Strings returns the sorted ids as strings (redis, cassandra text sets).
func (s IDSet) Strings() []string {
	ids := s.Sorted()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// ParseIDSet parses string ids, skipping malformed entries.
func ParseIDSet(raw []string) IDSet {
	s := make(IDSet, len(raw))
	for _, r := range raw {
		if id, err := uuid.Parse(r); err == nil {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}
