// Package member maintains the set of protocol participants and their public keys.
package member

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/crypto"
)

// ErrUnknownMember is returned when a process is not a part of the Set.
var ErrUnknownMember = errors.New("unknown member")

// Member is a participant identity bound to its public key.
type Member struct {
	ID     confirm.ProcessID
	PubKey crypto.PubKey
}

// New instantiates a new Member.
func New(id confirm.ProcessID, pk crypto.PubKey) *Member {
	return &Member{
		ID:     id,
		PubKey: pk,
	}
}

// Validate performs basic validation.
func (m *Member) Validate() error {
	if m == nil {
		return errors.New("nil member")
	}
	if m.PubKey == nil || len(m.PubKey.Bytes()) == 0 {
		return fmt.Errorf("member %s does not have a public key", m.ID)
	}
	return nil
}

// Set contains all known participants sorted by ID in ascending order.
type Set struct {
	members []*Member
	byID    map[confirm.ProcessID]*Member
}

// NewSet instantiates a new Set out of the given members.
func NewSet(members []*Member) *Set {
	set := &Set{
		members: append([]*Member(nil), members...),
		byID:    make(map[confirm.ProcessID]*Member, len(members)),
	}
	sort.Sort(set)
	for _, m := range set.members {
		if m != nil {
			set.byID[m.ID] = m
		}
	}
	return set
}

// Validate checks members are valid and neither IDs nor public keys repeat.
func (s *Set) Validate() error {
	if s == nil || len(s.members) == 0 {
		return errors.New("members are nil or empty")
	}

	for idx, m := range s.members {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("invalid member #%d: %w", idx, err)
		}
		if idx == 0 {
			continue
		}
		if s.members[idx-1].ID == m.ID {
			return fmt.Errorf("duplicate member id %s", m.ID)
		}
	}

	for i := range s.members {
		for j := i + 1; j < len(s.members); j++ {
			if bytes.Equal(s.members[i].PubKey.Bytes(), s.members[j].PubKey.Bytes()) {
				return fmt.Errorf("members %s and %s share a public key", s.members[i].ID, s.members[j].ID)
			}
		}
	}
	return nil
}

// Get returns the Member with the given ID.
func (s *Set) Get(id confirm.ProcessID) (*Member, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}
	return m, nil
}

// GetByPubKey returns the Member owning the public key or nil.
func (s *Set) GetByPubKey(pubK []byte) *Member {
	for _, m := range s.members {
		if m.PubKey.Equals(pubK) {
			return m
		}
	}
	return nil
}

// IDs returns IDs of all the members in ascending order.
func (s *Set) IDs() []confirm.ProcessID {
	ids := make([]confirm.ProcessID, len(s.members))
	for i, m := range s.members {
		ids[i] = m.ID
	}
	return ids
}

func (s *Set) Len() int { return len(s.members) }

func (s *Set) Less(i, j int) bool {
	return s.members[i].ID < s.members[j].ID
}

func (s *Set) Swap(i, j int) {
	s.members[i], s.members[j] = s.members[j], s.members[i]
}
