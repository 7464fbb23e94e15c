// Package group implements local group membership state: creation,
// add/remove updates, and name lookup. Group membership is advisory —
// there is no group owner or consensus, any member's GROUP_UPDATE is
// accepted at face value, exactly as the wire protocol specifies.
//
// Grounded on original_source/lsnp/groups.py's GroupState class.
package group

import "sync"

// Record is one group's local view: its display name and member set.
type Record struct {
	Name    string
	Members map[string]struct{}
}

// State holds every group this peer knows about, keyed by GROUP_ID.
type State struct {
	mu     sync.Mutex
	groups map[string]*Record
}

// New returns an empty State.
func New() *State {
	return &State{groups: make(map[string]*Record)}
}

// Create replaces (or creates) a group's record with the given name and
// member set.
func (s *State) Create(groupID, name string, members []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m != "" {
			set[m] = struct{}{}
		}
	}
	s.groups[groupID] = &Record{Name: name, Members: set}
}

// Update adds and removes members of an existing (or implicitly
// created, named after its id) group.
func (s *State) Update(groupID string, add, remove []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		g = &Record{Name: groupID, Members: make(map[string]struct{})}
		s.groups[groupID] = g
	}
	for _, m := range add {
		if m != "" {
			g.Members[m] = struct{}{}
		}
	}
	for _, m := range remove {
		delete(g.Members, m)
	}
}

// Members returns a snapshot of a group's member set, or nil if the
// group is unknown.
func (s *State) Members(groupID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.Members))
	for m := range g.Members {
		out = append(out, m)
	}
	return out
}

// NameOf returns a group's display name, falling back to the group id
// itself if the group is unknown.
func (s *State) NameOf(groupID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return groupID
	}
	return g.Name
}

// IsMember reports whether user belongs to groupID.
func (s *State) IsMember(groupID, user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false
	}
	_, member := g.Members[user]
	return member
}
