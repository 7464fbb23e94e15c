// Package peers implements the Peer Directory: a process-lifetime map
// from user identifier to endpoint and profile data, mutated only by
// PROFILE ingestion.
//
// Grounded on original_source/lsnp/peers.py, guarded by its own mutex
// per the spec's "single mutex per shared structure" design note (see
// also core.Peer.mutex in the teacher).
package peers

import (
	"sort"
	"sync"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// Record is one peer's directory entry.
type Record struct {
	UserID      wire.UserID
	Address     string
	Port        int
	DisplayName string
	Status      string
	AvatarType  string
	AvatarData  string
}

// Directory maps user identifiers to Records. Never evicts — entries
// live for the process lifetime, per the spec's data model.
type Directory struct {
	mu    sync.Mutex
	peers map[wire.UserID]Record
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{peers: make(map[wire.UserID]Record)}
}

// ProfileFields is the subset of a parsed PROFILE message Upsert needs.
type ProfileFields struct {
	UserID      wire.UserID
	DisplayName string
	Status      string
	Port        int // 0 if PROFILE carried no PORT field
	AvatarType  string
	AvatarData  string
}

// Upsert records or refreshes a peer from a received PROFILE. Port
// preference: the PROFILE's advertised PORT if present and nonzero;
// otherwise the previously known port; otherwise the observed UDP
// source port.
func (d *Directory) Upsert(p ProfileFields, srcIP string, srcPort int) {
	if p.UserID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.peers[p.UserID]
	port := p.Port
	if port == 0 {
		if prev.Port != 0 {
			port = prev.Port
		} else {
			port = srcPort
		}
	}
	d.peers[p.UserID] = Record{
		UserID:      p.UserID,
		Address:     srcIP,
		Port:        port,
		DisplayName: displayNameOr(p.DisplayName, p.UserID),
		Status:      p.Status,
		AvatarType:  p.AvatarType,
		AvatarData:  p.AvatarData,
	}
}

func displayNameOr(name string, fallback wire.UserID) string {
	if name != "" {
		return name
	}
	return string(fallback)
}

// Get returns the Record for user, and whether it was found.
func (d *Directory) Get(user wire.UserID) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.peers[user]
	return r, ok
}

// DisplayName resolves user to its known display name, falling back to
// the raw user id when the peer has not been seen yet.
func (d *Directory) DisplayName(user wire.UserID) string {
	d.mu.Lock()
	r, ok := d.peers[user]
	d.mu.Unlock()
	if !ok || r.DisplayName == "" {
		return string(user)
	}
	return r.DisplayName
}

// EndpointOf returns where to reach user: the directory's known
// (address, port) if present, otherwise a pre-discovery fallback of
// (ip extracted from the user id, 0) — a port of 0 signals "unknown,
// don't send yet" to callers.
func (d *Directory) EndpointOf(user wire.UserID) wire.Endpoint {
	d.mu.Lock()
	r, ok := d.peers[user]
	d.mu.Unlock()
	if ok && r.Port != 0 {
		return wire.Endpoint{IP: r.Address, Port: r.Port}
	}
	return wire.Endpoint{IP: user.IP(), Port: 0}
}

// List returns a snapshot of all known peers, sorted by display name
// (case-insensitive) the way the original cli.py's `peers` command
// rendered its table.
func (d *Directory) List() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, 0, len(d.peers))
	for _, r := range d.peers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return lowerDisplay(out[i]) < lowerDisplay(out[j])
	})
	return out
}

func lowerDisplay(r Record) string {
	b := []byte(r.DisplayName)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Count returns the number of known peers, for the metrics gauge.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}
