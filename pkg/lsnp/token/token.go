// Package token implements LSNP's scoped bearer tokens: "user|expiry|scope"
// strings with a process-wide SHA-256 revocation set.
//
// Grounded on original_source/lsnp/tokens.py. The revocation set is kept
// behind a mutex here (the python version relied on the GIL); this
// mirrors the teacher's one-mutex-per-shared-structure discipline
// (core.Peer.mutex, UnityCluster.mutex).
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// Scope names recognized by the protocol.
const (
	ScopeChat      = "chat"
	ScopeBroadcast = "broadcast"
	ScopeFollow    = "follow"
	ScopeGroup     = "group"
	ScopeFile      = "file"
	ScopeGame      = "game"
)

// Make builds a token string "user|expiry|scope".
func Make(user wire.UserID, expiry int64, scope string) string {
	return string(user) + "|" + strconv.FormatInt(expiry, 10) + "|" + scope
}

// Parsed is the decoded form of a token string.
type Parsed struct {
	User   wire.UserID
	Expiry int64
	Scope  string
}

// Parse tolerates "|"-separated or whitespace-separated fields, and any
// mix of the two, the way the original parse_token's fallback chain did
// — callers on the wire aren't always careful about separators.
func Parse(raw string) (Parsed, bool) {
	raw = strings.TrimSpace(raw)
	for _, sep := range []string{"|", " "} {
		if strings.Count(raw, sep) >= 2 {
			parts := splitNonEmpty(raw, sep)
			if len(parts) >= 3 {
				if p, ok := toParsed(parts); ok {
					return p, true
				}
			}
		}
	}
	mixed := strings.Fields(strings.ReplaceAll(raw, "|", " "))
	if len(mixed) >= 3 {
		if p, ok := toParsed(mixed); ok {
			return p, true
		}
	}
	return Parsed{}, false
}

func splitNonEmpty(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toParsed(parts []string) (Parsed, bool) {
	exp, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{
		User:   wire.UserID(strings.TrimSpace(parts[0])),
		Expiry: exp,
		Scope:  strings.TrimSpace(parts[2]),
	}, true
}

// Registry holds the process-wide set of revoked tokens (by SHA-256 of
// the exact token bytes) and validates tokens against it. A peer owns
// exactly one Registry; there is no global/package-level singleton (per
// the spec's "no truly global singletons" design note).
type Registry struct {
	mu      sync.Mutex
	revoked map[string]struct{}
}

// NewRegistry returns an empty revocation registry.
func NewRegistry() *Registry {
	return &Registry{revoked: make(map[string]struct{})}
}

func hashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// Revoke marks tok as revoked. Idempotent: revoking twice is a no-op.
func (r *Registry) Revoke(tok string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[hashToken(tok)] = struct{}{}
}

// IsRevoked reports whether tok has been revoked.
func (r *Registry) IsRevoked(tok string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[hashToken(tok)]
	return ok
}

// Validate returns true iff tok parses, its user matches claimedSender,
// it has not expired, its scope matches expectedScope, and it has not
// been revoked. Validation is a pure function of its inputs plus the
// registry's revoked set (invariant 5 of the spec's testable
// properties) — now (unix seconds) is passed in rather than read from the
// wall clock internally, so callers (and tests) control it explicitly.
func (r *Registry) Validate(tok string, expectedScope string, claimedSender wire.UserID, now int64) bool {
	p, ok := Parse(tok)
	if !ok {
		return false
	}
	if p.User != claimedSender {
		return false
	}
	if now > p.Expiry {
		return false
	}
	if p.Scope != expectedScope {
		return false
	}
	if r.IsRevoked(tok) {
		return false
	}
	return true
}
