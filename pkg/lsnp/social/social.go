// Package social implements the follow/post/like/DM surface: the only
// layer of the protocol with locally meaningful semantics gated on
// relationship state rather than pure message validity.
//
// Grounded on original_source/lsnp/app.py's _on_POST/_on_DM/_on_FOLLOW/
// _on_UNFOLLOW/_on_LIKE handlers and cli.py's cmd_post/cmd_dm/
// cmd_follow/cmd_like outbound builders.
package social

import (
	"fmt"
	"sync"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/ack"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/idgen"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/logging"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// Endpoints resolves a user id to where to reach them.
type Endpoints interface {
	EndpointOf(user wire.UserID) wire.Endpoint
}

// DisplayNameOf resolves a user id to a human-readable name, falling
// back to the id itself when unknown.
type DisplayNameOf interface {
	DisplayName(user wire.UserID) string
}

// Surface holds this peer's local social graph (who it follows, who
// follows it, and which likes it has sent/received) and drives the
// wire-level send/receive logic for POST, DM, FOLLOW, UNFOLLOW, LIKE.
type Surface struct {
	Self      wire.UserID
	Transport transport.Transport
	Peers     Endpoints
	Names     DisplayNameOf
	Acks      *ack.Manager
	Tokens    *token.Registry
	Log       logging.Logger

	BroadcastAddr string
	DefaultTTL    int64

	mu          sync.Mutex
	following   map[wire.UserID]struct{}
	followers   map[wire.UserID]struct{}
	sentLikes   map[likeKey]struct{}
	likesByPost map[string]map[wire.UserID]struct{}
}

type likeKey struct {
	to     wire.UserID
	postTS string
}

// New returns a ready, empty Surface.
func New(self wire.UserID, tr transport.Transport, peers Endpoints, names DisplayNameOf, acks *ack.Manager, tokens *token.Registry, log logging.Logger, broadcastAddr string, defaultTTL int64) *Surface {
	if log == nil {
		log = logging.Discard{}
	}
	return &Surface{
		Self:          self,
		Transport:     tr,
		Peers:         peers,
		Names:         names,
		Acks:          acks,
		Tokens:        tokens,
		Log:           log,
		BroadcastAddr: broadcastAddr,
		DefaultTTL:    defaultTTL,
		following:     make(map[wire.UserID]struct{}),
		followers:     make(map[wire.UserID]struct{}),
		sentLikes:     make(map[likeKey]struct{}),
		likesByPost:   make(map[string]map[wire.UserID]struct{}),
	}
}

// ---------- POST ----------

// Post broadcasts (when no one follows us) or unicasts to each known
// follower, a content string with a fresh TOKEN/TIMESTAMP. POST is
// unreliable — no ACK tracking.
func (s *Surface) Post(content string, now int64) {
	fields := wire.Message{
		"TYPE":      "POST",
		"USER_ID":   string(s.Self),
		"CONTENT":   content,
		"TIMESTAMP": fmt.Sprintf("%d", now),
		"TTL":       fmt.Sprintf("%d", s.DefaultTTL),
		"TOKEN":     token.Make(s.Self, now+s.DefaultTTL, token.ScopeBroadcast),
	}
	payload := wire.BuildMap(fields)

	s.mu.Lock()
	followers := make([]wire.UserID, 0, len(s.followers))
	for f := range s.followers {
		followers = append(followers, f)
	}
	s.mu.Unlock()

	if len(followers) == 0 {
		_ = s.Transport.Broadcast(s.BroadcastAddr, payload)
		_ = s.Transport.Multicast(payload)
		return
	}
	for _, f := range followers {
		ep := s.Peers.EndpointOf(f)
		if ep.Port == 0 {
			continue
		}
		_ = s.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropNone)
	}
}

// PostOutcome reports how an inbound POST was handled.
type PostOutcome struct {
	Visible bool
	Author  wire.UserID
	Content string
}

// OnPost validates an inbound POST's token and TTL, then gates
// visibility: a post is shown only if it is ours or authored by
// someone we follow.
func (s *Surface) OnPost(msg wire.Message, now int64) PostOutcome {
	author := wire.UserID(msg["USER_ID"])
	if !s.Tokens.Validate(msg["TOKEN"], token.ScopeBroadcast, author, now) {
		s.Log.Warnf("rejected POST from %s: invalid token", author)
		return PostOutcome{}
	}
	ts := atoiOr64(msg["TIMESTAMP"], 0)
	ttl := atoiOr64(msg["TTL"], 0)
	if ttl == 0 {
		ttl = s.DefaultTTL
	}
	if now > ts+ttl {
		s.Log.Warnf("rejected POST from %s: ttl expired", author)
		return PostOutcome{}
	}
	if author != s.Self && !s.IsFollowing(author) {
		return PostOutcome{}
	}
	return PostOutcome{Visible: true, Author: author, Content: msg["CONTENT"]}
}

// ---------- DM ----------

type resender struct {
	transport transport.Transport
	ip        string
	port      int
	payload   string
	log       logging.Logger
}

func (r *resender) Resend() { _ = r.transport.Unicast(r.ip, r.port, r.payload, transport.DropNone) }
func (r *resender) Fail()   { r.log.Warnf("dm: giving up on a message to %s:%d", r.ip, r.port) }

// DM sends a reliable, ACK-tracked direct message to `to`.
func (s *Surface) DM(to wire.UserID, content string, now int64) bool {
	ep := s.Peers.EndpointOf(to)
	if ep.Port == 0 {
		return false
	}
	messageID := idgen.NewMessageID()
	fields := wire.Message{
		"TYPE":       "DM",
		"FROM":       string(s.Self),
		"TO":         string(to),
		"CONTENT":    content,
		"TIMESTAMP":  fmt.Sprintf("%d", now),
		"MESSAGE_ID": messageID,
		"TOKEN":      token.Make(s.Self, now+s.DefaultTTL, token.ScopeChat),
	}
	payload := wire.BuildMap(fields)
	_ = s.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropNone)
	s.Acks.Track(messageID, &resender{transport: s.Transport, ip: ep.IP, port: ep.Port, payload: payload, log: s.Log})
	return true
}

// DMOutcome reports an inbound DM ready for display.
type DMOutcome struct {
	Delivered bool
	From      wire.UserID
	Content   string
}

// OnDM validates an inbound DM's chat-scoped token.
func (s *Surface) OnDM(msg wire.Message, now int64) DMOutcome {
	sender := wire.UserID(msg["FROM"])
	if !s.Tokens.Validate(msg["TOKEN"], token.ScopeChat, sender, now) {
		s.Log.Warnf("rejected DM from %s: invalid token", sender)
		return DMOutcome{}
	}
	return DMOutcome{Delivered: true, From: sender, Content: msg["CONTENT"]}
}

// ---------- FOLLOW / UNFOLLOW ----------

// Follow sends an unreliable FOLLOW to `to` and optimistically records
// the relationship locally. Returns false if already following.
func (s *Surface) Follow(to wire.UserID, now int64) bool {
	return s.sendFollowToggle(to, "FOLLOW", now)
}

// Unfollow sends an unreliable UNFOLLOW to `to`. Returns false if not
// currently following.
func (s *Surface) Unfollow(to wire.UserID, now int64) bool {
	return s.sendFollowToggle(to, "UNFOLLOW", now)
}

func (s *Surface) sendFollowToggle(to wire.UserID, kind string, now int64) bool {
	s.mu.Lock()
	_, already := s.following[to]
	if kind == "FOLLOW" && already {
		s.mu.Unlock()
		return false
	}
	if kind == "UNFOLLOW" && !already {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	ep := s.Peers.EndpointOf(to)
	if ep.Port == 0 {
		return false
	}
	fields := wire.Message{
		"TYPE":       kind,
		"MESSAGE_ID": idgen.NewMessageID(),
		"FROM":       string(s.Self),
		"TO":         string(to),
		"TIMESTAMP":  fmt.Sprintf("%d", now),
		"TOKEN":      token.Make(s.Self, now+s.DefaultTTL, token.ScopeFollow),
	}
	_ = s.Transport.Unicast(ep.IP, ep.Port, wire.BuildMap(fields), transport.DropNone)

	s.mu.Lock()
	if kind == "FOLLOW" {
		s.following[to] = struct{}{}
	} else {
		delete(s.following, to)
	}
	s.mu.Unlock()
	return true
}

// OnFollow ingests an inbound FOLLOW, idempotently adding the sender to
// our followers. Returns the sender when this was a new follower, or
// "" on a duplicate or invalid-token FOLLOW.
func (s *Surface) OnFollow(msg wire.Message, now int64) wire.UserID {
	sender := wire.UserID(msg["FROM"])
	if !s.Tokens.Validate(msg["TOKEN"], token.ScopeFollow, sender, now) {
		s.Log.Warnf("rejected FOLLOW from %s: invalid token", sender)
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.followers[sender]; ok {
		return ""
	}
	s.followers[sender] = struct{}{}
	return sender
}

// OnUnfollow ingests an inbound UNFOLLOW, idempotently removing the
// sender from our followers.
func (s *Surface) OnUnfollow(msg wire.Message, now int64) wire.UserID {
	sender := wire.UserID(msg["FROM"])
	if !s.Tokens.Validate(msg["TOKEN"], token.ScopeFollow, sender, now) {
		s.Log.Warnf("rejected UNFOLLOW from %s: invalid token", sender)
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.followers[sender]; !ok {
		return ""
	}
	delete(s.followers, sender)
	return sender
}

// IsFollowing reports whether we follow user.
func (s *Surface) IsFollowing(user wire.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.following[user]
	return ok
}

// ---------- LIKE / UNLIKE ----------

// Like sends (or Unlike, when unlike is true) a like toggle for a
// post authored by `to` at postTimestamp. Returns false if the local
// sent-likes state already reflects the requested action (duplicate).
func (s *Surface) Like(to wire.UserID, postTimestamp string, unlike bool, now int64) bool {
	action := "LIKE"
	if unlike {
		action = "UNLIKE"
	}
	key := likeKey{to: to, postTS: postTimestamp}

	s.mu.Lock()
	_, already := s.sentLikes[key]
	if action == "LIKE" && already {
		s.mu.Unlock()
		return false
	}
	if action == "UNLIKE" && !already {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	ep := s.Peers.EndpointOf(to)
	if ep.Port == 0 {
		return false
	}
	fields := wire.Message{
		"TYPE":           "LIKE",
		"FROM":           string(s.Self),
		"TO":             string(to),
		"POST_TIMESTAMP": postTimestamp,
		"ACTION":         action,
		"TIMESTAMP":      fmt.Sprintf("%d", now),
		"TOKEN":          token.Make(s.Self, now+s.DefaultTTL, token.ScopeBroadcast),
	}
	_ = s.Transport.Unicast(ep.IP, ep.Port, wire.BuildMap(fields), transport.DropNone)

	s.mu.Lock()
	if action == "LIKE" {
		s.sentLikes[key] = struct{}{}
	} else {
		delete(s.sentLikes, key)
	}
	s.mu.Unlock()
	return true
}

// LikeOutcome reports an inbound LIKE/UNLIKE ready for display.
type LikeOutcome struct {
	Changed bool
	Sender  wire.UserID
	PostTS  string
	Unlike  bool
}

// OnLike ingests an inbound LIKE/UNLIKE addressed to us, de-duplicating
// against the set of likers already recorded for that post.
func (s *Surface) OnLike(msg wire.Message, now int64) LikeOutcome {
	sender := wire.UserID(msg["FROM"])
	to := msg["TO"]
	if !s.Tokens.Validate(msg["TOKEN"], token.ScopeBroadcast, sender, now) {
		s.Log.Warnf("rejected LIKE from %s: invalid token", sender)
		return LikeOutcome{}
	}
	if to != string(s.Self) {
		return LikeOutcome{}
	}
	postTS := msg["POST_TIMESTAMP"]
	unlike := msg["ACTION"] == "UNLIKE"

	s.mu.Lock()
	defer s.mu.Unlock()
	likers, ok := s.likesByPost[postTS]
	if !ok {
		likers = make(map[wire.UserID]struct{})
		s.likesByPost[postTS] = likers
	}
	_, already := likers[sender]
	if !unlike {
		if already {
			return LikeOutcome{}
		}
		likers[sender] = struct{}{}
		return LikeOutcome{Changed: true, Sender: sender, PostTS: postTS}
	}
	if !already {
		return LikeOutcome{}
	}
	delete(likers, sender)
	return LikeOutcome{Changed: true, Sender: sender, PostTS: postTS, Unlike: true}
}

func atoiOr64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
