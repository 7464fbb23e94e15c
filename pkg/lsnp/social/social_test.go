package social

import (
	"context"
	"sync"
	"testing"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/ack"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

type fakeTransport struct {
	mu        sync.Mutex
	unicasts  []string
	broadcast int
	multicast int
}

func (f *fakeTransport) ListenPort() int { return 51500 }
func (f *fakeTransport) Unicast(ip string, port int, payload string, class transport.DropClass) error {
	f.mu.Lock()
	f.unicasts = append(f.unicasts, payload)
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Broadcast(string, string) error {
	f.mu.Lock()
	f.broadcast++
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Multicast(string) error {
	f.mu.Lock()
	f.multicast++
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Loop(context.Context, transport.Handler) {}
func (f *fakeTransport) Close() error                            { return nil }

type fakeEndpoints struct{}

func (fakeEndpoints) EndpointOf(user wire.UserID) wire.Endpoint {
	return wire.Endpoint{IP: "127.0.0.1", Port: 7000}
}

type fakeNames struct{}

func (fakeNames) DisplayName(user wire.UserID) string { return string(user) }

func TestPostBroadcastsWhenNoFollowers(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	tr := &fakeTransport{}
	s := New(self, tr, fakeEndpoints{}, fakeNames{}, ack.New(nil, nil), token.NewRegistry(), nil, "255.255.255.255", 3600)

	s.Post("hello world", 1000)

	if tr.broadcast != 1 || tr.multicast != 1 {
		t.Fatalf("expected one broadcast and one multicast send, got b=%d m=%d", tr.broadcast, tr.multicast)
	}
	if len(tr.unicasts) != 0 {
		t.Fatal("expected no unicasts when there are no followers")
	}
}

func TestPostUnicastsToFollowersWhenPresent(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	tr := &fakeTransport{}
	s := New(self, tr, fakeEndpoints{}, fakeNames{}, ack.New(nil, nil), token.NewRegistry(), nil, "255.255.255.255", 3600)

	sender := wire.MakeUserID("bob", "127.0.0.1")
	s.OnFollow(wire.Message{"FROM": string(sender), "TOKEN": token.Make(sender, 5000, token.ScopeFollow)}, 1000)

	s.Post("hello world", 1000)

	if tr.broadcast != 0 || tr.multicast != 0 {
		t.Fatal("expected post to prefer unicast-to-followers over broadcast")
	}
	if len(tr.unicasts) != 1 {
		t.Fatalf("expected exactly one unicast, got %d", len(tr.unicasts))
	}
}

func TestOnPostGatesVisibilityByFollowing(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	author := wire.MakeUserID("bob", "127.0.0.1")
	s := New(self, &fakeTransport{}, fakeEndpoints{}, fakeNames{}, ack.New(nil, nil), token.NewRegistry(), nil, "255.255.255.255", 3600)

	now := int64(1000)
	tok := token.Make(author, now+3600, token.ScopeBroadcast)
	msg := wire.Message{
		"USER_ID":   string(author),
		"CONTENT":   "hi",
		"TIMESTAMP": "1000",
		"TTL":       "3600",
		"TOKEN":     tok,
	}

	out := s.OnPost(msg, now)
	if out.Visible {
		t.Fatal("expected post from a non-followed author to be hidden")
	}

	s.Follow(author, now)
	out = s.OnPost(msg, now)
	if !out.Visible || out.Content != "hi" {
		t.Fatal("expected post from a followed author to become visible")
	}
}

func TestOnPostRejectsExpiredTTL(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	author := wire.MakeUserID("bob", "127.0.0.1")
	s := New(self, &fakeTransport{}, fakeEndpoints{}, fakeNames{}, ack.New(nil, nil), token.NewRegistry(), nil, "255.255.255.255", 3600)

	tok := token.Make(author, 100000, token.ScopeBroadcast)
	msg := wire.Message{
		"USER_ID":   string(author),
		"CONTENT":   "stale",
		"TIMESTAMP": "1000",
		"TTL":       "10",
		"TOKEN":     tok,
	}
	out := s.OnPost(msg, 5000)
	if out.Visible {
		t.Fatal("expected expired-TTL post to be rejected")
	}
}

func TestFollowUnfollowIsIdempotent(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	to := wire.MakeUserID("bob", "127.0.0.1")
	s := New(self, &fakeTransport{}, fakeEndpoints{}, fakeNames{}, ack.New(nil, nil), token.NewRegistry(), nil, "255.255.255.255", 3600)

	if !s.Follow(to, 1000) {
		t.Fatal("expected first follow to succeed")
	}
	if s.Follow(to, 1000) {
		t.Fatal("expected duplicate follow to be rejected")
	}
	if !s.Unfollow(to, 1000) {
		t.Fatal("expected unfollow to succeed")
	}
	if s.Unfollow(to, 1000) {
		t.Fatal("expected duplicate unfollow to be rejected")
	}
}

func TestOnFollowIsIdempotent(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	sender := wire.MakeUserID("bob", "127.0.0.1")
	s := New(self, &fakeTransport{}, fakeEndpoints{}, fakeNames{}, ack.New(nil, nil), token.NewRegistry(), nil, "255.255.255.255", 3600)

	tok := token.Make(sender, 5000, token.ScopeFollow)
	got := s.OnFollow(wire.Message{"FROM": string(sender), "TOKEN": tok}, 1000)
	if got != sender {
		t.Fatal("expected new follower to be recorded")
	}
	got = s.OnFollow(wire.Message{"FROM": string(sender), "TOKEN": tok}, 1000)
	if got != "" {
		t.Fatal("expected duplicate FOLLOW to be a no-op")
	}
}

func TestLikeIsIdempotentAndDMAcksTracked(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	to := wire.MakeUserID("bob", "127.0.0.1")
	acks := ack.New(nil, nil)
	s := New(self, &fakeTransport{}, fakeEndpoints{}, fakeNames{}, acks, token.NewRegistry(), nil, "255.255.255.255", 3600)

	if !s.Like(to, "123", false, 1000) {
		t.Fatal("expected first like to succeed")
	}
	if s.Like(to, "123", false, 1000) {
		t.Fatal("expected duplicate like to be rejected")
	}

	if ok := s.DM(to, "hi", 1000); !ok {
		t.Fatal("expected DM send to succeed")
	}
	if acks.Outstanding() != 1 {
		t.Fatalf("expected the DM to be tracked by the ACK manager, got %d outstanding", acks.Outstanding())
	}
}

func TestOnLikeDedupsPerPost(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	liker := wire.MakeUserID("bob", "127.0.0.1")
	s := New(self, &fakeTransport{}, fakeEndpoints{}, fakeNames{}, ack.New(nil, nil), token.NewRegistry(), nil, "255.255.255.255", 3600)

	tok := token.Make(liker, 5000, token.ScopeBroadcast)
	msg := wire.Message{
		"FROM":           string(liker),
		"TO":             string(self),
		"POST_TIMESTAMP": "42",
		"ACTION":         "LIKE",
		"TOKEN":          tok,
	}
	out := s.OnLike(msg, 1000)
	if !out.Changed {
		t.Fatal("expected first like on a post to register")
	}
	out = s.OnLike(msg, 1000)
	if out.Changed {
		t.Fatal("expected duplicate like on the same post to be ignored")
	}
}
