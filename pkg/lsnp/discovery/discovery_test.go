package discovery

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

type fakeTransport struct {
	mu         sync.Mutex
	broadcasts []string
	multicasts []string
}

func (f *fakeTransport) ListenPort() int { return 51200 }
func (f *fakeTransport) Unicast(string, int, string, transport.DropClass) error {
	return nil
}
func (f *fakeTransport) Broadcast(_ string, payload string) error {
	f.mu.Lock()
	f.broadcasts = append(f.broadcasts, payload)
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Multicast(payload string) error {
	f.mu.Lock()
	f.multicasts = append(f.multicasts, payload)
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Loop(context.Context, transport.Handler) {}
func (f *fakeTransport) Close() error                            { return nil }

func TestAnnounceSendsPingAndProfileOverBroadcastAndMulticast(t *testing.T) {
	tr := &fakeTransport{}
	a := &Announcer{
		UserID:           wire.MakeUserID("alice", "127.0.0.1"),
		Profile:          func() (string, string) { return "Alice", "online" },
		Transport:        tr,
		BroadcastAddr:    "255.255.255.255",
		IncludeMulticast: true,
	}

	a.Announce()

	if len(tr.broadcasts) != 2 {
		t.Fatalf("expected PING+PROFILE broadcast, got %d messages", len(tr.broadcasts))
	}
	if !strings.Contains(tr.broadcasts[0], "TYPE: PING") {
		t.Fatalf("expected first broadcast to be PING, got %q", tr.broadcasts[0])
	}
	if !strings.Contains(tr.broadcasts[1], "TYPE: PROFILE") {
		t.Fatalf("expected second broadcast to be PROFILE, got %q", tr.broadcasts[1])
	}
	if len(tr.multicasts) != 2 {
		t.Fatalf("expected PING+PROFILE multicast when enabled, got %d", len(tr.multicasts))
	}
}

func TestAnnounceSkipsMulticastWhenDisabled(t *testing.T) {
	tr := &fakeTransport{}
	a := &Announcer{
		UserID:        wire.MakeUserID("alice", "127.0.0.1"),
		Profile:       func() (string, string) { return "Alice", "online" },
		Transport:     tr,
		BroadcastAddr: "255.255.255.255",
	}
	a.Announce()
	if len(tr.multicasts) != 0 {
		t.Fatal("expected no multicast sends when IncludeMulticast is false")
	}
}

func TestReplyToPingSendsProfileOnly(t *testing.T) {
	tr := &fakeTransport{}
	a := &Announcer{
		UserID:           wire.MakeUserID("alice", "127.0.0.1"),
		Profile:          func() (string, string) { return "Alice", "online" },
		Transport:        tr,
		BroadcastAddr:    "255.255.255.255",
		IncludeMulticast: true,
	}
	a.ReplyToPing()

	if len(tr.broadcasts) != 1 || !strings.Contains(tr.broadcasts[0], "TYPE: PROFILE") {
		t.Fatalf("expected exactly one PROFILE broadcast reply, got %v", tr.broadcasts)
	}
	if len(tr.multicasts) != 1 {
		t.Fatal("expected the PROFILE reply to also go out over multicast")
	}
}
