package filetransfer

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/ack"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeTransport) ListenPort() int { return 51000 }
func (f *fakeTransport) Unicast(ip string, port int, payload string, class transport.DropClass) error {
	f.mu.Lock()
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Broadcast(string, string) error      { return nil }
func (f *fakeTransport) Multicast(string) error               { return nil }
func (f *fakeTransport) Loop(context.Context, transport.Handler) {}
func (f *fakeTransport) Close() error                          { return nil }

type fakeEndpoints struct{}

func (fakeEndpoints) EndpointOf(user wire.UserID) wire.Endpoint {
	return wire.Endpoint{IP: "127.0.0.1", Port: 6001}
}

type memStorage struct {
	mu      sync.Mutex
	saved   map[string][]byte
	lastDir string
}

func newMemStorage() *memStorage { return &memStorage{saved: make(map[string][]byte)} }

func (m *memStorage) Save(senderName, filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := senderName + "/" + filename
	m.saved[path] = data
	m.lastDir = senderName
	return path, nil
}

func TestOnOfferRejectsInvalidToken(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	sender := wire.MakeUserID("bob", "127.0.0.1")
	mgr := New(self, &fakeTransport{}, fakeEndpoints{}, ack.New(nil, nil), token.NewRegistry(), newMemStorage(), nil)

	ok := mgr.OnOffer(wire.Message{
		"FROM":     string(sender),
		"FILEID":   "f1",
		"FILENAME": "a.txt",
		"TOKEN":    "garbage",
	}, 1000)
	if ok {
		t.Fatal("expected offer with an invalid token to be rejected")
	}
}

func TestFullTransferAcceptAndReassemble(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	sender := wire.MakeUserID("bob", "127.0.0.1")
	storage := newMemStorage()
	mgr := New(self, &fakeTransport{}, fakeEndpoints{}, ack.New(nil, nil), token.NewRegistry(), storage, nil)

	now := int64(1000)
	tok := token.Make(sender, now+DefaultTTL, token.ScopeFile)

	if ok := mgr.OnOffer(wire.Message{
		"FROM":     string(sender),
		"FILEID":   "f1",
		"FILENAME": "hello.txt",
		"TOKEN":    tok,
	}, now); !ok {
		t.Fatal("expected offer to be accepted for validation")
	}

	if !mgr.Accept("f1") {
		t.Fatal("expected accept to succeed for a known fileID")
	}

	part1 := base64.StdEncoding.EncodeToString([]byte("hello "))
	part2 := base64.StdEncoding.EncodeToString([]byte("world"))

	path, err := mgr.OnChunk(wire.Message{
		"FROM":         string(sender),
		"FILEID":       "f1",
		"CHUNK_INDEX":  "0",
		"TOTAL_CHUNKS": "2",
		"DATA":         part1,
		"TOKEN":        tok,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error on first chunk: %v", err)
	}
	if path != "" {
		t.Fatal("expected transfer to still be incomplete after one of two chunks")
	}

	path, err = mgr.OnChunk(wire.Message{
		"FROM":         string(sender),
		"FILEID":       "f1",
		"CHUNK_INDEX":  "1",
		"TOTAL_CHUNKS": "2",
		"DATA":         part2,
		"TOKEN":        tok,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error on final chunk: %v", err)
	}
	if path == "" {
		t.Fatal("expected transfer to complete after both chunks arrive")
	}

	got := storage.saved["bob/hello.txt"]
	if string(got) != "hello world" {
		t.Fatalf("expected reassembled content %q, got %q", "hello world", got)
	}
}

func TestOnChunkIgnoredBeforeAccept(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	sender := wire.MakeUserID("bob", "127.0.0.1")
	storage := newMemStorage()
	mgr := New(self, &fakeTransport{}, fakeEndpoints{}, ack.New(nil, nil), token.NewRegistry(), storage, nil)

	now := int64(1000)
	tok := token.Make(sender, now+DefaultTTL, token.ScopeFile)
	mgr.OnOffer(wire.Message{"FROM": string(sender), "FILEID": "f1", "FILENAME": "a.txt", "TOKEN": tok}, now)

	path, err := mgr.OnChunk(wire.Message{
		"FROM":         string(sender),
		"FILEID":       "f1",
		"CHUNK_INDEX":  "0",
		"TOTAL_CHUNKS": "1",
		"DATA":         base64.StdEncoding.EncodeToString([]byte("x")),
		"TOKEN":        tok,
	}, now)
	if err != nil || path != "" {
		t.Fatal("expected chunk to be ignored before the offer is accepted")
	}
}

func TestIgnoreDiscardsOffer(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	sender := wire.MakeUserID("bob", "127.0.0.1")
	mgr := New(self, &fakeTransport{}, fakeEndpoints{}, ack.New(nil, nil), token.NewRegistry(), newMemStorage(), nil)
	now := int64(1000)
	tok := token.Make(sender, now+DefaultTTL, token.ScopeFile)
	mgr.OnOffer(wire.Message{"FROM": string(sender), "FILEID": "f1", "FILENAME": "a.txt", "TOKEN": tok}, now)

	if !mgr.Ignore("f1") {
		t.Fatal("expected ignore to succeed on a known offer")
	}
	if mgr.Accept("f1") {
		t.Fatal("expected accept to fail after the offer was ignored")
	}
}
