package game

import (
	"context"
	"sync"
	"testing"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/ack"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// fakeTransport records every send for inspection instead of touching
// a real socket.
type fakeTransport struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeTransport) ListenPort() int { return 50999 }
func (f *fakeTransport) Unicast(ip string, port int, payload string, class transport.DropClass) error {
	f.mu.Lock()
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Broadcast(string, string) error       { return nil }
func (f *fakeTransport) Multicast(string) error                { return nil }
func (f *fakeTransport) Loop(context.Context, transport.Handler) {}
func (f *fakeTransport) Close() error                           { return nil }

type fakeEndpoints struct{}

func (fakeEndpoints) EndpointOf(user wire.UserID) wire.Endpoint {
	return wire.Endpoint{IP: "127.0.0.1", Port: 6000}
}

func TestInviteThenMoveProducesWin(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	opp := wire.MakeUserID("bob", "127.0.0.1")
	tr := &fakeTransport{}
	tokens := token.NewRegistry()
	acks := ack.New(nil, nil)
	engine := New(self, tr, fakeEndpoints{}, acks, tokens, nil)

	now := int64(1000)
	inviteTok := token.Make(opp, now+100, token.ScopeGame)
	ok := engine.OnInvite(wire.Message{
		"FROM":   string(opp),
		"GAMEID": "g1",
		"SYMBOL": "X",
		"TOKEN":  inviteTok,
	}, now)
	if !ok {
		t.Fatal("expected invite to be accepted")
	}

	moveTok := token.Make(opp, now+100, token.ScopeGame)
	for i, pos := range []int{0, 3, 1, 4, 2} { // X wins top row: 0,1,2
		sym := "X"
		if i%2 == 1 {
			sym = "O"
		}
		outcome := engine.OnMove(wire.Message{
			"FROM":     string(opp),
			"GAMEID":   "g1",
			"POSITION": itoa(pos),
			"SYMBOL":   sym,
			"TURN":     itoa(i + 1),
			"TOKEN":    moveTok,
		}, now)
		if !outcome.Accepted {
			t.Fatalf("move %d was not accepted", i)
		}
		if i == 4 {
			if outcome.Result != "WIN" {
				t.Fatalf("expected final move to win, got %q", outcome.Result)
			}
			if outcome.Line != "0,1,2" {
				t.Fatalf("expected winning line 0,1,2, got %q", outcome.Line)
			}
		}
	}
}

func TestMoveRejectsConflictingCell(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	opp := wire.MakeUserID("bob", "127.0.0.1")
	tr := &fakeTransport{}
	tokens := token.NewRegistry()
	acks := ack.New(nil, nil)
	engine := New(self, tr, fakeEndpoints{}, acks, tokens, nil)
	now := int64(1000)
	tok := token.Make(opp, now+100, token.ScopeGame)

	engine.OnMove(wire.Message{"FROM": string(opp), "GAMEID": "g1", "POSITION": "0", "SYMBOL": "X", "TURN": "1", "TOKEN": tok}, now)
	outcome := engine.OnMove(wire.Message{"FROM": string(opp), "GAMEID": "g1", "POSITION": "0", "SYMBOL": "O", "TURN": "2", "TOKEN": tok}, now)
	if outcome.Accepted {
		t.Fatal("expected conflicting move onto an occupied cell to be rejected")
	}
}

func TestMoveIsIdempotentOnDuplicateTurn(t *testing.T) {
	self := wire.MakeUserID("alice", "127.0.0.1")
	opp := wire.MakeUserID("bob", "127.0.0.1")
	tr := &fakeTransport{}
	tokens := token.NewRegistry()
	acks := ack.New(nil, nil)
	engine := New(self, tr, fakeEndpoints{}, acks, tokens, nil)
	now := int64(1000)
	tok := token.Make(opp, now+100, token.ScopeGame)

	engine.OnMove(wire.Message{"FROM": string(opp), "GAMEID": "g1", "POSITION": "0", "SYMBOL": "X", "TURN": "1", "TOKEN": tok}, now)
	outcome := engine.OnMove(wire.Message{"FROM": string(opp), "GAMEID": "g1", "POSITION": "1", "SYMBOL": "X", "TURN": "1", "TOKEN": tok}, now)
	if outcome.Accepted {
		t.Fatal("expected replay of an already-seen turn to be rejected as a no-op")
	}
	st, _ := engine.Game("g1")
	if st.Board[1] == 'X' {
		t.Fatal("expected the duplicate turn's move to not be applied")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
