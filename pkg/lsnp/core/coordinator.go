// Package core wires every protocol component into a single running
// peer: it owns the shared sub-tables (each behind its own mutex, per
// component), runs the dispatcher pipeline over every inbound
// datagram, and exposes the command-level entry points the shell
// calls.
//
// Grounded on original_source/lsnp/app.py's App class — the dispatch
// pipeline in _on_packet (parse, IP-spoof check with loopback
// tolerance, addressed-to-me ACK reply, ACK ingestion, per-type
// handler dispatch) is reproduced method-for-method, generalized from
// App's duck-typed dict access into calls against the typed component
// APIs built in the sibling packages. Cast in the teacher's
// single-coordinator-object shape (pkg/mcast/core/peer.go's Peer),
// replacing its GM-Cast quorum state with LSNP's protocol state.
package core

import (
	"context"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/ack"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/discovery"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/filetransfer"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/game"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/group"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/logging"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/metrics"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/peers"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/social"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// ackTrackedTypes is the set of message types a receiver immediately
// ACKs, when addressed to them and carrying a MESSAGE_ID.
var ackTrackedTypes = map[string]struct{}{
	"TICTACTOE_INVITE": {},
	"TICTACTOE_MOVE":   {},
	"FILE_CHUNK":       {},
	"FILE_OFFER":       {},
	"DM":               {},
}

// Config configures a Coordinator.
type Config struct {
	Self          wire.UserID
	DisplayName   string
	LocalIP       string
	BroadcastAddr string
	TTL           int64
	LoopbackMode  bool

	Transport transport.Transport
	Log       logging.Logger
	Metrics   *metrics.Registry
}

// Events holds optional callbacks fired as inbound datagrams produce
// locally visible effects. Every field may be left nil; the dispatcher
// checks before calling. The shell wires these to console output, but
// nothing in this package depends on that — it is how a UI front end
// hooks into the running peer without reaching into protocol internals.
type Events struct {
	OnDM           func(from wire.UserID, content string)
	OnPost         func(author wire.UserID, content string)
	OnFollowed     func(by wire.UserID)
	OnUnfollowed   func(by wire.UserID)
	OnLiked        func(by wire.UserID, postTimestamp string, unlike bool)
	OnFileOffer    func(from wire.UserID, fileID, filename string, filesize int64)
	OnFileReceived func(path string)
	OnGroupMessage func(groupID, groupName string, from wire.UserID, content string)
	OnGameInvite   func(from wire.UserID, gameID, symbol string)
	OnGameUpdate   func(gameID, board, result string)
}

// Coordinator owns every piece of protocol state for a single running
// peer and dispatches inbound datagrams to the right component.
type Coordinator struct {
	cfg    Config
	Events Events

	Peers    *peers.Directory
	Groups   *group.State
	Tokens   *token.Registry
	Acks     *ack.Manager
	Files    *filetransfer.Manager
	Game     *game.Engine
	Social   *social.Surface
	Announce *discovery.Announcer

	status func() string
	nowFn  func() int64
}

// New builds a Coordinator with every component wired together, ready
// for Run.
func New(cfg Config, now func() int64, status func() string) *Coordinator {
	if cfg.Log == nil {
		cfg.Log = logging.Discard{}
	}
	if status == nil {
		status = func() string { return "" }
	}
	tokens := token.NewRegistry()
	acks := ack.New(cfg.Log, cfg.Metrics)
	peerDir := peers.New()
	groups := group.New()

	files := filetransfer.New(cfg.Self, cfg.Transport, peerDir, acks, tokens, filetransfer.DiskStorage{}, cfg.Log)
	gameEngine := game.New(cfg.Self, cfg.Transport, peerDir, acks, tokens, cfg.Log)
	socialSurface := social.New(cfg.Self, cfg.Transport, peerDir, peerDir, acks, tokens, cfg.Log, cfg.BroadcastAddr, cfg.TTL)

	c := &Coordinator{
		cfg:     cfg,
		Peers:   peerDir,
		Groups:  groups,
		Tokens:  tokens,
		Acks:    acks,
		Files:   files,
		Game:    gameEngine,
		Social:  socialSurface,
		status:  status,
		nowFn:   now,
	}
	c.Announce = &discovery.Announcer{
		UserID:           cfg.Self,
		Profile:          func() (string, string) { return cfg.DisplayName, status() },
		Transport:        cfg.Transport,
		BroadcastAddr:    cfg.BroadcastAddr,
		IncludeMulticast: true,
	}
	return c
}

// Run starts the receive loop, the ACK sweeper, and the discovery
// announcer, all cancelled together via ctx.
func (c *Coordinator) Run(ctx context.Context) {
	c.Acks.Run(ctx)
	c.Announce.Run(ctx)
	c.cfg.Transport.Loop(ctx, c.handlePacket)
}

func (c *Coordinator) now() int64 {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return wire.Now()
}

// handlePacket is the dispatcher pipeline's entry point, run on the
// transport's receiver goroutine.
func (c *Coordinator) handlePacket(pkt transport.Packet) {
	msg := wire.Parse(pkt.Payload)
	mtype := msg.Type()
	if mtype == "" {
		return
	}
	c.cfg.Metrics.IncReceived(mtype)

	senderUID := firstNonEmpty(msg["FROM"], msg["USER_ID"])
	if senderUID != "" {
		declaredIP := wire.UserID(senderUID).IP()
		if declaredIP != "" && declaredIP != pkt.SrcIP {
			if c.cfg.LoopbackMode && declaredIP == "127.0.0.1" {
				c.cfg.Log.Warnf("loopback: tolerating IP mismatch (header %s vs actual %s) for %s", declaredIP, pkt.SrcIP, mtype)
			} else {
				c.cfg.Log.Warnf("IP mismatch: header %s vs actual %s for %s", declaredIP, pkt.SrcIP, mtype)
				return
			}
		}
	}

	toUID := msg["TO"]
	addressedToMe := toUID == "" || toUID == string(c.cfg.Self)
	if _, tracked := ackTrackedTypes[mtype]; addressedToMe && msg["MESSAGE_ID"] != "" && tracked {
		c.replyAck(msg, senderUID, pkt)
	}

	if mtype == "ACK" {
		if mid := msg["MESSAGE_ID"]; mid != "" {
			c.Acks.Acked(mid)
		}
		return
	}

	c.route(msg, pkt)
}

func (c *Coordinator) replyAck(msg wire.Message, senderUID string, pkt transport.Packet) {
	ep := c.Peers.EndpointOf(wire.UserID(senderUID))
	ackIP := ep.IP
	if ackIP == "" {
		ackIP = pkt.SrcIP
	}
	ackPort := ep.Port
	if ackPort == 0 {
		ackPort = pkt.SrcPort
	}
	ackPayload := wire.BuildMap(wire.Message{
		"TYPE":       "ACK",
		"MESSAGE_ID": msg["MESSAGE_ID"],
		"STATUS":     "RECEIVED",
	})
	_ = c.cfg.Transport.Unicast(ackIP, ackPort, ackPayload, transport.DropNone)
}

// route dispatches a parsed, non-ACK message to its type-specific
// handler. Unknown types are silently ignored, matching the original
// peer's getattr-based dynamic dispatch returning None for unhandled
// types.
func (c *Coordinator) route(msg wire.Message, pkt transport.Packet) {
	now := c.now()
	switch msg.Type() {
	case "PROFILE":
		c.Peers.Upsert(peers.ProfileFields{
			UserID:      wire.UserID(msg["USER_ID"]),
			DisplayName: msg["DISPLAY_NAME"],
			Status:      msg["STATUS"],
			Port:        atoiOr(msg["PORT"], 0),
			AvatarType:  msg["AVATAR_TYPE"],
			AvatarData:  msg["AVATAR_DATA"],
		}, pkt.SrcIP, pkt.SrcPort)
		c.cfg.Metrics.SetPeerCount(c.Peers.Count())

	case "PING":
		c.Announce.ReplyToPing()

	case "DM":
		outcome := c.Social.OnDM(msg, now)
		if outcome.Delivered && c.Events.OnDM != nil {
			c.Events.OnDM(outcome.From, outcome.Content)
		}

	case "POST":
		outcome := c.Social.OnPost(msg, now)
		if outcome.Visible && c.Events.OnPost != nil {
			c.Events.OnPost(outcome.Author, outcome.Content)
		}

	case "FOLLOW":
		if sender := c.Social.OnFollow(msg, now); sender != "" && c.Events.OnFollowed != nil {
			c.Events.OnFollowed(sender)
		}

	case "UNFOLLOW":
		if sender := c.Social.OnUnfollow(msg, now); sender != "" && c.Events.OnUnfollowed != nil {
			c.Events.OnUnfollowed(sender)
		}

	case "LIKE":
		outcome := c.Social.OnLike(msg, now)
		if outcome.Changed && c.Events.OnLiked != nil {
			c.Events.OnLiked(outcome.Sender, outcome.PostTS, outcome.Unlike)
		}

	case "FILE_OFFER":
		if c.Files.OnOffer(msg, now) && c.Events.OnFileOffer != nil {
			c.Events.OnFileOffer(wire.UserID(msg["FROM"]), msg["FILEID"], msg["FILENAME"], int64(atoiOr(msg["FILESIZE"], 0)))
		}

	case "FILE_CHUNK":
		if path, _ := c.Files.OnChunk(msg, now); path != "" && c.Events.OnFileReceived != nil {
			c.Events.OnFileReceived(path)
		}

	case "FILE_RECEIVED":
		// informational only; nothing to do locally.

	case "REVOKE":
		if tok := msg["TOKEN"]; tok != "" {
			c.Tokens.Revoke(tok)
		}

	case "GROUP_CREATE":
		sender := wire.UserID(msg["FROM"])
		if !c.Tokens.Validate(msg["TOKEN"], token.ScopeGroup, sender, now) {
			c.cfg.Log.Warnf("rejected GROUP_CREATE from %s: invalid token", sender)
			return
		}
		members := splitCSV(msg["MEMBERS"])
		gid := msg["GROUP_ID"]
		gname := msg["GROUP_NAME"]
		if gname == "" {
			gname = gid
		}
		c.Groups.Create(gid, gname, members)

	case "GROUP_UPDATE":
		sender := wire.UserID(msg["FROM"])
		if !c.Tokens.Validate(msg["TOKEN"], token.ScopeGroup, sender, now) {
			c.cfg.Log.Warnf("rejected GROUP_UPDATE from %s: invalid token", sender)
			return
		}
		c.Groups.Update(msg["GROUP_ID"], splitCSV(msg["ADD"]), splitCSV(msg["REMOVE"]))

	case "GROUP_MESSAGE":
		sender := wire.UserID(msg["FROM"])
		if !c.Tokens.Validate(msg["TOKEN"], token.ScopeGroup, sender, now) {
			c.cfg.Log.Warnf("rejected GROUP_MESSAGE from %s: invalid token", sender)
			return
		}
		gid := msg["GROUP_ID"]
		if c.Events.OnGroupMessage != nil {
			c.Events.OnGroupMessage(gid, c.Groups.NameOf(gid), sender, msg["CONTENT"])
		}

	case "TICTACTOE_INVITE":
		if c.Game.OnInvite(msg, now) && c.Events.OnGameInvite != nil {
			c.Events.OnGameInvite(wire.UserID(msg["FROM"]), msg["GAMEID"], msg["SYMBOL"])
		}

	case "TICTACTOE_MOVE":
		outcome := c.Game.OnMove(msg, now)
		if outcome.Accepted {
			if outcome.Result != "" {
				sender := wire.UserID(msg["FROM"])
				sym := msg["SYMBOL"]
				c.Game.SendResult(sender, msg["GAMEID"], outcome.Result, sym, outcome.Line, now)
			}
			if c.Events.OnGameUpdate != nil {
				c.Events.OnGameUpdate(msg["GAMEID"], outcome.Board, outcome.Result)
			}
		}

	case "TICTACTOE_RESULT":
		if c.Events.OnGameUpdate != nil {
			c.Events.OnGameUpdate(msg["GAMEID"], "", msg["RESULT"])
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			part := trimSpace(s[start:i])
			if part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
