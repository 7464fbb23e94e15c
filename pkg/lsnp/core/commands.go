package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/idgen"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// ChunkSize is the payload size used by FileSend, chosen so the
// resulting UDP datagram stays well under the typical 1500-byte MTU
// after headers, exactly as the original peer's cmd_file_send did.
const ChunkSize = 1200

// PeerRow is one row of the `peers` command's output table.
type PeerRow struct {
	Name     string
	UserID   string
	Endpoint string
	Status   string
}

// ListPeers returns every known peer, formatted for display.
func (c *Coordinator) ListPeers() []PeerRow {
	recs := c.Peers.List()
	rows := make([]PeerRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, PeerRow{
			Name:     r.DisplayName,
			UserID:   string(r.UserID),
			Endpoint: fmt.Sprintf("%s:%d", r.Address, r.Port),
			Status:   r.Status,
		})
	}
	return rows
}

// Post broadcasts or unicasts-to-followers a new post.
func (c *Coordinator) Post(content string) {
	c.Social.Post(content, c.now())
}

// DM sends a direct message, returning false if the recipient's
// endpoint isn't known yet.
func (c *Coordinator) DM(to, content string) bool {
	return c.Social.DM(wire.UserID(to), content, c.now())
}

// Follow sends a FOLLOW request, returning false if already following.
func (c *Coordinator) Follow(to string) bool {
	return c.Social.Follow(wire.UserID(to), c.now())
}

// Unfollow sends an UNFOLLOW request, returning false if not following.
func (c *Coordinator) Unfollow(to string) bool {
	return c.Social.Unfollow(wire.UserID(to), c.now())
}

// Like sends a LIKE (or UNLIKE) for a post, returning false if the
// local state already reflects the requested action.
func (c *Coordinator) Like(to, postTimestamp string, unlike bool) bool {
	return c.Social.Like(wire.UserID(to), postTimestamp, unlike, c.now())
}

// GroupCreate creates a group locally (always including ourselves) and
// notifies every named member.
func (c *Coordinator) GroupCreate(groupID, name string, members []string) {
	localMembers := append(append([]string{}, members...), string(c.cfg.Self))
	c.Groups.Create(groupID, name, localMembers)

	ts := c.now()
	fields := wire.Message{
		"TYPE":       "GROUP_CREATE",
		"FROM":       string(c.cfg.Self),
		"GROUP_ID":   groupID,
		"GROUP_NAME": name,
		"MEMBERS":    joinCSV(members),
		"TIMESTAMP":  fmt.Sprintf("%d", ts),
		"TOKEN":      makeGroupToken(c, ts),
	}
	payload := wire.BuildMap(fields)
	for _, m := range members {
		ep := c.Peers.EndpointOf(wire.UserID(m))
		if ep.Port == 0 {
			continue
		}
		_ = c.cfg.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropNone)
	}
}

// GroupUpdate adds/removes members locally and notifies every member
// currently in the group.
func (c *Coordinator) GroupUpdate(groupID string, add, remove []string) {
	c.Groups.Update(groupID, add, remove)

	ts := c.now()
	fields := wire.Message{
		"TYPE":      "GROUP_UPDATE",
		"FROM":      string(c.cfg.Self),
		"GROUP_ID":  groupID,
		"ADD":       joinCSV(add),
		"REMOVE":    joinCSV(remove),
		"TIMESTAMP": fmt.Sprintf("%d", ts),
		"TOKEN":     makeGroupToken(c, ts),
	}
	payload := wire.BuildMap(fields)
	for _, m := range c.Groups.Members(groupID) {
		ep := c.Peers.EndpointOf(wire.UserID(m))
		if ep.Port == 0 {
			continue
		}
		_ = c.cfg.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropNone)
	}
}

// GroupMessage sends content to every other member of groupID. Returns
// false if the group has no known members besides ourselves.
func (c *Coordinator) GroupMessage(groupID, content string) bool {
	ts := c.now()
	fields := wire.Message{
		"TYPE":      "GROUP_MESSAGE",
		"FROM":      string(c.cfg.Self),
		"GROUP_ID":  groupID,
		"CONTENT":   content,
		"TIMESTAMP": fmt.Sprintf("%d", ts),
		"TOKEN":     makeGroupToken(c, ts),
	}
	payload := wire.BuildMap(fields)

	sent := false
	for _, m := range c.Groups.Members(groupID) {
		if m == string(c.cfg.Self) {
			continue
		}
		ep := c.Peers.EndpointOf(wire.UserID(m))
		if ep.Port == 0 {
			continue
		}
		_ = c.cfg.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropNone)
		sent = true
	}
	return sent
}

func makeGroupToken(c *Coordinator, ts int64) string {
	return token.Make(c.cfg.Self, ts+c.cfg.TTL, token.ScopeGroup)
}

// FileSend reads path off disk and drives an offer + chunked transfer
// to `to`.
func (c *Coordinator) FileSend(to, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fileID := idgen.NewFileID()
	fname := filepath.Base(path)
	now := c.now()
	c.Files.SendOffer(wire.UserID(to), fileID, fname, int64(len(data)), "application/octet-stream", "File via LSNP", now)

	total := (len(data) + ChunkSize - 1) / ChunkSize
	if total == 0 {
		total = 1
	}
	for i := 0; i < total; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		c.Files.SendChunk(wire.UserID(to), fileID, i, total, data[start:end], ChunkSize, now)
	}
	return nil
}

// AcceptFile accepts a previously offered file.
func (c *Coordinator) AcceptFile(fileID string) bool { return c.Files.Accept(fileID) }

// IgnoreFile discards a previously offered file.
func (c *Coordinator) IgnoreFile(fileID string) bool { return c.Files.Ignore(fileID) }

// RevokeToken marks tok as revoked for all future validation checks.
func (c *Coordinator) RevokeToken(tok string) {
	c.Tokens.Revoke(tok)
}

// InviteGame starts a tic-tac-toe game with `to`.
func (c *Coordinator) InviteGame(to, symbol, gameID string) {
	if symbol == "" {
		symbol = "X"
	}
	if gameID == "" {
		gameID = idgen.NewGameID()
	}
	c.Game.Invite(wire.UserID(to), gameID, symbol, c.now())
}

// MoveGame submits a move in an in-progress game.
func (c *Coordinator) MoveGame(to, gameID string, position, turn int, symbol string) {
	c.Game.Move(wire.UserID(to), gameID, position, symbol, turn, c.now())
}

func joinCSV(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
