// Package shell is the interactive command-line driver: it reads
// lines from stdin and calls exactly the command-level entry points
// core.Coordinator exposes, never reaching into protocol internals
// directly.
//
// Grounded on original_source/lsnp/cli.py's register_cli command table
// and app.py's run() read-eval loop.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/core"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/game"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/logging"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// Shell reads commands from In and writes output to Out.
type Shell struct {
	Coord *core.Coordinator
	Log   logging.Logger
	In    io.Reader
	Out   io.Writer
}

// WireEvents hooks the coordinator's inbound-event callbacks to print
// to Out, the way the original peer's run loop echoed every handled
// packet to the console as it arrived.
func (s *Shell) WireEvents() {
	s.Coord.Events = core.Events{
		OnDM: func(from wire.UserID, content string) {
			fmt.Fprintf(s.Out, "\n[DM] %s: %s\n", from, content)
		},
		OnPost: func(author wire.UserID, content string) {
			fmt.Fprintf(s.Out, "\n[POST] %s: %s\n", author, content)
		},
		OnFollowed: func(by wire.UserID) {
			fmt.Fprintf(s.Out, "\n%s started following you.\n", by)
		},
		OnUnfollowed: func(by wire.UserID) {
			fmt.Fprintf(s.Out, "\n%s unfollowed you.\n", by)
		},
		OnLiked: func(by wire.UserID, postTimestamp string, unlike bool) {
			verb := "liked"
			if unlike {
				verb = "unliked"
			}
			fmt.Fprintf(s.Out, "\n%s %s your post from %s.\n", by, verb, postTimestamp)
		},
		OnFileOffer: func(from wire.UserID, fileID, filename string, filesize int64) {
			fmt.Fprintf(s.Out, "\n%s wants to send %s (%d bytes, fileid %s). Use 'accept %s' or 'ignore %s'.\n", from, filename, filesize, fileID, fileID, fileID)
		},
		OnFileReceived: func(path string) {
			fmt.Fprintf(s.Out, "\nFile saved to %s\n", path)
		},
		OnGroupMessage: func(groupID, groupName string, from wire.UserID, content string) {
			fmt.Fprintf(s.Out, "\n[%s] %s: %s\n", groupName, from, content)
		},
		OnGameInvite: func(from wire.UserID, gameID, symbol string) {
			fmt.Fprintf(s.Out, "\n%s invited you to tic-tac-toe (game %s, they play %s).\n", from, gameID, symbol)
		},
		OnGameUpdate: func(gameID, board, result string) {
			if board != "" {
				fmt.Fprintf(s.Out, "\n%s\n", game.RenderBoard(board))
			}
			if result != "" {
				fmt.Fprintf(s.Out, "Game %s: %s\n", gameID, result)
			}
		},
	}
}

// Run executes the read-eval loop until In is exhausted or a
// quit/exit command is read.
func (s *Shell) Run() {
	s.WireEvents()
	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(s.Out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return
		}
		s.dispatch(line)
	}
}

func (s *Shell) dispatch(line string) {
	cmd, rest := splitFirst(line)
	switch strings.ToLower(cmd) {
	case "help":
		s.help()
	case "verbose":
		s.cmdVerbose(rest)
	case "peers":
		s.cmdPeers()
	case "post":
		s.cmdPost(rest)
	case "dm":
		s.cmdDM(rest)
	case "follow":
		s.cmdFollowToggle(rest, "FOLLOW")
	case "unfollow":
		s.cmdFollowToggle(rest, "UNFOLLOW")
	case "like":
		s.cmdLike(rest)
	case "group_create":
		s.cmdGroupCreate(rest)
	case "group_update":
		s.cmdGroupUpdate(rest)
	case "group_msg":
		s.cmdGroupMsg(rest)
	case "file_send":
		s.cmdFileSend(rest)
	case "accept":
		s.cmdAccept(rest)
	case "ignore":
		s.cmdIgnore(rest)
	case "revoke":
		s.cmdRevoke(rest)
	case "ttt_invite":
		s.cmdTTTInvite(rest)
	case "ttt_move":
		s.cmdTTTMove(rest)
	default:
		fmt.Fprintf(s.Out, "Unknown command: %s\n", cmd)
	}
}

func (s *Shell) help() {
	rows := []struct{ cmd, desc string }{
		{"peers", "List known peers"},
		{"post <msg>", "Broadcast a post"},
		{"dm <user_id> <msg>", "Send a direct message"},
		{"follow <user_id>", "Follow a user"},
		{"unfollow <user_id>", "Unfollow a user"},
		{"like <user_id> <ts> [UNLIKE]", "Like/unlike a post"},
		{`group_create <id> "<name>" a,b`, "Create a group"},
		{"group_update <id> add=a,b remove=c", "Modify group members"},
		{"group_msg <id> <text>", "Send a group message"},
		{"file_send <user_id> <path>", "Send a file"},
		{"accept <fileid>", "Accept incoming file"},
		{"ignore <fileid>", "Ignore incoming file"},
		{"revoke <token>", "Revoke a token"},
		{"ttt_invite <user> [X|O] [gameid]", "Invite to Tic-Tac-Toe"},
		{"ttt_move <user> <gid> <pos> <turn> <symbol>", "Make a move"},
		{"verbose <on/off>", "Toggle verbose logs"},
		{"quit", "Exit"},
	}
	for _, r := range rows {
		fmt.Fprintf(s.Out, "  %-44s %s\n", r.cmd, r.desc)
	}
}

func (s *Shell) cmdVerbose(args string) {
	on := isOn(args)
	s.Log.SetVerbose(on)
	fmt.Fprintf(s.Out, "Verbose set to %v\n", on)
}

func (s *Shell) cmdPeers() {
	rows := s.Coord.ListPeers()
	if len(rows) == 0 {
		fmt.Fprintln(s.Out, "No peers discovered yet.")
		return
	}
	fmt.Fprintln(s.Out, "\nKnown Peers")
	for _, r := range rows {
		fmt.Fprintf(s.Out, "%-20s %-30s %-22s %s\n", r.Name, r.UserID, r.Endpoint, r.Status)
	}
}

func (s *Shell) cmdPost(args string) {
	if strings.TrimSpace(args) == "" {
		fmt.Fprintln(s.Out, "Usage: post <message>")
		return
	}
	s.Coord.Post(args)
	fmt.Fprintln(s.Out, "Post sent.")
}

func (s *Shell) cmdDM(args string) {
	to, content, ok := splitTwo(args)
	if !ok {
		fmt.Fprintln(s.Out, "Usage: dm <user_id> <message>")
		return
	}
	if !s.Coord.DM(to, content) {
		fmt.Fprintln(s.Out, "Don't know where to send that yet. Try 'peers' and wait for PROFILEs.")
		return
	}
	fmt.Fprintf(s.Out, "DM sent to %s.\n", to)
}

func (s *Shell) cmdFollowToggle(args, kind string) {
	to := strings.TrimSpace(args)
	if to == "" {
		fmt.Fprintf(s.Out, "Usage: %s <user_id>\n", strings.ToLower(kind))
		return
	}
	var ok bool
	if kind == "FOLLOW" {
		ok = s.Coord.Follow(to)
	} else {
		ok = s.Coord.Unfollow(to)
	}
	if !ok {
		fmt.Fprintf(s.Out, "Request to %s not sent (already in that state, or endpoint unknown).\n", to)
		return
	}
	verb := "Follow"
	if kind == "UNFOLLOW" {
		verb = "Unfollow"
	}
	fmt.Fprintf(s.Out, "%s sent to %s.\n", verb, to)
}

func (s *Shell) cmdLike(args string) {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 2 {
		fmt.Fprintln(s.Out, "Usage: like <user_id> <post_timestamp> [UNLIKE]")
		return
	}
	to, postTS := fields[0], fields[1]
	unlike := len(fields) > 2 && strings.EqualFold(fields[2], "UNLIKE")
	if !s.Coord.Like(to, postTS, unlike) {
		fmt.Fprintln(s.Out, "Like not sent (already in that state, or endpoint unknown).")
		return
	}
	action := "LIKE"
	if unlike {
		action = "UNLIKE"
	}
	fmt.Fprintf(s.Out, "%s sent to %s for post %s.\n", action, to, postTS)
}

func (s *Shell) cmdGroupCreate(args string) {
	groupID, rest, ok := splitTwo(args)
	if !ok {
		fmt.Fprintln(s.Out, `Usage: group_create <group_id> "<group name>" member1,member2`)
		return
	}
	name, after := rest, ""
	if strings.HasPrefix(strings.TrimSpace(rest), `"`) {
		trimmed := strings.TrimSpace(rest)
		parts := strings.SplitN(trimmed[1:], `"`, 2)
		if len(parts) == 2 {
			name = parts[0]
			after = strings.TrimSpace(parts[1])
		}
	} else {
		name = groupID
		after = rest
	}
	members := splitCSVTrim(after)
	s.Coord.GroupCreate(groupID, name, members)
	fmt.Fprintln(s.Out, "\nGROUP CREATE")
	fmt.Fprintf(s.Out, "ID: %s\nName: %s\nMembers: %s\n", groupID, name, strings.Join(members, ", "))
}

func (s *Shell) cmdGroupUpdate(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		fmt.Fprintln(s.Out, "Usage: group_update <group_id> add=a,b remove=c")
		return
	}
	groupID := parts[0]
	var add, remove []string
	for _, p := range parts[1:] {
		if strings.HasPrefix(p, "add=") {
			add = splitCSVTrim(p[len("add="):])
		} else if strings.HasPrefix(p, "remove=") {
			remove = splitCSVTrim(p[len("remove="):])
		}
	}
	s.Coord.GroupUpdate(groupID, add, remove)
	fmt.Fprintf(s.Out, "Group %q member list updated.\n", groupID)
}

func (s *Shell) cmdGroupMsg(args string) {
	groupID, content, ok := splitTwo(args)
	if !ok {
		fmt.Fprintln(s.Out, "Usage: group_msg <group_id> <message>")
		return
	}
	if !s.Coord.GroupMessage(groupID, content) {
		fmt.Fprintf(s.Out, "No known members for group %q.\n", groupID)
		return
	}
	fmt.Fprintln(s.Out, "Delivered to group members (UDP best effort).")
}

func (s *Shell) cmdFileSend(args string) {
	to, path, ok := splitTwo(args)
	if !ok {
		fmt.Fprintln(s.Out, "Usage: file_send <user_id> <path>")
		return
	}
	path = strings.Trim(strings.TrimSpace(path), `"'`)
	path = s.resolveFilePath(path)
	if err := s.Coord.FileSend(to, path); err != nil {
		fmt.Fprintf(s.Out, "File not found or unreadable: %s\n", path)
	}
}

// resolveFilePath falls back to client-files/<basename> when the given
// path does not exist, a convenience the interactive shell offers so a
// user can refer to a file by name alone.
func (s *Shell) resolveFilePath(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	fallback := filepath.Join("client-files", filepath.Base(path))
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return path
}

func (s *Shell) cmdAccept(args string) {
	fileID := strings.TrimSpace(args)
	if fileID == "" {
		fmt.Fprintln(s.Out, "Usage: accept <FILEID>")
		return
	}
	s.Coord.AcceptFile(fileID)
	fmt.Fprintf(s.Out, "Accepted file %s\n", fileID)
}

func (s *Shell) cmdIgnore(args string) {
	fileID := strings.TrimSpace(args)
	if fileID == "" {
		fmt.Fprintln(s.Out, "Usage: ignore <FILEID>")
		return
	}
	s.Coord.IgnoreFile(fileID)
	fmt.Fprintf(s.Out, "Ignored file %s\n", fileID)
}

func (s *Shell) cmdRevoke(args string) {
	tok := strings.TrimSpace(args)
	if tok == "" {
		fmt.Fprintln(s.Out, "Usage: revoke <token>")
		return
	}
	s.Coord.RevokeToken(tok)
	fmt.Fprintln(s.Out, "Token revoked.")
}

func (s *Shell) cmdTTTInvite(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		fmt.Fprintln(s.Out, "Usage: ttt_invite <user_id> [X|O] [gameid]")
		return
	}
	to := parts[0]
	symbol := "X"
	if len(parts) > 1 {
		symbol = strings.ToUpper(parts[1])
	}
	gameID := ""
	if len(parts) > 2 {
		gameID = parts[2]
	}
	s.Coord.InviteGame(to, symbol, gameID)
}

func (s *Shell) cmdTTTMove(args string) {
	parts := strings.Fields(args)
	if len(parts) < 5 {
		fmt.Fprintln(s.Out, "Usage: ttt_move <user_id> <gameid> <pos> <turn> <symbol>")
		return
	}
	to, gid := parts[0], parts[1]
	pos, err1 := strconv.Atoi(parts[2])
	turn, err2 := strconv.Atoi(parts[3])
	sym := strings.ToUpper(parts[4])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(s.Out, "Usage: ttt_move <user_id> <gameid> <pos> <turn> <symbol>")
		return
	}
	s.Coord.MoveGame(to, gid, pos, turn, sym)
}

// RenderGame prints a game's board, for tests and any future `board
// <gameid>` command.
func (s *Shell) RenderGame(gameID string) {
	st, ok := s.Coord.Game.Game(gameID)
	if !ok {
		fmt.Fprintf(s.Out, "No such game %s\n", gameID)
		return
	}
	fmt.Fprintln(s.Out, game.RenderBoard(st.Board))
}

func isOn(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitFirst(line string) (cmd, rest string) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func splitTwo(args string) (first, second string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitCSVTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
