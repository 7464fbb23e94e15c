// Package game implements the tic-tac-toe engine: wire messages are
// stateless, but each peer keeps per-GAMEID board state locally and
// suppresses duplicate or conflicting moves using a monotonic turn
// counter.
//
// Grounded on original_source/lsnp/game.py's TicTacToe class.
package game

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/ack"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/idgen"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/logging"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// DefaultTTL is the token lifetime attached to game messages.
const DefaultTTL = 3600

// winLines enumerates the 8 ways to fill a 3x3 board.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// RenderBoard formats a 9-character board (space/"X"/"O" per cell) the
// way the original peer's render_board did, for CLI display.
func RenderBoard(board string) string {
	cells := make([]byte, 9)
	for i := 0; i < 9 && i < len(board); i++ {
		c := board[i]
		if c == 'X' || c == 'O' {
			cells[i] = c
		} else {
			cells[i] = ' '
		}
	}
	row := func(a, b, c int) string {
		return fmt.Sprintf(" %c | %c | %c ", cells[a], cells[b], cells[c])
	}
	sep := "\n-----------\n"
	return row(0, 1, 2) + sep + row(3, 4, 5) + sep + row(6, 7, 8)
}

// evaluate checks a board for a win or draw, returning the result
// string ("WIN"/"DRAW"/"") and the winning line as "a,b,c" if any.
func evaluate(board string) (string, string) {
	for _, l := range winLines {
		a, b, c := l[0], l[1], l[2]
		if board[a] != ' ' && board[a] == board[b] && board[b] == board[c] {
			return "WIN", fmt.Sprintf("%d,%d,%d", a, b, c)
		}
	}
	if !strings.Contains(board, " ") {
		return "DRAW", ""
	}
	return "", ""
}

// State is one in-progress or finished game.
type State struct {
	Board        string
	NextTurn     int
	MySymbol     string
	OppSymbol    string
	LastTurnSeen int
	Opponent     wire.UserID
}

// Endpoints resolves a user id to where to reach them.
type Endpoints interface {
	EndpointOf(user wire.UserID) wire.Endpoint
}

// Engine drives invites, moves, and result detection for every game
// this peer is party to.
type Engine struct {
	Self      wire.UserID
	Transport transport.Transport
	Peers     Endpoints
	Acks      *ack.Manager
	Tokens    *token.Registry
	Log       logging.Logger

	mu    sync.Mutex
	games map[string]*State
}

// New returns a ready Engine.
func New(self wire.UserID, tr transport.Transport, peers Endpoints, acks *ack.Manager, tokens *token.Registry, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Discard{}
	}
	return &Engine{
		Self:      self,
		Transport: tr,
		Peers:     peers,
		Acks:      acks,
		Tokens:    tokens,
		Log:       log,
		games:     make(map[string]*State),
	}
}

type resender struct {
	transport transport.Transport
	ip        string
	port      int
	payload   string
	log       logging.Logger
}

func (r *resender) Resend() {
	_ = r.transport.Unicast(r.ip, r.port, r.payload, transport.DropGame)
}
func (r *resender) Fail() {
	r.log.Warnf("game: giving up on a message to %s:%d", r.ip, r.port)
}

func (e *Engine) sendTracked(to wire.UserID, fields wire.Message) {
	ep := e.Peers.EndpointOf(to)
	fields["MESSAGE_ID"] = idgen.NewMessageID()
	payload := wire.BuildMap(fields)
	_ = e.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropGame)
	e.Acks.Track(fields["MESSAGE_ID"], &resender{
		transport: e.Transport,
		ip:        ep.IP,
		port:      ep.Port,
		payload:   payload,
		log:       e.Log,
	})
}

// Invite starts a new game with `to`, offering `symbol` to the invitee.
func (e *Engine) Invite(to wire.UserID, gameID, symbol string, now int64) {
	tok := token.Make(e.Self, now+DefaultTTL, token.ScopeGame)
	e.sendTracked(to, wire.Message{
		"TYPE":      "TICTACTOE_INVITE",
		"FROM":      string(e.Self),
		"TO":        string(to),
		"GAMEID":    gameID,
		"SYMBOL":    symbol,
		"TIMESTAMP": fmt.Sprintf("%d", now),
		"TOKEN":     tok,
	})
}

// Move submits position/turn to an opponent for an in-progress game.
func (e *Engine) Move(to wire.UserID, gameID string, position int, symbol string, turn int, now int64) {
	tok := token.Make(e.Self, now+DefaultTTL, token.ScopeGame)
	e.sendTracked(to, wire.Message{
		"TYPE":     "TICTACTOE_MOVE",
		"FROM":     string(e.Self),
		"TO":       string(to),
		"GAMEID":   gameID,
		"POSITION": fmt.Sprintf("%d", position),
		"SYMBOL":   symbol,
		"TURN":     fmt.Sprintf("%d", turn),
		"TOKEN":    tok,
	})
}

// OnInvite ingests a TICTACTOE_INVITE, seeding local game state with
// the inviter's symbol assigned to them and its opposite to us.
func (e *Engine) OnInvite(msg wire.Message, now int64) bool {
	sender := wire.UserID(msg["FROM"])
	if !e.Tokens.Validate(msg["TOKEN"], token.ScopeGame, sender, now) {
		return false
	}
	gid := msg["GAMEID"]
	symbol := msg["SYMBOL"]
	if symbol == "" {
		symbol = "X"
	}
	mySymbol := "O"
	if symbol == "O" {
		mySymbol = "X"
	}
	e.mu.Lock()
	e.games[gid] = &State{
		Board:     strings.Repeat(" ", 9),
		NextTurn:  1,
		MySymbol:  mySymbol,
		OppSymbol: symbol,
		Opponent:  sender,
	}
	e.mu.Unlock()
	return true
}

// MoveOutcome reports what OnMove did with an inbound move.
type MoveOutcome struct {
	Accepted bool   // false if duplicate, conflicting, out-of-range, or unauthenticated
	Board    string // current board, valid whenever Accepted or it was a duplicate replay
	Result   string // "WIN", "DRAW", or ""
	Line     string // "a,b,c" when Result == "WIN"
}

// OnMove ingests a TICTACTOE_MOVE. Turns at or below last_turn_seen are
// treated as an idempotent replay: the board is reported again but no
// state changes and no result is (re-)computed. A move onto an
// occupied cell is a silent conflict. Otherwise the move is applied,
// and a WIN/DRAW result, if any, is reported for the caller to relay
// via SendResult.
func (e *Engine) OnMove(msg wire.Message, now int64) MoveOutcome {
	sender := wire.UserID(msg["FROM"])
	if !e.Tokens.Validate(msg["TOKEN"], token.ScopeGame, sender, now) {
		return MoveOutcome{}
	}
	gid := msg["GAMEID"]
	pos := atoiOr(msg["POSITION"], 0)
	sym := msg["SYMBOL"]
	if sym == "" {
		sym = "X"
	}
	turn := atoiOr(msg["TURN"], 1)

	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.games[gid]
	if !ok {
		st = &State{Board: strings.Repeat(" ", 9), NextTurn: 1, MySymbol: "O", OppSymbol: "X", Opponent: sender}
		e.games[gid] = st
	}

	if turn <= st.LastTurnSeen {
		return MoveOutcome{Accepted: false, Board: st.Board}
	}
	if pos < 0 || pos > 8 {
		return MoveOutcome{}
	}
	if st.Board[pos] == 'X' || st.Board[pos] == 'O' {
		return MoveOutcome{}
	}

	b := []byte(st.Board)
	b[pos] = sym[0]
	st.Board = string(b)
	st.LastTurnSeen = turn
	st.NextTurn = turn + 1

	result, line := evaluate(st.Board)
	return MoveOutcome{Accepted: true, Board: st.Board, Result: result, Line: line}
}

// SendResult notifies `to` of a finished game's outcome.
func (e *Engine) SendResult(to wire.UserID, gameID, result, symbol, line string, now int64) {
	ep := e.Peers.EndpointOf(to)
	payload := wire.BuildMap(wire.Message{
		"TYPE":         "TICTACTOE_RESULT",
		"FROM":         string(e.Self),
		"TO":           string(to),
		"GAMEID":       gameID,
		"RESULT":       result,
		"SYMBOL":       symbol,
		"WINNING_LINE": line,
		"TIMESTAMP":    fmt.Sprintf("%d", now),
	})
	_ = e.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropGame)
}

// Game returns a snapshot of a game's state, for CLI display.
func (e *Engine) Game(gameID string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.games[gameID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

func atoiOr(s string, fallback int) int {
	n := 0
	if s == "" {
		return fallback
	}
	neg := false
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(s) {
		return fallback
	}
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
