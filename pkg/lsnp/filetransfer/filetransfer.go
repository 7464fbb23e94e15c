// Package filetransfer implements the offer/accept/chunk workflow for
// sending files between peers over the unreliable-by-default transport,
// made reliable by registering every offer and chunk with the ACK
// manager.
//
// Grounded on original_source/lsnp/file_transfer.py's FileTransfers
// class: send_offer/send_chunk on the sender side, on_offer/accept/
// ignore/on_chunk plus inbox/<sender>/<filename> reassembly on the
// receiver side. Chunk bytes travel base64-encoded in the DATA field,
// exactly as the wire format requires.
package filetransfer

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/ack"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/idgen"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/logging"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/token"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// DefaultTTL is the token lifetime attached to FILE_OFFER/FILE_CHUNK,
// matching the original peer's ttl=3600 default.
const DefaultTTL = 3600

// Endpoints resolves a user id to where to reach them.
type Endpoints interface {
	EndpointOf(user wire.UserID) wire.Endpoint
}

// Storage persists a completed file. Implementations write to
// inbox/<sender>/<filename> in production and an in-memory map in
// tests.
type Storage interface {
	Save(senderName, filename string, data []byte) (path string, err error)
}

// DiskStorage writes completed files under BaseDir/<senderName>/<filename>,
// mirroring the original peer's inbox/<sender>/<filename> layout.
type DiskStorage struct {
	BaseDir string // defaults to "inbox" when empty
}

// Save implements Storage.
func (d DiskStorage) Save(senderName, filename string, data []byte) (string, error) {
	base := d.BaseDir
	if base == "" {
		base = "inbox"
	}
	if senderName == "" {
		senderName = "unknown"
	}
	dir := filepath.Join(base, senderName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// inbound tracks one file offered to us, keyed by FILEID.
type inbound struct {
	sender   wire.UserID
	filename string
	accepted bool
	chunks   map[int][]byte
	total    int
}

// Manager drives both sides of a file transfer.
type Manager struct {
	Self      wire.UserID
	Transport transport.Transport
	Peers     Endpoints
	Acks      *ack.Manager
	Tokens    *token.Registry
	Storage   Storage
	Log       logging.Logger

	mu sync.Mutex
	rx map[string]*inbound
}

// New returns a ready Manager.
func New(self wire.UserID, tr transport.Transport, peers Endpoints, acks *ack.Manager, tokens *token.Registry, storage Storage, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard{}
	}
	return &Manager{
		Self:      self,
		Transport: tr,
		Peers:     peers,
		Acks:      acks,
		Tokens:    tokens,
		Storage:   storage,
		Log:       log,
		rx:        make(map[string]*inbound),
	}
}

// resender re-sends an already-built frame verbatim on ack timeout.
type resender struct {
	transport transport.Transport
	ip        string
	port      int
	payload   string
	log       logging.Logger
	onFail    func()
}

func (r *resender) Resend() {
	_ = r.transport.Unicast(r.ip, r.port, r.payload, transport.DropFile)
}

func (r *resender) Fail() {
	r.log.Warnf("file transfer: giving up on a chunk/offer to %s:%d", r.ip, r.port)
	if r.onFail != nil {
		r.onFail()
	}
}

func (m *Manager) sendTracked(to wire.UserID, fields wire.Message, messageID string, onFail func()) {
	ep := m.Peers.EndpointOf(to)
	fields["MESSAGE_ID"] = messageID
	payload := wire.BuildMap(fields)
	_ = m.Transport.Unicast(ep.IP, ep.Port, payload, transport.DropFile)
	m.Acks.Track(messageID, &resender{
		transport: m.Transport,
		ip:        ep.IP,
		port:      ep.Port,
		payload:   payload,
		log:       m.Log,
		onFail:    onFail,
	})
}

// SendOffer announces a file to `to`.
func (m *Manager) SendOffer(to wire.UserID, fileID, filename string, filesize int64, filetype, description string, now int64) {
	tok := token.Make(m.Self, now+DefaultTTL, token.ScopeFile)
	m.sendTracked(to, wire.Message{
		"TYPE":        "FILE_OFFER",
		"FROM":        string(m.Self),
		"TO":          string(to),
		"FILENAME":    filename,
		"FILESIZE":    fmt.Sprintf("%d", filesize),
		"FILETYPE":    filetype,
		"FILEID":      fileID,
		"DESCRIPTION": description,
		"TIMESTAMP":   fmt.Sprintf("%d", now),
		"TOKEN":       tok,
	}, idgen.NewMessageID(), nil)
}

// SendChunk transmits one base64-encoded chunk of a file.
func (m *Manager) SendChunk(to wire.UserID, fileID string, index, total int, chunk []byte, chunkSize int, now int64) {
	tok := token.Make(m.Self, now+DefaultTTL, token.ScopeFile)
	b64 := base64.StdEncoding.EncodeToString(chunk)
	m.sendTracked(to, wire.Message{
		"TYPE":         "FILE_CHUNK",
		"FROM":         string(m.Self),
		"TO":           string(to),
		"FILEID":       fileID,
		"CHUNK_INDEX":  fmt.Sprintf("%d", index),
		"TOTAL_CHUNKS": fmt.Sprintf("%d", total),
		"CHUNK_SIZE":   fmt.Sprintf("%d", chunkSize),
		"DATA":         b64,
		"TOKEN":        tok,
	}, idgen.NewMessageID(), nil)
}

// OnOffer records an inbound FILE_OFFER, pending local accept/ignore.
// Returns false (and records nothing) if the token fails validation.
func (m *Manager) OnOffer(msg wire.Message, now int64) bool {
	sender := wire.UserID(msg["FROM"])
	if !m.Tokens.Validate(msg["TOKEN"], token.ScopeFile, sender, now) {
		m.Log.Warnf("file offer from %s rejected: bad token", sender)
		return false
	}
	fileID := msg["FILEID"]
	filename := msg["FILENAME"]
	if filename == "" {
		filename = "received.bin"
	}
	m.mu.Lock()
	m.rx[fileID] = &inbound{sender: sender, filename: filename, chunks: make(map[int][]byte)}
	m.mu.Unlock()
	return true
}

// Accept marks a previously offered file as accepted by the local user.
func (m *Manager) Accept(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rx[fileID]
	if !ok {
		return false
	}
	st.accepted = true
	return true
}

// Ignore discards a previously offered file.
func (m *Manager) Ignore(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rx[fileID]; !ok {
		return false
	}
	delete(m.rx, fileID)
	return true
}

// OnChunk ingests one FILE_CHUNK. When every chunk for a file has
// arrived, it is reassembled, persisted via Storage, a FILE_RECEIVED
// notice is sent back, and the in-progress state is cleared. Returns
// the saved path when the file just completed, or "" otherwise.
func (m *Manager) OnChunk(msg wire.Message, now int64) (string, error) {
	sender := wire.UserID(msg["FROM"])
	if !m.Tokens.Validate(msg["TOKEN"], token.ScopeFile, sender, now) {
		return "", nil
	}
	fileID := msg["FILEID"]

	m.mu.Lock()
	st, ok := m.rx[fileID]
	if !ok || !st.accepted {
		m.mu.Unlock()
		return "", nil
	}
	idx := atoiOr(msg["CHUNK_INDEX"], 0)
	total := atoiOr(msg["TOTAL_CHUNKS"], 1)
	chunk, err := base64.StdEncoding.DecodeString(msg["DATA"])
	if err != nil {
		m.mu.Unlock()
		return "", nil
	}
	st.chunks[idx] = chunk
	st.total = total
	complete := len(st.chunks) == total
	var out []byte
	var senderName string
	if complete {
		out = make([]byte, 0, total*len(chunk))
		for i := 0; i < total; i++ {
			out = append(out, st.chunks[i]...)
		}
		senderName = st.sender.Name()
		delete(m.rx, fileID)
	}
	filename := st.filename
	m.mu.Unlock()

	if !complete {
		return "", nil
	}

	path, err := m.Storage.Save(senderName, filepath.Base(filename), out)
	if err != nil {
		return "", err
	}

	ep := m.Peers.EndpointOf(sender)
	notice := wire.BuildMap(wire.Message{
		"TYPE":      "FILE_RECEIVED",
		"FROM":      string(m.Self),
		"TO":        string(sender),
		"FILEID":    fileID,
		"STATUS":    "COMPLETE",
		"TIMESTAMP": fmt.Sprintf("%d", now),
	})
	_ = m.Transport.Unicast(ep.IP, ep.Port, notice, transport.DropFile)
	return path, nil
}

func atoiOr(s string, fallback int) int {
	n := 0
	if s == "" {
		return fallback
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
