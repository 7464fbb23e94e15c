// Package idgen mints the opaque identifiers carried in MESSAGE_ID,
// FILEID, and GAMEID fields. Grounded on github.com/rs/xid, already
// present in the sockstats/conniver siblings' dependency surface for
// the same purpose: a sortable, globally-unique id without a
// coordination service. xid's own String() uses its base32 alphabet,
// not hex, so every id is minted from xid's raw bytes and hex-encoded
// to satisfy the wire format's hex requirement.
package idgen

import (
	"encoding/hex"

	"github.com/rs/xid"
)

func newHexID() string {
	return hex.EncodeToString(xid.New().Bytes())
}

// NewMessageID returns a fresh MESSAGE_ID value.
func NewMessageID() string { return newHexID() }

// NewFileID returns a fresh FILEID value.
func NewFileID() string { return newHexID() }

// NewGameID returns a fresh GAMEID value.
func NewGameID() string { return newHexID() }
