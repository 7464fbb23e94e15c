// Package wire implements the LSNP line-oriented text frame: parsing,
// serialization and header-key normalization.
//
// Grounded on original_source/lsnp/messages.py and original_source/lsnp/utils.py
// normalize_key, in the teacher's style of a small, dependency-free codec
// (compare pkg/mcast/types.Message, which is the generic envelope the rest
// of go-mcast's protocol layer is built on).
package wire

import (
	"strings"
)

// Message is the generic field map every wire frame parses into. Keys are
// normalized uppercase header names; TYPE is always present after a
// successful Parse of a well-formed frame (absent if the frame carried no
// TYPE line at all, which downstream consumers must tolerate).
type Message map[string]string

// Type returns the TYPE field, or "" if absent.
func (m Message) Type() string { return m["TYPE"] }

// aliases collapses the handful of header spellings the original peer's
// normalize_key tolerated. Unknown keys pass through unchanged (and
// unknown fields are preserved on the map, never rejected).
var aliases = map[string]string{
	"MESSAGEID":     "MESSAGE_ID",
	"MESSAGE_ID":    "MESSAGE_ID",
	"GAMEID":        "GAMEID",
	"GAMED":         "GAMEID",
	"USERID":        "USER_ID",
	"USER_ID":       "USER_ID",
	"GROUPID":       "GROUP_ID",
	"GROUP_ID":      "GROUP_ID",
	"AVATARDATA":    "AVATAR_DATA",
	"AVATAR_DATA":   "AVATAR_DATA",
	"AVATARENCODING": "AVATAR_ENCODING",
	"AVATAR_ENCODING": "AVATAR_ENCODING",
	"AVATARTYPE":    "AVATAR_TYPE",
	"AVATAR_TYPE":   "AVATAR_TYPE",
}

// normalizeKey upper-cases, strips internal spaces and applies the alias
// table. This must be applied to every parsed header key before it is
// used, since the wire format does not otherwise constrain spacing.
func normalizeKey(k string) string {
	k = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(k), " ", ""))
	if canon, ok := aliases[k]; ok {
		return canon
	}
	return k
}

// Parse decodes a raw frame into a Message. It never fails: lines without
// a colon are silently dropped, and a frame with no usable lines yields an
// empty (non-nil) Message. Both "\n" and "\r\n" line endings are accepted.
func Parse(raw string) Message {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	msg := Message{}
	for _, line := range strings.Split(raw, "\n") {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := normalizeKey(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		msg[key] = val
	}
	return msg
}

// Build serializes fields into a wire frame: TYPE first (if present),
// then the remaining fields in the order given, then a blank-line
// terminator. fields is a slice of (key, value) pairs rather than a map
// so callers control field order deterministically (map iteration order
// is not stable, and the spec only requires TYPE to come first, but a
// stable order makes frames diffable in logs and tests).
type Field struct {
	Key   string
	Value string
}

// Build serializes an ordered field list into "KEY: VALUE\n" lines
// terminated by a blank line, emitting TYPE first regardless of its
// position in fields.
func Build(fields []Field) string {
	var b strings.Builder
	for _, f := range fields {
		if f.Key == "TYPE" {
			b.WriteString("TYPE: ")
			b.WriteString(f.Value)
			b.WriteByte('\n')
			break
		}
	}
	for _, f := range fields {
		if f.Key == "TYPE" {
			continue
		}
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// BuildMap is a convenience for the common case of building from a
// Message/map, preserving TYPE-first ordering but with an otherwise
// unspecified (map) order for the remaining fields — acceptable for ACKs
// and other small fixed-shape frames where field order carries no
// meaning to a human reader.
func BuildMap(fields Message) string {
	ordered := make([]Field, 0, len(fields))
	if v, ok := fields["TYPE"]; ok {
		ordered = append(ordered, Field{"TYPE", v})
	}
	for k, v := range fields {
		if k == "TYPE" {
			continue
		}
		ordered = append(ordered, Field{k, v})
	}
	return Build(ordered)
}

// Builder accumulates ordered fields for Build, the way the original
// peer's dict literals did implicitly via insertion order.
type Builder struct {
	fields []Field
}

// NewBuilder starts a frame of the given TYPE.
func NewBuilder(msgType string) *Builder {
	return &Builder{fields: []Field{{"TYPE", msgType}}}
}

// Set appends a field. Last write for a given key wins at Build time only
// in the sense that both appear; callers should not Set the same key
// twice.
func (b *Builder) Set(key, value string) *Builder {
	b.fields = append(b.fields, Field{key, value})
	return b
}

// String renders the accumulated fields into a wire frame.
func (b *Builder) String() string {
	return Build(b.fields)
}
