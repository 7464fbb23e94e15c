package wire

import (
	"strings"
	"testing"
)

func TestParseNormalizesAliasedKeys(t *testing.T) {
	raw := "TYPE: PROFILE\nUSERID: alice@10.0.0.1\nMessage Id: abc\n\n"
	msg := Parse(raw)
	if msg["USER_ID"] != "alice@10.0.0.1" {
		t.Fatalf("expected USERID to normalize to USER_ID, got %v", msg)
	}
	if msg["MESSAGE_ID"] != "abc" {
		t.Fatalf("expected 'Message Id' to normalize to MESSAGE_ID, got %v", msg)
	}
}

func TestParseDropsLinesWithoutColon(t *testing.T) {
	msg := Parse("TYPE: PING\nnotaheaderline\nUSER_ID: a@1.1.1.1\n\n")
	if len(msg) != 2 {
		t.Fatalf("expected the colon-less line to be dropped, got %v", msg)
	}
}

func TestParseNeverFails(t *testing.T) {
	for _, raw := range []string{"", "garbage", "\n\n\n", "TYPE\nFOO\n", ":\n"} {
		msg := Parse(raw)
		if msg == nil {
			t.Fatalf("Parse(%q) returned nil, want empty map", raw)
		}
	}
}

func TestParseAcceptsCRLF(t *testing.T) {
	raw := "TYPE: PING\r\nUSER_ID: bob@1.2.3.4\r\n\r\n"
	msg := Parse(raw)
	if msg["TYPE"] != "PING" || msg["USER_ID"] != "bob@1.2.3.4" {
		t.Fatalf("unexpected parse of CRLF frame: %v", msg)
	}
}

func TestBuildPutsTypeFirst(t *testing.T) {
	out := Build([]Field{{"FROM", "a"}, {"TYPE", "DM"}, {"TO", "b"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "TYPE: DM" {
		t.Fatalf("expected TYPE first, got %q", lines[0])
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected blank-line terminator, got %q", out)
	}
}

func TestBuilderRoundTrip(t *testing.T) {
	raw := NewBuilder("DM").Set("FROM", "a@1.1.1.1").Set("TO", "b@2.2.2.2").Set("CONTENT", "hi").String()
	msg := Parse(raw)
	if msg["TYPE"] != "DM" || msg["FROM"] != "a@1.1.1.1" || msg["CONTENT"] != "hi" {
		t.Fatalf("round trip mismatch: %v", msg)
	}
}

func TestBuildMapEmitsTypeFirst(t *testing.T) {
	out := BuildMap(Message{"TYPE": "ACK", "MESSAGE_ID": "x", "STATUS": "RECEIVED"})
	if !strings.HasPrefix(out, "TYPE: ACK\n") {
		t.Fatalf("expected TYPE first, got %q", out)
	}
}
