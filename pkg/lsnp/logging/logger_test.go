package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestVerboseLoggerSuppressesWireNoiseWhenQuiet(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	l.Send("hello %s", "world")
	l.Recv("hi")
	l.Drop("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no wire-noise output while not verbose, got %q", buf.String())
	}
}

func TestVerboseLoggerEmitsWireNoiseWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := New(true, &buf)
	l.Send("hello %s", "world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected SEND line to contain the formatted message, got %q", buf.String())
	}
}

func TestVerboseLoggerAlwaysEmitsOperatorLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	l.Warnf("careful: %s", "something")
	if !strings.Contains(buf.String(), "careful: something") {
		t.Fatalf("expected Warnf to print even while not verbose, got %q", buf.String())
	}
}

func TestSetVerboseTogglesWireNoise(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	l.Send("first")
	l.SetVerbose(true)
	l.Send("second")
	out := buf.String()
	if strings.Contains(out, "first") {
		t.Fatal("expected the pre-toggle send to be suppressed")
	}
	if !strings.Contains(out, "second") {
		t.Fatal("expected the post-toggle send to appear")
	}
}

func TestDiscardLoggerDropsEverything(t *testing.T) {
	var l Logger = Discard{}
	l.Send("x")
	l.Warnf("y")
	l.SetVerbose(true)
}
