package ack

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type countingResender struct {
	resends int32
	failed  int32
}

func (c *countingResender) Resend() { atomic.AddInt32(&c.resends, 1) }
func (c *countingResender) Fail()   { atomic.AddInt32(&c.failed, 1) }

func TestTrackAndAck(t *testing.T) {
	mgr := New(nil, nil)
	r := &countingResender{}
	mgr.Track("m1", r)
	if !mgr.Pending("m1") {
		t.Fatal("expected m1 to be pending")
	}
	if !mgr.Acked("m1") {
		t.Fatal("expected Acked to report it was pending")
	}
	if mgr.Pending("m1") {
		t.Fatal("expected m1 to no longer be pending")
	}
	if mgr.Acked("m1") {
		t.Fatal("expected second Acked to report false")
	}
}

func TestSweepResendsUntilAcked(t *testing.T) {
	defer goleak.VerifyNone(t)
	mgr := New(nil, nil)
	r := &countingResender{}
	mgr.Track("m1", r)

	// Simulate two timeouts passing without an ACK.
	mgr.sweep(time.Now().Add(Timeout + time.Millisecond))
	mgr.sweep(time.Now().Add(2*Timeout + time.Millisecond))

	if got := atomic.LoadInt32(&r.resends); got != 2 {
		t.Fatalf("expected 2 resends, got %d", got)
	}
	mgr.Acked("m1")
	mgr.sweep(time.Now().Add(3 * Timeout))
	if got := atomic.LoadInt32(&r.resends); got != 2 {
		t.Fatalf("expected no further resends after ack, got %d", got)
	}
}

func TestSweepGivesUpAfterMaxRetries(t *testing.T) {
	mgr := New(nil, nil)
	r := &countingResender{}
	mgr.Track("m1", r)

	base := time.Now()
	for i := 0; i <= MaxRetries; i++ {
		base = base.Add(Timeout + time.Millisecond)
		mgr.sweep(base)
	}

	if got := atomic.LoadInt32(&r.resends); got != MaxRetries {
		t.Fatalf("expected %d resends, got %d", MaxRetries, got)
	}
	if got := atomic.LoadInt32(&r.failed); got != 1 {
		t.Fatalf("expected Fail called once, got %d", got)
	}
	if mgr.Pending("m1") {
		t.Fatal("expected m1 to be dropped from pending after giving up")
	}
}

func TestRunStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)
	mgr := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Run(ctx)
	cancel()
	mgr.Stop()
	time.Sleep(10 * time.Millisecond)
}
