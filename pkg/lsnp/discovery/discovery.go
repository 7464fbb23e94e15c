// Package discovery runs the periodic PING+PROFILE announcement that
// lets peers find each other without any central directory.
//
// Grounded on original_source/lsnp/discovery.py's Discovery class: a
// background loop broadcasting (and, when enabled, multicasting) a
// PING followed by a PROFILE every DISCOVERY_INTERVAL_SEC, started
// eagerly from its constructor. Adapted to a context-cancellable
// goroutine in the teacher's style (pkg/mcast/core/peer.go's poll loop)
// rather than a bare daemon thread with a running flag.
package discovery

import (
	"context"
	"strconv"
	"time"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
)

// Interval is how often the announcement fires, per the wire protocol.
const Interval = 300 * time.Second

// Announcer builds and sends the PING/PROFILE pair. Profile is called
// fresh on every tick so a status or display-name change picked up at
// runtime is reflected in the next announcement.
type Announcer struct {
	UserID          wire.UserID
	Profile         func() (displayName, status string)
	Transport       transport.Transport
	BroadcastAddr   string
	IncludeMulticast bool
}

// Run starts the announcement loop on its own goroutine, sending
// immediately and then every Interval, until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context) {
	go func() {
		a.Announce()
		ticker := time.NewTicker(Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Announce()
			}
		}
	}()
}

// Announce sends one PING+PROFILE pair over broadcast and, if enabled,
// multicast. Errors are swallowed here exactly as they are in the
// sweep-driven resends elsewhere: a single lost announcement is
// recovered by the next tick.
func (a *Announcer) Announce() {
	ping := wire.BuildMap(wire.Message{
		"TYPE":    "PING",
		"USER_ID": string(a.UserID),
	})
	displayName, status := a.Profile()
	profile := a.buildProfile(displayName, status)

	_ = a.Transport.Broadcast(a.BroadcastAddr, ping)
	_ = a.Transport.Broadcast(a.BroadcastAddr, profile)
	if a.IncludeMulticast {
		_ = a.Transport.Multicast(ping)
		_ = a.Transport.Multicast(profile)
	}
}

// ReplyToPing answers an inbound PING with our own PROFILE, broadcast
// and (if enabled) multicast, the same way send_ping_and_profile's
// PROFILE half does — a PING never gets a unicast reply because the
// sender doesn't yet know our listening port.
func (a *Announcer) ReplyToPing() {
	displayName, status := a.Profile()
	profile := a.buildProfile(displayName, status)
	_ = a.Transport.Broadcast(a.BroadcastAddr, profile)
	if a.IncludeMulticast {
		_ = a.Transport.Multicast(profile)
	}
}

func (a *Announcer) buildProfile(displayName, status string) string {
	return wire.BuildMap(wire.Message{
		"TYPE":         "PROFILE",
		"USER_ID":      string(a.UserID),
		"DISPLAY_NAME": displayName,
		"STATUS":       status,
		"PORT":         strconv.Itoa(a.Transport.ListenPort()),
	})
}
