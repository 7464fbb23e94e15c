// Package transport owns the peer's UDP sockets: unicast send/receive,
// broadcast send, multicast send/join, and a loss-simulation hook used
// by the file and game components to exercise the ACK/retry layer.
//
// Grounded on original_source/lsnp/transport.py and
// original_source/lsnp/utils.py (join_multicast), cast in the shape of
// the teacher's Transport interface (pkg/mcast/core/transport.go):
// Broadcast/Unicast/Listen/Close there becomes Unicast/Broadcast/
// Multicast/Loop/Close here, one interface with one concrete
// implementation, constructed by a New function that wires up sockets
// eagerly.
package transport

import (
	"context"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/logging"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DropClass names the kinds of sends that are subject to simulated
// loss. Only "file" and "game" traffic is ever dropped, per the spec.
type DropClass string

const (
	DropNone DropClass = ""
	DropFile DropClass = "file"
	DropGame DropClass = "game"
)

// Packet is what Loop's handler receives for every inbound datagram:
// the raw text payload and the observed source endpoint.
type Packet struct {
	Payload string
	SrcIP   string
	SrcPort int
}

// Handler processes one received Packet. Handlers run on the receiver
// goroutine that read the packet; they must not block on network I/O.
type Handler func(Packet)

// Transport is the UDP I/O surface every other component sends through.
type Transport interface {
	// ListenPort returns the unicast port this transport is bound to,
	// advertised in PROFILE so peers can address later unicasts.
	ListenPort() int

	// Unicast sends payload to ip:port. If class is DropFile or
	// DropGame and the configured loss probability fires, the send is
	// silently dropped (never reaches the wire) to simulate a lossy
	// link; retries driven by the ACK manager get an independent roll
	// each time.
	Unicast(ip string, port int, payload string, class DropClass) error

	// Broadcast sends payload to bcastIP:discoveryPort with the
	// socket's broadcast flag set.
	Broadcast(bcastIP string, payload string) error

	// Multicast sends payload to the discovery multicast group on the
	// discovery port.
	Multicast(payload string) error

	// Loop spawns one receiver goroutine per underlying socket (one if
	// the unicast and discovery ports coincide, two otherwise),
	// delivering every datagram to handler until ctx is cancelled.
	Loop(ctx context.Context, handler Handler)

	// Close releases the underlying sockets.
	Close() error
}

// Config configures a Transport.
type Config struct {
	UnicastPort   int
	DiscoveryPort int
	MulticastGrp  string
	LossProb      float64
	Log           logging.Logger
	Metrics       *metrics.Registry
}

type udpTransport struct {
	cfg      Config
	uniConn  *net.UDPConn
	discConn *net.UDPConn
	shared   bool // uniConn == discConn

	sendMu sync.Mutex // not locked by any method; writes are not serialized
}

// New opens the unicast socket (bound to cfg.UnicastPort) and, unless it
// coincides with cfg.DiscoveryPort, a second socket bound to
// cfg.DiscoveryPort; the discovery socket joins the multicast group.
// Broadcast sends use their own short-lived socket with SO_BROADCAST set.
// Both sockets set SO_REUSEADDR/SO_REUSEPORT so multiple peers can run
// on one host, matching the python peer's test setup.
func New(cfg Config) (Transport, error) {
	if cfg.Log == nil {
		cfg.Log = logging.Discard{}
	}
	lc := reusableListenConfig()

	uni, err := lc.ListenPacket(context.Background(), "udp4", ":"+strconv.Itoa(cfg.UnicastPort))
	if err != nil {
		return nil, errors.Wrapf(err, "bind unicast port %d", cfg.UnicastPort)
	}
	uniConn := uni.(*net.UDPConn)

	t := &udpTransport{cfg: cfg, uniConn: uniConn}

	if cfg.DiscoveryPort == cfg.UnicastPort {
		t.discConn = uniConn
		t.shared = true
	} else {
		disc, err := lc.ListenPacket(context.Background(), "udp4", ":"+strconv.Itoa(cfg.DiscoveryPort))
		if err != nil {
			uniConn.Close()
			return nil, errors.Wrapf(err, "bind discovery port %d", cfg.DiscoveryPort)
		}
		t.discConn = disc.(*net.UDPConn)
	}

	if err := joinMulticast(t.discConn, cfg.MulticastGrp); err != nil {
		cfg.Log.Warnf("multicast join failed: %v", err)
	}

	return t, nil
}

// reusableListenConfig returns a net.ListenConfig whose Control callback
// sets SO_REUSEADDR and SO_REUSEPORT, so several peer processes can bind
// the same discovery port on one host.
func reusableListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			// SO_REUSEPORT isn't available on every platform; failing to
			// set it is not fatal, multiple-peers-per-host just won't work.
			_ = setErr
			return nil
		},
	}
}

func joinMulticast(conn *net.UDPConn, group string) error {
	iface, err := defaultMulticastInterface()
	if err != nil {
		return err
	}
	gaddr := &net.UDPAddr{IP: net.ParseIP(group)}
	pc := ipv4PacketConn(conn)
	if err := pc.JoinGroup(iface, gaddr); err != nil {
		return err
	}
	return pc.SetMulticastTTL(1)
}

func (t *udpTransport) ListenPort() int { return t.cfg.UnicastPort }

func (t *udpTransport) Unicast(ip string, port int, payload string, class DropClass) error {
	if t.shouldDrop(class) {
		t.cfg.Log.Drop("simulated drop (unicast to %s:%d) for %q", ip, port, class)
		t.cfg.Metrics.IncDropped(string(class))
		return nil
	}
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
	if _, err := t.uniConn.WriteToUDP([]byte(payload), addr); err != nil {
		return errors.Wrapf(err, "unicast to %s:%d", ip, port)
	}
	t.cfg.Log.Send("%s", trimmed(payload))
	t.cfg.Metrics.IncSent()
	return nil
}

func (t *udpTransport) Broadcast(bcastIP string, payload string) error {
	addr := &net.UDPAddr{IP: net.ParseIP(bcastIP), Port: t.cfg.DiscoveryPort}
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return errors.Wrap(err, "open broadcast socket")
	}
	defer conn.Close()
	if err := enableBroadcast(conn); err != nil {
		return errors.Wrap(err, "enable broadcast")
	}
	if _, err := conn.WriteTo([]byte(payload), addr); err != nil {
		return errors.Wrapf(err, "broadcast to %s", bcastIP)
	}
	t.cfg.Log.Send("%s", trimmed(payload))
	t.cfg.Metrics.IncSent()
	return nil
}

func (t *udpTransport) Multicast(payload string) error {
	addr := &net.UDPAddr{IP: net.ParseIP(t.cfg.MulticastGrp), Port: t.cfg.DiscoveryPort}
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return errors.Wrap(err, "open multicast socket")
	}
	defer conn.Close()
	pc := ipv4PacketConn(conn.(*net.UDPConn))
	_ = pc.SetMulticastTTL(1)
	_ = pc.SetMulticastLoopback(true)
	if _, err := conn.WriteTo([]byte(payload), addr); err != nil {
		return errors.Wrap(err, "multicast send")
	}
	t.cfg.Log.Send("%s", trimmed(payload))
	t.cfg.Metrics.IncSent()
	return nil
}

func (t *udpTransport) Loop(ctx context.Context, handler Handler) {
	go t.recvLoop(ctx, t.uniConn, handler)
	if !t.shared {
		go t.recvLoop(ctx, t.discConn, handler)
	}
}

func (t *udpTransport) recvLoop(ctx context.Context, conn *net.UDPConn, handler Handler) {
	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				t.cfg.Log.Errorf("rx error: %v", err)
				continue
			}
		}
		payload := string(buf[:n])
		t.cfg.Log.Recv("%s:%d\n%s", addr.IP.String(), addr.Port, trimmed(payload))
		handler(Packet{Payload: payload, SrcIP: addr.IP.String(), SrcPort: addr.Port})
	}
}

func (t *udpTransport) Close() error {
	var err error
	if e := t.uniConn.Close(); e != nil {
		err = e
	}
	if !t.shared {
		if e := t.discConn.Close(); e != nil {
			err = e
		}
	}
	return err
}

func (t *udpTransport) shouldDrop(class DropClass) bool {
	if class != DropFile && class != DropGame {
		return false
	}
	p := t.cfg.LossProb
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rand.Float64() < p
}

func trimmed(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
