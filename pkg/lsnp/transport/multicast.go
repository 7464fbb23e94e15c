package transport

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// ipv4PacketConn wraps conn for multicast group membership / TTL / loop
// control, which the stdlib net package does not expose directly.
func ipv4PacketConn(conn *net.UDPConn) *ipv4.PacketConn {
	return ipv4.NewPacketConn(conn)
}

// defaultMulticastInterface picks the first network interface capable of
// multicast, or nil to let the kernel choose (loopback-only hosts, CI
// sandboxes) — mirroring the original peer's best-effort
// join_multicast, which never failed hard on a missing interface.
func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		return &iface, nil
	}
	return nil, nil
}

// syscallConner is implemented by net.PacketConn values that expose
// their underlying file descriptor (net.UDPConn always does).
type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

// enableBroadcast sets SO_BROADCAST on conn's underlying file
// descriptor so sends to a subnet broadcast address are permitted.
func enableBroadcast(conn net.PacketConn) error {
	sc, ok := conn.(syscallConner)
	if !ok {
		return errors.New("connection does not support raw control")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
