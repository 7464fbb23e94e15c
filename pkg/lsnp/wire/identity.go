package wire

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// UserID is a "name@ipv4" identifier. It is a plain string type (not a
// struct) because it travels through wire fields and maps as-is; IP
// extraction is a pure function over the string, not a parsed field.
type UserID string

// IP extracts the ipv4 address embedded in the identifier, or "" if the
// identifier doesn't contain an "@".
func (u UserID) IP() string {
	s := string(u)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// Name returns the display-name portion before "@".
func (u UserID) Name() string {
	s := string(u)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i]
	}
	return s
}

// MakeUserID builds a "name@ip" identifier.
func MakeUserID(name, ip string) UserID {
	return UserID(fmt.Sprintf("%s@%s", name, ip))
}

// Endpoint is where a peer can be reached: an ipv4 address and a UDP
// port.
type Endpoint struct {
	IP   string
	Port int
}

func (e Endpoint) Known() bool { return e.IP != "" && e.Port != 0 }

// LocalIPv4 returns this host's outbound ipv4 address, the way the
// original get_local_ip did: open a UDP "connection" to a routable
// address and read the local address the kernel picked, without ever
// sending a packet. Falls back to loopback if that fails (offline host,
// sandboxed network namespace, etc).
func LocalIPv4() string {
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// BroadcastAddr computes a naive /24 broadcast address by substituting
// the last octet of ip with 255, falling back to the global broadcast
// address if ip isn't a dotted-quad ipv4 string.
func BroadcastAddr(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return strings.Join(parts[:3], ".") + ".255"
	}
	return "255.255.255.255"
}

// Now returns the current unix epoch seconds, the unit every TIMESTAMP
// and token expiry field on the wire uses.
func Now() int64 { return time.Now().Unix() }
