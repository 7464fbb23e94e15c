// Command lsnp-peer runs one LSNP peer: it joins the local broadcast
// domain and multicast discovery group, announces itself, and opens an
// interactive command shell for posting, messaging, file transfer, and
// tic-tac-toe.
//
// Grounded on original_source/lsnp/app.py's App.__init__ and
// __main__-style argument parsing, recast onto kingpin.v2 the way the
// teacher's go.mod already depends on it for flag parsing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/lsnp-net/lsnp-peer/internal/shell"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/core"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/logging"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/metrics"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/transport"
	"github.com/lsnp-net/lsnp-peer/pkg/lsnp/wire"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

const (
	defaultPort         = 50999
	defaultMulticastGrp = "224.0.0.251"
	defaultDisplayName  = "Peer"
	defaultTTL          = 3600
)

var (
	port       = kingpin.Flag("port", "UDP port for unicast and discovery traffic.").Default(strconv.Itoa(defaultPort)).Int()
	name       = kingpin.Flag("name", "Display name announced in PROFILE messages.").Default(defaultDisplayName).String()
	ttl        = kingpin.Flag("ttl", "Default token/post lifetime in seconds.").Default(strconv.Itoa(defaultTTL)).Int64()
	loss       = kingpin.Flag("loss", "Simulated loss probability (0..1) applied to file/game sends.").Default("0").Float64()
	verbose    = kingpin.Flag("verbose", "Log every send/receive, not just state changes.").Bool()
	loopback   = kingpin.Flag("loopback", "Force localhost operation and tolerate IP-mismatched headers from 127.0.0.1.").Bool()
	metricsBind = kingpin.Flag("metrics-addr", "If set, serve Prometheus metrics on this address (e.g. :9090).").String()
)

func main() {
	kingpin.Parse()

	localIP := wire.LocalIPv4()
	loopbackMode := *loopback || strings.HasPrefix(localIP, "127.")
	if loopbackMode {
		localIP = "127.0.0.1"
	}
	broadcastAddr := wire.BroadcastAddr(localIP)
	self := wire.MakeUserID(*name, localIP)

	log := logging.New(*verbose, nil)
	reg := metrics.New()

	if *metricsBind != "" {
		go func() {
			if err := http.ListenAndServe(*metricsBind, reg.Handler()); err != nil {
				log.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	tr, err := transport.New(transport.Config{
		UnicastPort:   *port,
		DiscoveryPort: *port,
		MulticastGrp:  defaultMulticastGrp,
		LossProb:      *loss,
		Log:           log,
		Metrics:       reg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start transport: %v\n", err)
		os.Exit(1)
	}
	defer tr.Close()

	status := "Exploring LSNP!"
	coord := core.New(core.Config{
		Self:          self,
		DisplayName:   *name,
		LocalIP:       localIP,
		BroadcastAddr: broadcastAddr,
		TTL:           *ttl,
		LoopbackMode:  loopbackMode,
		Transport:     tr,
		Log:           log,
		Metrics:       reg,
	}, wire.Now, func() string { return status })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go coord.Run(ctx)

	fmt.Printf("%s running as %s on %s:%d\n", *name, self, localIP, *port)
	fmt.Println("Type 'help' for commands. Ctrl+C to quit.")

	sh := &shell.Shell{Coord: coord, Log: log, In: os.Stdin, Out: os.Stdout}
	sh.Run()
	cancel()
}
