// Command iceagentd is a demo ICE agent: it listens for a signaling peer
// over a local websocket, gathers candidates, trickles them to the peer,
// and reports connectivity status (pflag for flags, fatih/color for
// console output) without a surrounding media stack.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/harvest"
	"github.com/lanikai/iceagent/pkg/ice"
	"github.com/lanikai/iceagent/pkg/netaccess"
	"github.com/lanikai/iceagent/pkg/transaction"
	"github.com/lanikai/iceagent/signaling"
)

var (
	flagListen      string
	flagSTUNAddress string
	flagEnableIPv6  bool
	flagHelp        bool
	flagVersion     bool
)

func init() {
	flag.StringVarP(&flagListen, "listen", "l", ":8000", "Signaling server address")
	flag.StringVarP(&flagSTUNAddress, "stun-address", "s", "stun.l.google.com:19302", "STUN server address")
	flag.BoolVarP(&flagEnableIPv6, "enable-ipv6", "6", false, "Permit use of IPv6")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		fmt.Println("iceagentd (development build)")
		os.Exit(0)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	server := signaling.NewServer(flagListen, handleSession)
	info := color.New(color.FgGreen)
	info.Printf("Listening for a signaling peer on %s (ws:///ws)\n", flagListen)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func handleSession(s *signaling.Session) {
	ctx, cancel := context.WithCancel(s.Context)
	defer cancel()

	pc, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		log.Println(err)
		return
	}
	manager := netaccess.NewManager(pc)

	sched := transaction.NewScheduler()
	layer := transaction.NewLayer(ctx, sched, func(dest addr.TransportAddress, raw []byte) error {
		return manager.Send(raw, dest)
	})

	cfg := ice.DefaultConfig()
	cfg.IsControlling = true
	cfg.TieBreaker = rand.Uint64()
	cfg.LocalUfrag = randomString(4)
	cfg.LocalPwd = randomString(22)
	cfg.STUNServers = []addr.TransportAddress{addr.New(flagSTUNAddress, 0, addr.UDP)}
	cfg.EnableIPv6 = flagEnableIPv6

	agent := ice.NewAgent(ctx, cfg, "0", []int{1}, manager, layer, sched)
	go agent.Run()
	go manager.Start()
	defer manager.Close()

	s.SendCredentials(cfg.LocalUfrag, cfg.LocalPwd)

	go func() {
		for ev := range agent.Events {
			reportEvent(ev)
		}
	}()

	go func() {
		for c := range s.RemoteCandidates {
			agent.AddRemoteCandidate(c)
		}
	}()

	base := addr.FromNetAddr(pc.LocalAddr())
	hostHarvester := &harvest.HostHarvester{
		EnableIPv6: cfg.EnableIPv6,
		Bind: func(ip net.IP) (addr.TransportAddress, error) {
			return addr.New(ip.String(), base.Port, addr.UDP), nil
		},
	}
	reflexive := &harvest.ServerReflexiveHarvester{
		Server: cfg.STUNServers[0],
		Layer:  layer,
		Bases:  []addr.TransportAddress{base},
	}

	agent.Gather(1, []harvest.Harvester{hostHarvester, reflexive})
	for _, c := range agent.LocalCandidates() {
		s.SendLocalCandidate(c)
	}
	s.SendEndOfCandidates()

	<-ctx.Done()
}

func reportEvent(ev ice.Event) {
	switch ev.Kind {
	case ice.EventConnected:
		color.New(color.FgGreen).Printf("connected: %s\n", ev.Pair)
	case ice.EventDisconnected:
		color.New(color.FgYellow).Println("consent freshness failed: disconnected")
	case ice.EventFailed:
		color.New(color.FgRed).Println("connectivity establishment failed")
	}
}

func randomString(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
