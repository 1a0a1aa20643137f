package main

import (
	"fmt"

	"github.com/fatih/color"
)

const helpString = `ICE agent demo daemon

Usage: iceagentd [OPTION]...

Network:
  -6, --enable-ipv6        Permit use of IPv6 (default: disabled)
  -s, --stun-address=URI   STUN server address (default: stun.l.google.com:19302)
  -l, --listen=ADDR        Signaling server listen address (default: :8000)

Miscellaneous:
  -h, --help               Prints this help message and exits
  -v, --version            Prints version information and exits`

func help() {
	color.New(color.FgCyan).Println("iceagentd")
	fmt.Println(helpString)
}
