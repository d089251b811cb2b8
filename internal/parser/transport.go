/**
 * Transport Parser.
 *
 * Extracts the L4 fields the flow table keys on: ports, protocol, and
 * for TCP the flag set and sequence number that drive connection-state
 * and retransmission tracking.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/kleaSCM/sentinel/internal/models"
)

// tcpFlagNames pairs each flag bit accessor with its canonical name, in
// the order they are reported on Layer4.Flags.
var tcpFlagNames = []struct {
	name string
	set  func(*layers.TCP) bool
}{
	{"SYN", func(t *layers.TCP) bool { return t.SYN }},
	{"ACK", func(t *layers.TCP) bool { return t.ACK }},
	{"FIN", func(t *layers.TCP) bool { return t.FIN }},
	{"RST", func(t *layers.TCP) bool { return t.RST }},
	{"PSH", func(t *layers.TCP) bool { return t.PSH }},
	{"URG", func(t *layers.TCP) bool { return t.URG }},
	{"ECE", func(t *layers.TCP) bool { return t.ECE }},
	{"CWR", func(t *layers.TCP) bool { return t.CWR }},
	{"NS", func(t *layers.TCP) bool { return t.NS }},
}

// ParseTransport returns the packet's L4 fields, or nil when it carries
// neither TCP nor UDP (the caller decides how to key ICMP and friends).
func ParseTransport(packet gopacket.Packet) *models.Layer4 {
	if layer := packet.Layer(layers.LayerTypeTCP); layer != nil {
		tcp := layer.(*layers.TCP)
		flags := make([]string, 0, 4)
		for _, f := range tcpFlagNames {
			if f.set(tcp) {
				flags = append(flags, f.name)
			}
		}
		return &models.Layer4{
			SrcPort:  int(tcp.SrcPort),
			DstPort:  int(tcp.DstPort),
			Protocol: "TCP",
			Flags:    flags,
			Seq:      tcp.Seq,
			Ack:      tcp.Ack,
		}
	}

	if layer := packet.Layer(layers.LayerTypeUDP); layer != nil {
		udp := layer.(*layers.UDP)
		return &models.Layer4{
			SrcPort:  int(udp.SrcPort),
			DstPort:  int(udp.DstPort),
			Protocol: "UDP",
			Flags:    []string{},
		}
	}

	return nil
}
