/**
 * ARP Protocol Parser.
 *
 * Extracts the fields DeviceRegistry needs from an ARP packet: the
 * opcode (request vs reply) and the sender's hardware/protocol
 * addresses. Requests are diverted but carry no new identity
 * information; replies are the signal that creates/refreshes a device.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/kleaSCM/sentinel/internal/models"
)

const (
	ARPRequest = 1
	ARPReply   = 2
)

// ParseARP extracts ARP fields from a packet, or nil if it has no ARP layer.
func ParseARP(packet gopacket.Packet) *models.ARP {
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return nil
	}
	arp, _ := arpLayer.(*layers.ARP)
	return &models.ARP{
		Operation: arp.Operation,
		SrcMAC:    net.HardwareAddr(arp.SourceHwAddress).String(),
		SrcIP:     net.IP(arp.SourceProtAddress).String(),
		DstIP:     net.IP(arp.DstProtAddress).String(),
	}
}
