/**
 * Ethernet Parser.
 *
 * Lifts the link-layer fields the device registry keys on (source MAC
 * above all) out of a captured frame.
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

// ParseEthernet returns the frame's L2 addressing, or nil for captures
// whose link layer is not Ethernet (raw IP links, loopback on some
// platforms).
func ParseEthernet(packet gopacket.Packet) *models.Layer2 {
	eth, ok := packet.LinkLayer().(*layers.Ethernet)
	if !ok {
		return nil
	}
	return &models.Layer2{
		SrcMAC:    eth.SrcMAC.String(),
		DstMAC:    eth.DstMAC.String(),
		EtherType: eth.EthernetType.String(),
	}
}
