/**
 * IP Parser.
 *
 * Extracts the network-layer addressing and TTL that flow keying and
 * OS fingerprinting depend on, for both address families.
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

// ParseIP returns the packet's L3 fields, or nil for non-IP traffic.
// Both families funnel into one shape: IPv6's hop limit is reported
// through the TTL field and the next-header value through Protocol, so
// callers never branch on address family.
func ParseIP(packet gopacket.Packet) *models.Layer3 {
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		return &models.Layer3{
			SrcIP:    ip.SrcIP.String(),
			DstIP:    ip.DstIP.String(),
			Version:  "IPv4",
			Protocol: ip.Protocol.String(),
			TTL:      ip.TTL,
		}
	case *layers.IPv6:
		return &models.Layer3{
			SrcIP:    ip.SrcIP.String(),
			DstIP:    ip.DstIP.String(),
			Version:  "IPv6",
			Protocol: ip.NextHeader.String(),
			TTL:      ip.HopLimit,
		}
	default:
		return nil
	}
}
