/**
 * Passive OS Fingerprinting.
 *
 * Guesses a host's OS family from the observed TTL. Initial TTLs
 * cluster by OS (64 for Linux/Apple, 128 for Windows, 255 for network
 * gear) and only decrement per hop, so the observed value lands in a
 * narrow band below its origin.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import "github.com/google/gopacket"

// GuessOS maps a packet's observed TTL band to an OS family. Best
// effort only: the bands overlap for distant hosts, and 64-origin
// stacks cannot be told apart at all.
func GuessOS(packet gopacket.Packet) string {
	l3 := ParseIP(packet)
	if l3 == nil {
		return ""
	}

	switch {
	case l3.TTL > 128:
		return "Solaris/Cisco"
	case l3.TTL > 64:
		return "Windows"
	case l3.TTL > 32:
		return "Linux/Apple/iOS"
	default:
		return "Unknown"
	}
}
