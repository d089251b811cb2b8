/**
 * Application Identification.
 *
 * Tags a flow's Application field using a three-tier, best-effort
 * contract: port table first, then payload signatures, then a small
 * banner-substring table for well-known ports. JA3/domain-based
 * consumer-app naming lives separately in classifier.go as
 * supplemental TrafficClass texture — it never feeds Application.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package enricher

import (
	"bytes"
	"strings"

	"github.com/kleaSCM/sentinel/internal/models"
)

// ApplicationIdentifier tags flows with a protocol/application name
// using the port table -> payload signature -> banner table order.
type ApplicationIdentifier struct {
	portMap map[uint16]string
}

// NewApplicationIdentifier builds an identifier with the exhaustive
// port table this system recognizes.
func NewApplicationIdentifier() *ApplicationIdentifier {
	return &ApplicationIdentifier{
		portMap: map[uint16]string{
			21:   "FTP",
			22:   "SSH",
			25:   "SMTP",
			53:   "DNS",
			80:   "HTTP",
			110:  "POP3",
			143:  "IMAP",
			443:  "HTTPS",
			993:  "IMAPS",
			995:  "POP3S",
			3306: "MySQL",
			3389: "RDP",
			5432: "PostgreSQL",
			5900: "VNC",
		},
	}
}

// Identify returns the application tag for a flow, or "" if none of
// the three tiers match. payload is the most recent TCP/UDP payload
// observed for the flow (may be nil); it is only consulted for the
// payload-signature and banner tiers.
func (ai *ApplicationIdentifier) Identify(flow *models.Flow, payload []byte) string {
	if app, ok := ai.portMap[flow.Key.DstPort]; ok {
		return app
	}
	if app, ok := ai.portMap[flow.Key.SrcPort]; ok {
		return app
	}

	if app := identifyBySignature(payload); app != "" {
		return app
	}

	if app := ai.identifyByBanner(flow.Key.DstPort, payload); app != "" {
		return app
	}

	return ""
}

// identifyBySignature recognizes protocols from a distinctive leading
// byte sequence in the payload, independent of port.
func identifyBySignature(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	switch {
	case bytes.HasPrefix(payload, []byte("SSH-")):
		return "SSH"
	case bytes.HasPrefix(payload, []byte("FTP")):
		return "FTP"
	case bytes.HasPrefix(payload, []byte("SMTP")):
		return "SMTP"
	case bytes.HasPrefix(payload, []byte("PRI * HTTP/2.0")):
		return "HTTP2"
	case len(payload) >= 20 && bytes.Equal(payload[1:20], []byte("BitTorrent protocol")):
		return "BitTorrent"
	}
	return ""
}

// bannerSubstrings holds known greeting-banner fragments per
// well-known port, used only when the port and signature tiers both
// miss.
var bannerSubstrings = map[uint16][]string{
	21: {"220"},
	22: {"SSH-"},
	25: {"220"},
}

// FingerprintBanner names the service greeting a server payload
// carries for a well-known port, independent of any flow state. Used
// by the service-fingerprint surface; returns "" when the banner table
// has no match for this port.
func (ai *ApplicationIdentifier) FingerprintBanner(port uint16, payload []byte) string {
	if app := identifyBySignature(payload); app != "" {
		return app
	}
	return ai.identifyByBanner(port, payload)
}

func (ai *ApplicationIdentifier) identifyByBanner(port uint16, payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	subs, ok := bannerSubstrings[port]
	if !ok {
		return ""
	}
	text := string(payload)
	for _, s := range subs {
		if strings.Contains(text, s) {
			if app, ok := ai.portMap[port]; ok {
				return app
			}
			return strings.TrimSpace(s)
		}
	}
	return ""
}
