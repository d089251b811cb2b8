/**
 * TLS ClientHello Parser.
 *
 * Scans raw TCP payloads for a ClientHello and pulls out the
 * unencrypted metadata this system keys on: SNI (extension 0x0000),
 * ALPN offers (0x0010), and the JA3 fingerprint. Invoked only for the
 * TLS-bearing ports in TLSRawScanPorts; everything here is best-effort
 * and a malformed hello simply yields no info.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import (
	"encoding/binary"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// TLSInfo holds what a ClientHello reveals before encryption starts.
type TLSInfo struct {
	SNI         string
	ALPN        []string
	Version     string
	CipherSuite string
	Handshake   bool
	JA3         string
}

// TLSRawScanPorts lists the TCP ports this system scans for a raw TLS
// ClientHello when a structured TLS layer isn't available.
var TLSRawScanPorts = map[uint16]bool{443: true, 8443: true, 993: true, 995: true}

const (
	tlsRecordHandshake      = 22
	tlsHandshakeClientHello = 1

	extSNI  = 0x0000
	extALPN = 0x0010
)

// ParseTLS extracts ClientHello metadata from a TCP packet. Returns
// (nil, nil) for anything that is not a ClientHello — non-TCP packets,
// other record types, truncated records.
func ParseTLS(packet gopacket.Packet) (*TLSInfo, error) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return nil, nil
	}
	payload := tcpLayer.(*layers.TCP).Payload
	if len(payload) < 43 {
		return nil, nil
	}

	// Record header: type, version major/minor, length. Only a
	// handshake record under an SSL3.x/TLS version marker qualifies.
	if payload[0] != tlsRecordHandshake || payload[1] != 3 {
		return nil, nil
	}
	recordLen := int(binary.BigEndian.Uint16(payload[3:5]))
	if recordLen+5 > len(payload) {
		return nil, nil
	}
	if payload[5] != tlsHandshakeClientHello {
		return nil, nil
	}

	// Walk the ClientHello body up to the extensions block.
	c := &helloCursor{buf: payload, pos: 9, ok: true}
	c.skip(2)            // client version
	c.skip(32)           // random
	c.skip(int(c.u8()))  // session id
	c.skip(int(c.u16())) // cipher suites
	c.skip(int(c.u8()))  // compression methods
	if !c.ok {
		return nil, nil
	}

	info := &TLSInfo{
		Handshake: true,
		Version:   "TLS",
		JA3:       CalculateJA3(packet),
	}

	extBytes := c.take(int(c.u16()))
	if !c.ok {
		return info, nil
	}

	ext := &helloCursor{buf: extBytes, ok: true}
	for ext.ok && ext.pos+4 <= len(ext.buf) {
		extType := ext.u16()
		body := ext.take(int(ext.u16()))
		if !ext.ok {
			break
		}
		switch extType {
		case extSNI:
			info.SNI = parseSNI(body)
		case extALPN:
			info.ALPN = parseALPN(body)
		}
	}

	return info, nil
}

// parseSNI pulls the first host_name entry from the server_name
// extension body, with the length sanity checks the raw scan relies
// on: server_name_list length 3-256, name length 1-255, and a dot
// somewhere in the name.
func parseSNI(body []byte) string {
	if len(body) < 2 {
		return ""
	}
	listLen := int(binary.BigEndian.Uint16(body[0:2]))
	if listLen < 3 || listLen > 256 {
		return ""
	}
	end := 2 + listLen
	if end > len(body) {
		end = len(body)
	}
	off := 2
	for off+3 <= end {
		nameType := body[off]
		nameLen := int(binary.BigEndian.Uint16(body[off+1 : off+3]))
		off += 3
		if nameLen < 1 || nameLen > 255 || off+nameLen > end {
			return ""
		}
		if nameType == 0 {
			name := string(body[off : off+nameLen])
			if strings.Contains(name, ".") {
				return name
			}
			return ""
		}
		off += nameLen
	}
	return ""
}

// parseALPN pulls every protocol name from the ALPN extension body.
// Only the per-protocol 1-255 length bound applies; the list length is
// trusted up to the extension body's own end.
func parseALPN(body []byte) []string {
	if len(body) < 2 {
		return nil
	}
	listLen := int(binary.BigEndian.Uint16(body[0:2]))
	end := 2 + listLen
	if end > len(body) {
		end = len(body)
	}

	var protos []string
	for off := 2; off+1 <= end; {
		protoLen := int(body[off])
		off++
		if protoLen < 1 || protoLen > 255 || off+protoLen > end {
			break
		}
		protos = append(protos, string(body[off:off+protoLen]))
		off += protoLen
	}
	return protos
}
