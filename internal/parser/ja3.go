/**
 * JA3 TLS Client Fingerprinting.
 *
 * Derives the JA3 hash (MD5 over version, ciphers, extensions, curves,
 * and point formats, GREASE filtered out) from a TLS ClientHello so a
 * client can be recognized independent of where it connects.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// JA3Data holds the ClientHello fields that feed the JA3 string, in
// the order the specification concatenates them.
type JA3Data struct {
	SSLVersion           uint16
	CipherSuites         []uint16
	Extensions           []uint16
	EllipticCurves       []uint16
	EllipticCurveFormats []uint8
}

// CalculateJA3 returns the JA3 hash for a TLS ClientHello packet, or
// "" when the packet is not one.
func CalculateJA3(packet gopacket.Packet) string {
	data := extractJA3Data(packet)
	if data == nil {
		return ""
	}
	ja3 := data.ja3String()
	if ja3 == "" {
		return ""
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(ja3)))
}

// helloCursor walks the ClientHello byte layout with bounds checking on
// every read; ok flips false permanently once any read runs past the end.
type helloCursor struct {
	buf []byte
	pos int
	ok  bool
}

func (c *helloCursor) u8() uint8 {
	if !c.ok || c.pos+1 > len(c.buf) {
		c.ok = false
		return 0
	}
	v := c.buf[c.pos]
	c.pos++
	return v
}

func (c *helloCursor) u16() uint16 {
	if !c.ok || c.pos+2 > len(c.buf) {
		c.ok = false
		return 0
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v
}

func (c *helloCursor) skip(n int) {
	if !c.ok || c.pos+n > len(c.buf) {
		c.ok = false
		return
	}
	c.pos += n
}

func (c *helloCursor) take(n int) []byte {
	if !c.ok || n < 0 || c.pos+n > len(c.buf) {
		c.ok = false
		return nil
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out
}

func extractJA3Data(packet gopacket.Packet) *JA3Data {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return nil
	}
	payload := tcpLayer.(*layers.TCP).Payload
	if len(payload) < 43 {
		return nil
	}
	// Record type 22 (handshake) wrapping handshake type 1 (ClientHello).
	if payload[0] != 22 || payload[5] != 1 {
		return nil
	}

	c := &helloCursor{buf: payload, pos: 9, ok: true} // past record + handshake headers
	data := &JA3Data{}

	data.SSLVersion = c.u16()
	c.skip(32)            // random
	c.skip(int(c.u8()))   // session id

	cipherBytes := c.take(int(c.u16()))
	for i := 0; i+2 <= len(cipherBytes); i += 2 {
		suite := binary.BigEndian.Uint16(cipherBytes[i : i+2])
		if !isGREASE(suite) {
			data.CipherSuites = append(data.CipherSuites, suite)
		}
	}

	c.skip(int(c.u8())) // compression methods
	if !c.ok {
		return nil
	}

	extBytes := c.take(int(c.u16()))
	if !c.ok {
		// A ClientHello with no extensions block still fingerprints.
		return data
	}

	ext := &helloCursor{buf: extBytes, ok: true}
	for ext.ok && ext.pos+4 <= len(ext.buf) {
		extType := ext.u16()
		body := ext.take(int(ext.u16()))
		if !ext.ok {
			break
		}
		if isGREASE(extType) {
			continue
		}
		data.Extensions = append(data.Extensions, extType)
		switch extType {
		case 10: // supported_groups
			data.EllipticCurves = parseEllipticCurves(body)
		case 11: // ec_point_formats
			data.EllipticCurveFormats = parseECPointFormats(body)
		}
	}

	return data
}

// ja3String renders the five fields in specification order:
// version,ciphers,extensions,curves,formats with "-" within each list.
func (d *JA3Data) ja3String() string {
	fields := []string{
		strconv.Itoa(int(d.SSLVersion)),
		joinU16(d.CipherSuites),
		joinU16(d.Extensions),
		joinU16(d.EllipticCurves),
		joinU8(d.EllipticCurveFormats),
	}
	return strings.Join(fields, ",")
}

func joinU16(values []uint16) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, "-")
}

func joinU8(values []uint8) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, "-")
}

func parseEllipticCurves(body []byte) []uint16 {
	if len(body) < 2 {
		return nil
	}
	listLen := int(binary.BigEndian.Uint16(body[0:2]))
	var curves []uint16
	for off := 2; off+2 <= len(body) && off < 2+listLen; off += 2 {
		curve := binary.BigEndian.Uint16(body[off : off+2])
		if !isGREASE(curve) {
			curves = append(curves, curve)
		}
	}
	return curves
}

func parseECPointFormats(body []byte) []uint8 {
	if len(body) < 1 {
		return nil
	}
	listLen := int(body[0])
	var formats []uint8
	for off := 1; off < len(body) && off < 1+listLen; off++ {
		formats = append(formats, body[off])
	}
	return formats
}

// isGREASE reports whether a value matches the reserved 0x?a?a pattern
// (RFC 8701) that clients inject to keep middleboxes honest; those
// never contribute to the fingerprint.
func isGREASE(value uint16) bool {
	return value&0x0f0f == 0x0a0a && (value>>8)&0xf0 == value&0xf0
}
