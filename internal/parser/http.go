/**
 * HTTP Protocol Parser.
 *
 * Extracts method, path, and User-Agent from a cleartext HTTP request
 * line and headers. Only ever invoked by the caller for TCP traffic on
 * a recognized HTTP port (80, 8080, 8000, 8888); a parse failure here
 * is never fatal to flow accounting.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/kleaSCM/sentinel/internal/models"
)

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true, "PATCH": true,
}

// HTTPPorts lists the TCP ports recognized for cleartext HTTP.
var HTTPPorts = map[uint16]bool{80: true, 8080: true, 8000: true, 8888: true}

// ParseHTTPRequest looks for a request line + headers in the TCP
// payload. Returns nil if the payload doesn't look like an HTTP
// request (not one of GET/POST/PUT/DELETE/HEAD/OPTIONS/PATCH).
func ParseHTTPRequest(packet gopacket.Packet) *models.HTTP {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return nil
	}
	tcp, _ := tcpLayer.(*layers.TCP)
	if len(tcp.Payload) == 0 {
		return nil
	}

	reader := bufio.NewReader(bytes.NewReader(tcp.Payload))
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil
	}
	method := strings.ToUpper(parts[0])
	if !httpMethods[method] {
		return nil
	}

	info := &models.HTTP{
		Method: method,
		Path:   parts[1],
	}

	for {
		headerLine, err := reader.ReadString('\n')
		headerLine = strings.TrimRight(headerLine, "\r\n")
		if headerLine == "" {
			break
		}
		if idx := strings.IndexByte(headerLine, ':'); idx > 0 {
			name := strings.TrimSpace(headerLine[:idx])
			value := strings.TrimSpace(headerLine[idx+1:])
			switch strings.ToLower(name) {
			case "user-agent":
				info.UserAgent = value
			case "host":
				info.Host = value
			}
		}
		if err != nil {
			break
		}
	}

	return info
}
