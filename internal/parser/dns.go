/**
 * DNS Parser.
 *
 * Decodes DNS queries and responses into the fields the flow engine
 * correlates on: the queried name, the answer IPs, and the response
 * code. Record types and response codes are rendered through fixed
 * name tables so stored values stay stable across gopacket versions.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// DNSQuery is one outbound question.
type DNSQuery struct {
	Timestamp     time.Time
	TransactionID uint16
	QueryName     string
	QueryType     string
	SrcIP         string
	DstIP         string
}

// DNSResponse is one answer set. QueryName is the original queried
// name; answers for CNAME chain members still correlate back to it.
type DNSResponse struct {
	Timestamp     time.Time
	TransactionID uint16
	QueryName     string
	Answers       []DNSAnswer
	ResponseCode  string
	SrcIP         string
	DstIP         string
}

// DNSAnswer is a single resource record from a response. Exactly one
// of IP and CNAME is set, depending on the record type.
type DNSAnswer struct {
	Name  string
	Type  string
	IP    string
	TTL   uint32
	CNAME string
}

// IsDNSPacket reports whether the packet decodes a DNS layer.
func IsDNSPacket(packet gopacket.Packet) bool {
	return packet.Layer(layers.LayerTypeDNS) != nil
}

// ParseDNS decodes the packet's DNS layer into a query or a response
// (never both; the QR bit decides which return is non-nil).
func ParseDNS(packet gopacket.Packet) (*DNSQuery, *DNSResponse, error) {
	dnsLayer := packet.Layer(layers.LayerTypeDNS)
	if dnsLayer == nil {
		return nil, nil, fmt.Errorf("no DNS layer found")
	}
	dns := dnsLayer.(*layers.DNS)

	var srcIP, dstIP string
	if l3 := ParseIP(packet); l3 != nil {
		srcIP, dstIP = l3.SrcIP, l3.DstIP
	}
	ts := packet.Metadata().Timestamp

	if !dns.QR {
		query := &DNSQuery{
			Timestamp:     ts,
			TransactionID: dns.ID,
			SrcIP:         srcIP,
			DstIP:         dstIP,
		}
		if len(dns.Questions) > 0 {
			query.QueryName = string(dns.Questions[0].Name)
			query.QueryType = DNSQueryTypeName(dns.Questions[0].Type)
		}
		return query, nil, nil
	}

	response := &DNSResponse{
		Timestamp:     ts,
		TransactionID: dns.ID,
		ResponseCode:  DNSResponseCodeName(dns.ResponseCode),
		Answers:       make([]DNSAnswer, 0, len(dns.Answers)),
		SrcIP:         srcIP,
		DstIP:         dstIP,
	}
	if len(dns.Questions) > 0 {
		response.QueryName = string(dns.Questions[0].Name)
	}

	for _, rr := range dns.Answers {
		answer := DNSAnswer{
			Name: string(rr.Name),
			Type: rr.Type.String(),
			TTL:  rr.TTL,
		}
		switch rr.Type {
		case layers.DNSTypeA, layers.DNSTypeAAAA:
			answer.IP = rr.IP.String()
		case layers.DNSTypeCNAME:
			answer.CNAME = string(rr.CNAME)
		case layers.DNSTypePTR:
			answer.CNAME = string(rr.PTR)
		}
		response.Answers = append(response.Answers, answer)
	}

	return nil, response, nil
}

// dnsQueryTypeNames maps the numeric DNS RR types this system cares
// about to their canonical names, independent of gopacket's own
// String() rendering (which uses different casing/spelling in places).
var dnsQueryTypeNames = map[layers.DNSType]string{
	1:  "A",
	2:  "NS",
	5:  "CNAME",
	15: "MX",
	16: "TXT",
	28: "AAAA",
}

// DNSQueryTypeName maps a numeric query type to its canonical name, or
// the numeric value as a string if it isn't one of the recognized six.
func DNSQueryTypeName(t layers.DNSType) string {
	if name, ok := dnsQueryTypeNames[t]; ok {
		return name
	}
	return t.String()
}

var dnsResponseCodeNames = map[layers.DNSResponseCode]string{
	0: "NOERROR",
	1: "FORMERR",
	2: "SERVFAIL",
	3: "NXDOMAIN",
	4: "NOTIMP",
	5: "REFUSED",
}

// DNSResponseCodeName maps a numeric response code to its canonical
// name per the fixed table this system recognizes.
func DNSResponseCodeName(code layers.DNSResponseCode) string {
	if name, ok := dnsResponseCodeNames[code]; ok {
		return name
	}
	return code.String()
}
