/**
 * Enhanced Identification.
 *
 * Combines DNS correlation, reverse lookups, and opportunistic
 * application-layer extraction into one component the FlowEngine's L7
 * extraction stage calls into. Owns the forward (domain->IPs) and
 * reverse (IP->domain) caches, both TTL- and capacity-bounded.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package enricher

import (
	"context"
	"time"

	"github.com/google/gopacket"
	"github.com/kleaSCM/sentinel/internal/cache"
	"github.com/kleaSCM/sentinel/internal/models"
	"github.com/kleaSCM/sentinel/internal/parser"
)

const (
	dnsCacheCapacity = 1000
	dnsCacheTTL      = time.Hour
)

// EnhancedIdentifier is the C5 identity layer: DNS answer correlation,
// reverse DNS fallback, and HTTP/TLS/port-based application tagging.
type EnhancedIdentifier struct {
	domainToIPs *cache.TTLCache[string, []string]
	ipToDomain  *cache.TTLCache[string, string]

	resolver   *DNSResolver
	appID      *ApplicationIdentifier
	classifier *TrafficClassifier
}

func NewEnhancedIdentifier(resolver *DNSResolver) *EnhancedIdentifier {
	return &EnhancedIdentifier{
		domainToIPs: cache.NewTTLCache[string, []string](dnsCacheCapacity, dnsCacheTTL),
		ipToDomain:  cache.NewTTLCache[string, string](dnsCacheCapacity, dnsCacheTTL),
		resolver:    resolver,
		appID:       NewApplicationIdentifier(),
		classifier:  NewTrafficClassifier(NewJA3Database()),
	}
}

// TrackDNSQuery associates a resolved IP with the domain that was
// queried for it, in both directions. CNAME chains are expected to
// have already been collapsed to the original queried name by the
// caller.
func (e *EnhancedIdentifier) TrackDNSQuery(domain, ip string) {
	if domain == "" || ip == "" {
		return
	}
	ips, _ := e.domainToIPs.Get(domain)
	for _, existing := range ips {
		if existing == ip {
			e.ipToDomain.Set(ip, domain)
			return
		}
	}
	e.domainToIPs.Set(domain, append(ips, ip))
	e.ipToDomain.Set(ip, domain)
}

// GetDomainForIP returns the most recently observed domain name for
// ip, if any DNS answer has pointed to it.
func (e *EnhancedIdentifier) GetDomainForIP(ip string) (string, bool) {
	return e.ipToDomain.Get(ip)
}

// ReverseDNS falls back to an active PTR lookup when no DNS answer has
// already told us the domain for ip.
func (e *EnhancedIdentifier) ReverseDNS(ctx context.Context, ip string) string {
	if domain, ok := e.GetDomainForIP(ip); ok {
		return domain
	}
	if e.resolver == nil {
		return ""
	}
	return e.resolver.Resolve(ctx, ip)
}

// ExtractHTTPHost returns the Host header from a cleartext HTTP
// request on a recognized port, or "" if none is found.
func (e *EnhancedIdentifier) ExtractHTTPHost(packet gopacket.Packet) *models.HTTP {
	return parser.ParseHTTPRequest(packet)
}

// ExtractTLSALPN parses the TLS ClientHello's ALPN extension, if present.
func (e *EnhancedIdentifier) ExtractTLSALPN(packet gopacket.Packet) []string {
	info, err := parser.ParseTLS(packet)
	if err != nil || info == nil {
		return nil
	}
	return info.ALPN
}

// DetectApplicationDPI tags a flow's application using the port table
// -> payload signature -> banner table order.
func (e *EnhancedIdentifier) DetectApplicationDPI(flow *models.Flow, payload []byte) string {
	return e.appID.Identify(flow, payload)
}

// FingerprintService names the service listening at (ip, port) from a
// single observed packet: the payload's greeting banner first, then
// the well-known port table, then any domain a DNS answer has already
// associated with ip.
func (e *EnhancedIdentifier) FingerprintService(packet gopacket.Packet, ip string, port uint16) string {
	payload := transportPayload(packet)
	if svc := e.appID.FingerprintBanner(port, payload); svc != "" {
		return svc
	}
	if svc, ok := e.appID.portMap[port]; ok {
		return svc
	}
	if domain, ok := e.GetDomainForIP(ip); ok {
		return domain
	}
	return ""
}

func transportPayload(packet gopacket.Packet) []byte {
	if packet == nil {
		return nil
	}
	if t := packet.TransportLayer(); t != nil {
		return t.LayerPayload()
	}
	return nil
}

// ClassifyTraffic names the high-level traffic class (Streaming,
// Social Media, Gaming, ...) for a flow whose JA3/domain/application/
// port fields have already been populated. Supplemental texture on
// top of Application; never consulted by scoring.
func (e *EnhancedIdentifier) ClassifyTraffic(flow *models.Flow) string {
	return e.classifier.Classify(flow)
}

// IdentifyConsumerApp names the recognized consumer service/client
// (e.g. "Netflix", "Chrome 120") behind a flow's JA3 fingerprint or
// destination domain, independent of its TrafficClass category.
func (e *EnhancedIdentifier) IdentifyConsumerApp(flow *models.Flow) string {
	return e.classifier.ConsumerApp(flow)
}
