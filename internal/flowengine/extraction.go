/**
 * L7 Extraction and Quality Metrics.
 *
 * Pulls application-layer metadata and rolling timing/retransmission
 * state out of each packet and folds it into the flow it belongs to.
 * Every step here is best-effort: a parse failure drops only that
 * piece of metadata, never the packet from flow accounting.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package flowengine

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/kleaSCM/sentinel/internal/config"
	"github.com/kleaSCM/sentinel/internal/enricher"
	"github.com/kleaSCM/sentinel/internal/models"
	"github.com/kleaSCM/sentinel/internal/parser"
	"go.uber.org/zap"
)

// extractL7 runs every opportunistic extractor against pkt, folding
// results into flow. Recovers from any extractor panic so a malformed
// packet never takes down the classifier stage.
func extractL7(flow *models.Flow, pkt gopacket.Packet, ident *enricher.EnhancedIdentifier, cfg *config.Config, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("l7 extraction panicked, skipping", zap.Any("recover", r))
		}
	}()

	extractDNS(flow, pkt, ident)
	extractTLS(flow, pkt, cfg.EnableALPN)
	extractHTTP(flow, pkt, ident, cfg.EnableHTTPHost)

	if ident != nil {
		// Port-table tagging always runs; the payload signature and
		// banner tiers only see the payload when DPI is enabled.
		var payload []byte
		if cfg.EnableDPI {
			payload = payloadOf(pkt)
		}
		flow.Application = ident.DetectApplicationDPI(flow, payload)
	}
	if flow.DstDomain == "" && ident != nil {
		if domain, ok := ident.GetDomainForIP(flow.Key.DstIP); ok {
			flow.DstDomain = domain
		}
	}
	if ident != nil {
		flow.JA3Application = ident.IdentifyConsumerApp(flow)
		flow.TrafficClass = ident.ClassifyTraffic(flow)
	}
}

func extractDNS(flow *models.Flow, pkt gopacket.Packet, ident *enricher.EnhancedIdentifier) {
	if !parser.IsDNSPacket(pkt) {
		return
	}
	query, response, err := parser.ParseDNS(pkt)
	if err != nil {
		return
	}
	if query != nil {
		flow.DNSQuery = query.QueryName
		flow.DNSQueryType = query.QueryType
	}
	if response != nil {
		flow.DNSResponseCode = response.ResponseCode
		if flow.DNSQuery == "" {
			flow.DNSQuery = response.QueryName
		}
		if ident != nil {
			for _, answer := range response.Answers {
				if answer.IP != "" {
					ident.TrackDNSQuery(response.QueryName, answer.IP)
				}
			}
		}
	}
}

func extractTLS(flow *models.Flow, pkt gopacket.Packet, alpnEnabled bool) {
	if !parser.TLSRawScanPorts[flow.Key.DstPort] && !parser.TLSRawScanPorts[flow.Key.SrcPort] {
		return
	}
	info, err := parser.ParseTLS(pkt)
	if err != nil || info == nil || !info.Handshake {
		return
	}
	if info.SNI != "" {
		flow.TLSSNI = info.SNI
	}
	if info.JA3 != "" {
		flow.JA3 = info.JA3
	}
	if alpnEnabled && len(info.ALPN) > 0 {
		flow.ALPN = info.ALPN
	}
}

func extractHTTP(flow *models.Flow, pkt gopacket.Packet, ident *enricher.EnhancedIdentifier, hostEnabled bool) {
	if !parser.HTTPPorts[flow.Key.DstPort] && !parser.HTTPPorts[flow.Key.SrcPort] {
		return
	}
	var req *models.HTTP
	if ident != nil {
		req = ident.ExtractHTTPHost(pkt)
	} else {
		req = parser.ParseHTTPRequest(pkt)
	}
	if req == nil {
		return
	}
	flow.HTTPMethod = req.Method
	flow.HTTPURL = req.Path
	flow.UserAgent = req.UserAgent
	if hostEnabled && req.Host != "" {
		flow.DstDomain = req.Host
	}
}

// payloadOf returns the TCP or UDP payload, or nil if neither layer is present.
func payloadOf(pkt gopacket.Packet) []byte {
	if tcp := pkt.Layer(layers.LayerTypeTCP); tcp != nil {
		return tcp.(*layers.TCP).Payload
	}
	if udp := pkt.Layer(layers.LayerTypeUDP); udp != nil {
		return udp.(*layers.UDP).Payload
	}
	return nil
}

// updateQualityMetrics folds this packet's timing and TCP state into
// the flow's rolling RTT/jitter windows and retransmission counter.
func updateQualityMetrics(flow *models.Flow, pkt gopacket.Packet, l4 *models.Layer4) {
	flow.ObserveTiming(pkt.Metadata().Timestamp)

	if l4 == nil || l4.Protocol != "TCP" {
		return
	}
	flow.ObserveTCPSeq(l4.Seq)
	flow.AddTCPFlags(l4.Flags)
}
