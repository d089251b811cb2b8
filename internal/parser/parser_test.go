/**
 * Layer Parser Tests.
 *
 * Covers the L2-L4 extraction the flow engine keys on, with frames
 * serialized through gopacket the same way a capture source would
 * deliver them.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package parser

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func serialize(t *testing.T, stack ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, stack...); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func testEthernet() *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
}

func TestParseEthernet_ReadsAddressing(t *testing.T) {
	pkt := serialize(t, testEthernet())

	l2 := ParseEthernet(pkt)
	if l2 == nil {
		t.Fatal("expected L2 fields, got nil")
	}
	if l2.SrcMAC != "00:11:22:33:44:55" {
		t.Errorf("src mac: got %s", l2.SrcMAC)
	}
	if l2.DstMAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("dst mac: got %s", l2.DstMAC)
	}
	if l2.EtherType != "IPv4" {
		t.Errorf("ethertype: got %s", l2.EtherType)
	}
}

func TestParseIP_IPv4(t *testing.T) {
	pkt := serialize(t, testEthernet(), &layers.IPv4{
		SrcIP:    net.IP{192, 168, 1, 10},
		DstIP:    net.IP{192, 168, 1, 20},
		Protocol: layers.IPProtocolTCP,
		TTL:      64,
		Version:  4,
		IHL:      5,
	})

	l3 := ParseIP(pkt)
	if l3 == nil {
		t.Fatal("expected L3 fields, got nil")
	}
	if l3.SrcIP != "192.168.1.10" || l3.DstIP != "192.168.1.20" {
		t.Errorf("addresses: got %s -> %s", l3.SrcIP, l3.DstIP)
	}
	if l3.Version != "IPv4" {
		t.Errorf("version: got %s", l3.Version)
	}
	if l3.TTL != 64 {
		t.Errorf("ttl: got %d", l3.TTL)
	}
}

func TestParseIP_IPv6HopLimitLandsInTTL(t *testing.T) {
	eth := testEthernet()
	eth.EthernetType = layers.EthernetTypeIPv6
	pkt := serialize(t, eth, &layers.IPv6{
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
		NextHeader: layers.IPProtocolUDP,
		HopLimit:   255,
		Version:    6,
	})

	l3 := ParseIP(pkt)
	if l3 == nil {
		t.Fatal("expected L3 fields, got nil")
	}
	if l3.Version != "IPv6" {
		t.Errorf("version: got %s", l3.Version)
	}
	if l3.TTL != 255 {
		t.Errorf("hop limit: got %d", l3.TTL)
	}
}

func TestParseIP_NonIPYieldsNil(t *testing.T) {
	eth := testEthernet()
	eth.EthernetType = layers.EthernetTypeARP
	if l3 := ParseIP(serialize(t, eth)); l3 != nil {
		t.Errorf("expected nil for non-IP frame, got %+v", l3)
	}
}

func TestParseTransport_TCPFlagsAndSeq(t *testing.T) {
	ip := &layers.IPv4{SrcIP: net.IP{1, 2, 3, 4}, DstIP: net.IP{5, 6, 7, 8}, Protocol: layers.IPProtocolTCP, Version: 4, IHL: 5}
	pkt := serialize(t, testEthernet(), ip, &layers.TCP{
		SrcPort: 12345,
		DstPort: 80,
		SYN:     true,
		ACK:     true,
		Seq:     100,
	})

	l4 := ParseTransport(pkt)
	if l4 == nil {
		t.Fatal("expected L4 fields, got nil")
	}
	if l4.SrcPort != 12345 || l4.DstPort != 80 {
		t.Errorf("ports: got %d -> %d", l4.SrcPort, l4.DstPort)
	}
	if l4.Protocol != "TCP" {
		t.Errorf("protocol: got %s", l4.Protocol)
	}
	if l4.Seq != 100 {
		t.Errorf("seq: got %d", l4.Seq)
	}

	got := map[string]bool{}
	for _, f := range l4.Flags {
		got[f] = true
	}
	if !got["SYN"] || !got["ACK"] {
		t.Errorf("flags: expected SYN+ACK, got %v", l4.Flags)
	}
	if got["RST"] || got["FIN"] {
		t.Errorf("flags: unexpected teardown flag in %v", l4.Flags)
	}
}

func TestParseTransport_UDP(t *testing.T) {
	ip := &layers.IPv4{SrcIP: net.IP{1, 2, 3, 4}, DstIP: net.IP{5, 6, 7, 8}, Protocol: layers.IPProtocolUDP, Version: 4, IHL: 5}
	pkt := serialize(t, testEthernet(), ip, &layers.UDP{SrcPort: 5353, DstPort: 53})

	l4 := ParseTransport(pkt)
	if l4 == nil {
		t.Fatal("expected L4 fields, got nil")
	}
	if l4.Protocol != "UDP" {
		t.Errorf("protocol: got %s", l4.Protocol)
	}
	if l4.SrcPort != 5353 || l4.DstPort != 53 {
		t.Errorf("ports: got %d -> %d", l4.SrcPort, l4.DstPort)
	}
	if len(l4.Flags) != 0 {
		t.Errorf("flags: expected none for UDP, got %v", l4.Flags)
	}
}

func TestGuessOS_TTLBands(t *testing.T) {
	cases := []struct {
		ttl  uint8
		want string
	}{
		{255, "Solaris/Cisco"},
		{128, "Windows"},
		{64, "Linux/Apple/iOS"},
		{20, "Unknown"},
	}
	for _, tc := range cases {
		ip := &layers.IPv4{SrcIP: net.IP{1, 2, 3, 4}, DstIP: net.IP{5, 6, 7, 8}, Protocol: layers.IPProtocolTCP, TTL: tc.ttl, Version: 4, IHL: 5}
		pkt := serialize(t, testEthernet(), ip)
		if got := GuessOS(pkt); got != tc.want {
			t.Errorf("ttl %d: expected %s, got %s", tc.ttl, tc.want, got)
		}
	}
}
