/**
 * Flow Model.
 *
 * Defines the data structure for a network flow, representing a
 * bidirectional conversation between two endpoints.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package models

import (
	"fmt"
	"math"
	"time"
)

// Uniquely identifies a network flow by its canonical 5-tuple.
// The reverse tuple (src/dst swapped) is treated as the same flow.
type FlowKey struct {
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
	Protocol string
}

// Returns a human-readable string representation of the flow key.
func (k FlowKey) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d [%s]", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort, k.Protocol)
}

type FlowStatus string

const (
	FlowActive FlowStatus = "active"
	FlowClosed FlowStatus = "closed"
)

type ThreatLevel string

const (
	ThreatSafe     ThreatLevel = "safe"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

type ConnectionState string

const (
	ConnSynSent     ConnectionState = "SYN_SENT"
	ConnSynReceived ConnectionState = "SYN_RECEIVED"
	ConnEstablished ConnectionState = "ESTABLISHED"
	ConnFinWait     ConnectionState = "FIN_WAIT"
	ConnReset       ConnectionState = "RESET"
)

// Flow represents a bidirectional network conversation keyed by the
// canonical 5-tuple. It accumulates state while active and is written
// exactly once, at finalization.
type Flow struct {
	ID       string // opaque id, assigned at creation
	DeviceID string
	Key      FlowKey

	FirstSeen time.Time
	LastSeen  time.Time

	BytesIn    uint64
	BytesOut   uint64
	PacketsIn  uint64
	PacketsOut uint64

	// State tracks active/closed lifecycle, independent of ThreatLevel.
	State FlowStatus

	// L3/L4 detail
	TTL             uint8
	TCPFlags        map[string]bool // union of flags observed across the lifetime
	ConnectionState ConnectionState

	// Quality metrics (optional: populated once enough samples exist)
	RTTMillis       float64
	JitterMillis    float64
	Retransmissions uint64

	retransSeen map[uint32]int // tcp_seq -> sighting count, capped implicitly by flow lifetime
	rttWindow   []time.Time    // last <= 10 packet timestamps
	jitterWindow []time.Time   // last <= 20 packet timestamps

	// Protocol mirrors Key.Protocol for call sites that don't want to
	// thread through the key (kept in sync by the flow table).
	Protocol string

	// L7 metadata
	DNSQuery        string
	DNSQueryType    string
	DNSResponseCode string
	TLSSNI          string
	ALPN            []string // negotiated-protocol offers from the ClientHello, when enabled
	DstDomain       string
	Application     string
	TrafficClass    string
	HTTPMethod      string
	HTTPURL         string
	UserAgent       string

	// TLS fingerprinting
	JA3            string
	JA3Application string

	// Geolocation, attached at finalization
	DstCountry string
	DstCity    string
	DstASN     string

	ThreatLevel ThreatLevel
}

// Duration returns LastSeen - FirstSeen.
func (f *Flow) Duration() time.Duration {
	return f.LastSeen.Sub(f.FirstSeen)
}

// TotalBytes returns the sum of both directions.
func (f *Flow) TotalBytes() uint64 {
	return f.BytesIn + f.BytesOut
}

// TotalPackets returns the sum of both directions.
func (f *Flow) TotalPackets() uint64 {
	return f.PacketsIn + f.PacketsOut
}

// HasTCPFlag reports whether a flag has ever been observed on this flow.
func (f *Flow) HasTCPFlag(flag string) bool {
	if f.TCPFlags == nil {
		return false
	}
	return f.TCPFlags[flag]
}

// ObserveTiming folds a new packet timestamp into the rolling RTT and
// jitter windows. RTT is approximated as 2x the mean inter-arrival
// interval over the last 10 samples; jitter is the population stddev
// of successive inter-arrival deltas over the last 20 samples. This is
// deliberately not RFC-3550 smoothed jitter.
func (f *Flow) ObserveTiming(ts time.Time) {
	f.rttWindow = append(f.rttWindow, ts)
	if len(f.rttWindow) > 10 {
		f.rttWindow = f.rttWindow[len(f.rttWindow)-10:]
	}
	if len(f.rttWindow) >= 2 {
		var total time.Duration
		for i := 1; i < len(f.rttWindow); i++ {
			total += f.rttWindow[i].Sub(f.rttWindow[i-1])
		}
		meanMs := float64(total.Microseconds()) / 1000.0 / float64(len(f.rttWindow)-1)
		rtt := 2 * meanMs
		if rtt < 1 {
			rtt = 1
		}
		if rtt > 10000 {
			rtt = 10000
		}
		f.RTTMillis = rtt
	}

	f.jitterWindow = append(f.jitterWindow, ts)
	if len(f.jitterWindow) > 20 {
		f.jitterWindow = f.jitterWindow[len(f.jitterWindow)-20:]
	}
	if len(f.jitterWindow) >= 3 {
		deltas := make([]float64, 0, len(f.jitterWindow)-1)
		for i := 1; i < len(f.jitterWindow); i++ {
			deltas = append(deltas, float64(f.jitterWindow[i].Sub(f.jitterWindow[i-1]).Microseconds())/1000.0)
		}
		var mean float64
		for _, d := range deltas {
			mean += d
		}
		mean /= float64(len(deltas))
		var variance float64
		for _, d := range deltas {
			variance += (d - mean) * (d - mean)
		}
		variance /= float64(len(deltas))
		f.JitterMillis = round2(math.Sqrt(variance))
	}
}

// maxRetransSeqs bounds the per-flow sequence-number map; a long-lived
// bulk flow cycles through far more distinct sequence numbers than are
// worth remembering. On overflow the window resets, trading a missed
// retransmission across the reset for bounded memory.
const maxRetransSeqs = 4096

// ObserveTCPSeq records a TCP sequence number sighting. The first
// sighting of a sequence number is not a retransmission; every
// subsequent sighting increments the flow's retransmission counter.
func (f *Flow) ObserveTCPSeq(seq uint32) {
	if f.retransSeen == nil || len(f.retransSeen) >= maxRetransSeqs {
		f.retransSeen = make(map[uint32]int)
	}
	f.retransSeen[seq]++
	if f.retransSeen[seq] > 1 {
		f.Retransmissions++
	}
}

// RetransmissionRate returns retransmissions as a fraction of total packets.
func (f *Flow) RetransmissionRate() float64 {
	total := f.TotalPackets()
	if total == 0 {
		return 0
	}
	return float64(f.Retransmissions) / float64(total)
}

func round2(x float64) float64 {
	return float64(int64(x*100+0.5)) / 100
}

// AddTCPFlags folds newly observed flags into the running lifetime
// union (queried elsewhere via HasTCPFlag) and advances the connection
// state machine from this packet's flags plus the flow's *current*
// state: SYN & !ACK -> SYN_SENT; SYN & ACK -> SYN_RECEIVED; a pure ACK
// (no SYN/FIN) following a handshake state -> ESTABLISHED; FIN ->
// FIN_WAIT; RST -> RESET. State must not be derived from the lifetime
// union: a flow that has ever seen both SYN and ACK would otherwise
// read back as SYN_RECEIVED forever, so ESTABLISHED would never be
// reachable once a handshake completed.
func (f *Flow) AddTCPFlags(flags []string) {
	if f.TCPFlags == nil {
		f.TCPFlags = make(map[string]bool)
	}
	for _, fl := range flags {
		f.TCPFlags[fl] = true
	}
	if len(flags) == 0 {
		return
	}

	set := make(map[string]bool, len(flags))
	for _, fl := range flags {
		set[fl] = true
	}

	switch {
	case set["SYN"] && !set["ACK"]:
		f.ConnectionState = ConnSynSent
	case set["SYN"] && set["ACK"]:
		f.ConnectionState = ConnSynReceived
	case set["ACK"] && !set["SYN"] && !set["FIN"]:
		if f.ConnectionState == ConnSynSent || f.ConnectionState == ConnSynReceived || f.ConnectionState == "" {
			f.ConnectionState = ConnEstablished
		}
	case set["FIN"]:
		f.ConnectionState = ConnFinWait
	case set["RST"]:
		f.ConnectionState = ConnReset
	default:
		if f.ConnectionState == "" {
			f.ConnectionState = ConnEstablished
		}
	}
}
