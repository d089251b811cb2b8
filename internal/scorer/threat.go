/**
 * Threat Scorer.
 *
 * Computes an additive integer threat score for a finalized flow and,
 * when that score crosses a severity threshold, builds and persists a
 * Threat record and notifies subscribers. Scoring runs once, at
 * finalization, never per-packet, to keep classification deterministic
 * over the final flow state.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package scorer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentinel/internal/errs"
	"github.com/kleaSCM/sentinel/internal/eventbus"
	"github.com/kleaSCM/sentinel/internal/models"
	"github.com/kleaSCM/sentinel/internal/storage"
)

const (
	largeUploadBytes  = 10 * 1024 * 1024
	highPacketCount   = 1000
	lowDataTransfer   = 1000
	highJitterMs      = 100.0
	highRTTMs         = 1000.0
	highRetransPct    = 10.0
	ddosRetransCount  = 10
	ddosJitterMs      = 100.0

	scoreCritical = 70
	scoreHigh     = 50
	scoreMedium   = 30
	scoreLow      = 15

	scoreExfiltration      = 30
	scoreSuspiciousPort    = 50
	scorePortScan          = 20
	scoreTCPAnomaly        = 25
	scoreConnectionReset   = 15
	scoreHighRetrans       = 20
	scoreHighJitter        = 10
	scoreHighRTT           = 10
	scoreSuspiciousDomain  = 30
	scoreHighRiskCountry   = 25
	scoreUnauthorizedApp   = 15
	scoreDNSAnomaly        = 10
)

var suspiciousPorts = map[uint16]bool{
	4444:  true,
	5555:  true,
	6666:  true,
	6667:  true,
	31337: true,
}

var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".xyz"}

var highRiskCountries = map[string]bool{
	"CN": true,
	"RU": true,
	"KP": true,
	"IR": true,
}

var allowedApplications = map[string]bool{
	"HTTP":  true,
	"HTTPS": true,
	"SSH":   true,
	"DNS":   true,
}

const dnsNoError = "NOERROR"

// Scorer evaluates finalized flows against the fixed point table and
// raises Threat events over the bus. It holds only the Store handle,
// never the active-flow table.
type Scorer struct {
	store storage.Storage
	bus   *eventbus.Bus
	log   *zap.Logger
}

func New(store storage.Storage, bus *eventbus.Bus, log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{store: store, bus: bus, log: log}
}

// Classify computes the flow's threat level and, once it crosses a
// severity threshold, the Threat record to persist — purely in memory,
// with no storage or event-bus side effects. On panic (should not
// normally happen; scoring is pure arithmetic over the flow fields) it
// falls back to ThreatSafe with no threat record per the ScorerError
// fallback policy.
//
// Callers that must not let a threat's flow_id foreign key reach
// storage before its flow row exists (flowengine's batch writer) use
// Classify immediately at finalization and defer Persist until the
// flow is durably committed; Score is for callers with no such
// ordering constraint.
func (s *Scorer) Classify(flow *models.Flow) (level models.ThreatLevel, threat *models.Threat) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scorer panicked, falling back to safe", zap.Any("recover", r))
			level = models.ThreatSafe
			threat = nil
		}
	}()

	score, reasons := s.computeScore(flow)
	level = levelForScore(score)
	flow.ThreatLevel = level

	if level == models.ThreatSafe {
		return level, nil
	}
	return level, s.buildThreat(flow, level, reasons)
}

// Score classifies flow and immediately persists and publishes any
// resulting threat.
func (s *Scorer) Score(flow *models.Flow) (models.ThreatLevel, error) {
	level, threat := s.Classify(flow)
	if threat == nil {
		return level, nil
	}
	return level, s.Persist(threat)
}

// Persist saves threat and publishes a ThreatUpdate event. Split out
// from Score so a caller can hold a classified-but-unsaved threat
// until some precondition (its flow's row existing) is satisfied.
func (s *Scorer) Persist(threat *models.Threat) error {
	if s.store != nil {
		if err := s.store.SaveThreat(context.Background(), threat); err != nil {
			s.log.Error("failed to persist threat", zap.Error(err), zap.String("flow_id", threat.FlowID))
			return errs.New(errs.ScorerError, "scorer.Persist", err)
		}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Kind: eventbus.ThreatUpdate, Payload: threat})
	}
	s.log.Warn("threat detected", zap.String("type", string(threat.Type)), zap.String("severity", string(threat.Severity)), zap.String("flow_id", threat.FlowID))
	return nil
}

// scoreReasons tracks which conditions fired, in evaluation order, so
// classification and the threat record can reuse the same pass instead
// of re-deriving each condition twice.
type scoreReasons struct {
	exfiltration   bool
	suspiciousPort bool
	portScan       bool
	rstWithoutSyn  bool
	connReset      bool
	highRetrans    bool
	highJitter     bool
	highRTT        bool
	suspiciousDom  bool
	highRiskCtry   bool
	unauthorizedApp bool
	dnsAnomaly     bool
}

func (s *Scorer) computeScore(flow *models.Flow) (int, scoreReasons) {
	var score int
	var r scoreReasons

	if flow.BytesOut > largeUploadBytes {
		score += scoreExfiltration
		r.exfiltration = true
	}

	if suspiciousPorts[flow.Key.DstPort] {
		score += scoreSuspiciousPort
		r.suspiciousPort = true
	}

	totalPackets := flow.TotalPackets()
	if totalPackets > highPacketCount && flow.BytesIn < lowDataTransfer {
		score += scorePortScan
		r.portScan = true
	}

	if flow.HasTCPFlag("RST") && !flow.HasTCPFlag("SYN") {
		score += scoreTCPAnomaly
		r.rstWithoutSyn = true
	}

	if flow.ConnectionState == models.ConnReset {
		score += scoreConnectionReset
		r.connReset = true
	}

	if totalPackets > 0 {
		rate := (float64(flow.Retransmissions) / float64(totalPackets)) * 100
		if rate > highRetransPct {
			score += scoreHighRetrans
			r.highRetrans = true
		}
	}

	if flow.JitterMillis > highJitterMs {
		score += scoreHighJitter
		r.highJitter = true
	}
	if flow.RTTMillis > highRTTMs {
		score += scoreHighRTT
		r.highRTT = true
	}

	sni := flow.TLSSNI
	if sni == "" {
		sni = flow.DstDomain
	}
	if sni != "" && hasSuspiciousTLD(sni) {
		score += scoreSuspiciousDomain
		r.suspiciousDom = true
	}

	if highRiskCountries[flow.DstCountry] {
		score += scoreHighRiskCountry
		r.highRiskCtry = true
	}

	if flow.Application != "" && !allowedApplications[strings.ToUpper(flow.Application)] {
		score += scoreUnauthorizedApp
		r.unauthorizedApp = true
	}

	if flow.DNSResponseCode != "" && flow.DNSResponseCode != dnsNoError {
		score += scoreDNSAnomaly
		r.dnsAnomaly = true
	}

	return score, r
}

func hasSuspiciousTLD(domain string) bool {
	d := strings.ToLower(domain)
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(d, tld) {
			return true
		}
	}
	return false
}

func levelForScore(score int) models.ThreatLevel {
	switch {
	case score >= scoreCritical:
		return models.ThreatCritical
	case score >= scoreHigh:
		return models.ThreatHigh
	case score >= scoreMedium:
		return models.ThreatMedium
	case score >= scoreLow:
		return models.ThreatLow
	default:
		return models.ThreatSafe
	}
}

// classify picks the threat type, first match wins.
func classify(flow *models.Flow, r scoreReasons) models.ThreatType {
	switch {
	case r.exfiltration:
		return models.ThreatTypeExfiltration
	case r.rstWithoutSyn || r.portScan:
		return models.ThreatTypeScan
	case flow.Retransmissions > ddosRetransCount && flow.JitterMillis > ddosJitterMs:
		return models.ThreatTypeBotnet
	case r.suspiciousDom:
		return models.ThreatTypePhishing
	default:
		return models.ThreatTypeAnomaly
	}
}

func (s *Scorer) buildThreat(flow *models.Flow, level models.ThreatLevel, r scoreReasons) *models.Threat {
	threatType := classify(flow, r)
	return &models.Threat{
		ID:             uuid.NewString(),
		Timestamp:      flow.LastSeen,
		Type:           threatType,
		Severity:       level,
		DeviceID:       flow.DeviceID,
		FlowID:         flow.ID,
		Description:    describe(flow, threatType),
		Recommendation: recommend(threatType),
	}
}

func describe(flow *models.Flow, t models.ThreatType) string {
	dest := flow.TLSSNI
	if dest == "" {
		dest = flow.DstDomain
	}
	if dest == "" {
		dest = flow.Key.DstIP
	}
	country := ""
	if flow.DstCountry != "" {
		country = " (" + flow.DstCountry + ")"
	}

	switch t {
	case models.ThreatTypeExfiltration:
		return fmt.Sprintf("Large data exfiltration detected: %.2f MB to %s%s", float64(flow.BytesOut)/1024/1024, dest, country)
	case models.ThreatTypeScan:
		return fmt.Sprintf("Port scanning detected on port %d (%s -> %s)", flow.Key.DstPort, flow.Key.SrcIP, flow.Key.DstIP)
	case models.ThreatTypeBotnet:
		return fmt.Sprintf("Potential DDoS/network attack: %d retransmissions, jitter: %.1fms", flow.Retransmissions, flow.JitterMillis)
	case models.ThreatTypePhishing:
		return fmt.Sprintf("Suspicious domain detected: %s%s", dest, country)
	default:
		app := flow.Application
		if app == "" {
			app = "unknown protocol"
		}
		return fmt.Sprintf("Behavioral anomaly: %s connection to %s", app, dest)
	}
}

func recommend(t models.ThreatType) string {
	switch t {
	case models.ThreatTypeExfiltration:
		return "Review device for unauthorized applications and check for data breaches"
	case models.ThreatTypeScan:
		return "Investigate device for compromise and check for malware"
	case models.ThreatTypeAnomaly:
		return "Monitor device closely and investigate if behavior continues"
	default:
		return "Monitor device and review network activity"
	}
}
