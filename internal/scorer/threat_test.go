/**
 * Threat Scorer Tests.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package scorer

import (
	"testing"
	"time"

	"github.com/kleaSCM/sentinel/internal/models"
)

func newFlow() *models.Flow {
	now := time.Now()
	return &models.Flow{
		ID:        "flow-1",
		Key:       models.FlowKey{SrcIP: "10.0.0.5", DstIP: "203.0.113.9", DstPort: 443, Protocol: "TCP"},
		FirstSeen: now,
		LastSeen:  now,
	}
}

func TestScorer_SafeFlowScoresSafe(t *testing.T) {
	s := New(nil, nil, nil)
	flow := newFlow()
	flow.BytesOut = 1000
	flow.Application = "HTTPS"

	level, err := s.Score(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != models.ThreatSafe {
		t.Fatalf("expected safe, got %s", level)
	}
}

func TestScorer_ExfiltrationScoresHighAndClassifies(t *testing.T) {
	s := New(nil, nil, nil)
	flow := newFlow()
	flow.BytesOut = 12 * 1024 * 1024
	flow.TLSSNI = "drop.tk"

	level, err := s.Score(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != models.ThreatHigh && level != models.ThreatCritical {
		t.Fatalf("expected high or critical, got %s", level)
	}
}

func TestScorer_PortScanPattern(t *testing.T) {
	s := New(nil, nil, nil)
	flow := newFlow()
	flow.PacketsOut = 1500
	flow.BytesIn = 0

	level, err := s.Score(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level == models.ThreatSafe {
		t.Fatal("expected port-scan pattern to score above safe")
	}
}

func TestScorer_ScoreAtThresholdClassifiesHigherBand(t *testing.T) {
	s := New(nil, nil, nil)
	flow := newFlow()
	// suspicious port (50) alone lands exactly at the high threshold.
	flow.Key.DstPort = 4444

	level, _ := s.Score(flow)
	if level != models.ThreatHigh {
		t.Fatalf("expected exactly-at-threshold score to classify high, got %s", level)
	}
}

func TestScorer_BotnetClassification(t *testing.T) {
	s := New(nil, nil, nil)
	flow := newFlow()
	flow.Retransmissions = 20
	flow.PacketsOut = 200
	flow.JitterMillis = 150

	_, err := s.Score(flow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reasons := scoreReasons{}
	got := classify(flow, reasons)
	if got != models.ThreatTypeBotnet {
		t.Fatalf("expected botnet classification, got %s", got)
	}
}
