/**
 * Analyzer Tests.
 *
 * Verifies the functionality of behavioral baseline tracking and
 * anomaly detection.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package analyzer

import (
	"testing"
	"time"

	"github.com/kleaSCM/sentinel/internal/models"
)

func TestAnomalyDetector(t *testing.T) {
	// Setup baseline
	baseline := &DeviceBaseline{
		DeviceMAC:           "00:11:22:33:44:55",
		TypicalCountries:    map[string]int{"US": 100, "JP": 50},
		TypicalApps:         map[string]int{"HTTP": 100},
		TypicalDestinations: map[string]int{"google.com": 100},
		TypicalHourlyActivity: [24]int{
			0: 0, 1: 0, 2: 0, // Inactive hours
			12: 50 * 1024 * 1024, // Active hour (50MB) -> Avg ~2MB/hr
		},
		FlowCount:    200, // Established
		TotalBytes:   50 * 1024 * 1024,
		TotalPackets: 24000,
	}

	detector := NewAnomalyDetector()

	// Test 1: No anomaly (Normal behavior)
	t.Run("NormalBehavior", func(t *testing.T) {
		flow := &models.Flow{
			BytesOut:    500000, // 0.5MB < 5 * 2MB
			DstCountry:  "US",
			Application: "HTTP",
			DstDomain:   "google.com",
			LastSeen:    time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
		}
		anomalies := detector.Detect(flow, baseline)
		if len(anomalies) != 0 {
			t.Errorf("Expected 0 anomalies, got %d", len(anomalies))
		}
	})

	// Test 2: Volume Spike
	t.Run("VolumeSpike", func(t *testing.T) {
		// Avg hourly is ~2MB.
		// 5x avg = 10MB.
		// Flow is 15MB -> should trigger.
		flow := &models.Flow{
			BytesOut: 15 * 1024 * 1024,
			LastSeen: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
		}
		anomalies := detector.Detect(flow, baseline)
		found := false
		for _, a := range anomalies {
			if a.Type == AnomalyTypeVolume {
				found = true
				break
			}
		}
		if !found {
			t.Error("Expected VolumeSpike anomaly")
		}
	})

	// Test 3: New Country
	t.Run("NewCountry", func(t *testing.T) {
		flow := &models.Flow{
			DstCountry: "CN", // Not in US, JP
			LastSeen:   time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
		}
		anomalies := detector.Detect(flow, baseline)
		found := false
		for _, a := range anomalies {
			if a.Type == AnomalyTypeNewGeo {
				found = true
				break
			}
		}
		if !found {
			t.Error("Expected NewGeography anomaly")
		}
	})

	// Test 4: Unusual Time
	t.Run("UnusualTime", func(t *testing.T) {
		flow := &models.Flow{
			BytesOut: 100,
			LastSeen: time.Date(2023, 1, 1, 2, 0, 0, 0, time.UTC), // 2 AM is inactive
		}
		anomalies := detector.Detect(flow, baseline)
		found := false
		for _, a := range anomalies {
			if a.Type == AnomalyTypeUnusualTime {
				found = true
				break
			}
		}
		if !found {
			t.Error("Expected UnusualTime anomaly")
		}
	})
}

func TestBaselineTracker_UpdateAndEstablish(t *testing.T) {
	bt := NewBaselineTracker(3)

	flow := &models.Flow{
		BytesOut:    2048,
		PacketsOut:  4,
		Application: "HTTPS",
		DstDomain:   "example.com",
		DstCountry:  "US",
		LastSeen:    time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC),
	}

	if bt.IsEstablished("aa:bb:cc:dd:ee:ff") {
		t.Fatal("expected no baseline before any update")
	}

	for i := 0; i < 3; i++ {
		bt.UpdateBaseline("aa:bb:cc:dd:ee:ff", flow)
	}

	if !bt.IsEstablished("aa:bb:cc:dd:ee:ff") {
		t.Fatal("expected baseline established after 3 flows")
	}

	baseline := bt.GetBaseline("aa:bb:cc:dd:ee:ff")
	if baseline == nil {
		t.Fatal("expected non-nil baseline")
	}
	if !baseline.HasApp("HTTPS") {
		t.Error("expected HTTPS in typical apps")
	}
	if !baseline.HasDestination("example.com") {
		t.Error("expected example.com in typical destinations")
	}
	if !baseline.HasCountry("US") {
		t.Error("expected US in typical countries")
	}
}
