/**
 * Anomaly Detection.
 *
 * Compares a finalized flow against its device's baseline and reports
 * the deviations: volume spikes, first-contact destinations and
 * countries, unfamiliar applications, activity in dead hours. These
 * feed the device's behavioral record, not the threat scorer.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package analyzer

import (
	"fmt"

	"github.com/kleaSCM/sentinel/internal/models"
)

type AnomalyType string

const (
	AnomalyTypeVolume      AnomalyType = "VOLUME_SPIKE"
	AnomalyTypeNewDest     AnomalyType = "NEW_DESTINATION"
	AnomalyTypeNewApp      AnomalyType = "NEW_APPLICATION"
	AnomalyTypeNewGeo      AnomalyType = "NEW_GEOGRAPHY"
	AnomalyTypeUnusualTime AnomalyType = "UNUSUAL_TIME"
	AnomalyTypeBeaconing   AnomalyType = "BEACONING_ACTIVITY"
)

type AnomalySeverity int

const (
	SeverityLow      AnomalySeverity = 1
	SeverityMedium   AnomalySeverity = 5
	SeverityHigh     AnomalySeverity = 8
	SeverityCritical AnomalySeverity = 10
)

// Anomaly is one baseline deviation observed on one flow.
type Anomaly struct {
	Type        AnomalyType
	Severity    AnomalySeverity
	Description string
	Flow        *models.Flow
	Timestamp   string
}

// AnomalyDetector holds the thresholds the per-flow checks run with.
type AnomalyDetector struct {
	volumeThresholdMultiplier float64
}

func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{volumeThresholdMultiplier: 5.0}
}

// Detect runs every baseline comparison against flow. A nil baseline
// yields nothing: without history there is no "normal" to deviate from.
func (ad *AnomalyDetector) Detect(flow *models.Flow, baseline *DeviceBaseline) []Anomaly {
	if baseline == nil {
		return nil
	}

	var anomalies []Anomaly
	report := func(kind AnomalyType, severity AnomalySeverity, format string, args ...any) {
		anomalies = append(anomalies, Anomaly{
			Type:        kind,
			Severity:    severity,
			Description: fmt.Sprintf(format, args...),
			Flow:        flow,
		})
	}

	// Volume spikes only mean something once the device has meaningful
	// history behind the average (>1MB/hour).
	avgHourly := baseline.GetAverageHourlyActivity()
	if avgHourly > 1024*1024 && float64(flow.TotalBytes()) > avgHourly*ad.volumeThresholdMultiplier {
		report(AnomalyTypeVolume, SeverityMedium,
			"Flow volume (%d bytes) exceeds 5x hourly average (%.0f bytes)", flow.TotalBytes(), avgHourly)
	}

	if flow.DstCountry != "" && !baseline.HasCountry(flow.DstCountry) {
		report(AnomalyTypeNewGeo, SeverityMedium, "Device connected to new country: %s", flow.DstCountry)
	}

	// New-app and new-destination checks need a populated profile,
	// otherwise every early flow reads as novel.
	if flow.Application != "" && !baseline.HasApp(flow.Application) && len(baseline.TypicalApps) > 5 {
		report(AnomalyTypeNewApp, SeverityLow, "Device used new application: %s", flow.Application)
	}
	if flow.DstDomain != "" && !baseline.HasDestination(flow.DstDomain) && len(baseline.TypicalDestinations) > 20 {
		report(AnomalyTypeNewDest, SeverityLow, "Device visited new domain: %s", flow.DstDomain)
	}

	if hour := flow.LastSeen.Hour(); baseline.TypicalHourlyActivity[hour] == 0 && baseline.FlowCount > 100 {
		report(AnomalyTypeUnusualTime, SeverityLow, "Activity detected during typically inactive hour: %d:00", hour)
	}

	return anomalies
}
