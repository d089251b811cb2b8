/**
 * Behavioral Baseline Tracking.
 *
 * Accumulates what "normal" looks like per device — the apps,
 * destinations, countries, and hours it usually traffics in — so the
 * anomaly detector has something to compare a new flow against.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package analyzer

import (
	"sync"
	"time"

	"github.com/kleaSCM/sentinel/internal/models"
)

// DeviceBaseline is the learned traffic profile for one device, keyed
// by its MAC (or synthetic natural key when no MAC is known).
type DeviceBaseline struct {
	DeviceMAC             string
	FirstSeen             time.Time
	LastUpdated           time.Time
	FlowCount             int
	TypicalApps           map[string]int
	TypicalDestinations   map[string]int
	TypicalTrafficClasses map[string]int
	TypicalCountries      map[string]int
	TypicalHourlyActivity [24]int
	TotalBytes            uint64
	TotalPackets          uint64
}

// BaselineTracker holds every device's baseline and decides when one
// has seen enough flows to be trusted.
type BaselineTracker struct {
	mu        sync.RWMutex
	baselines map[string]*DeviceBaseline
	minFlows  int
}

// NewBaselineTracker builds a tracker; minFlows is the flow count at
// which a baseline counts as established (100 when zero is passed).
func NewBaselineTracker(minFlows int) *BaselineTracker {
	if minFlows == 0 {
		minFlows = 100
	}
	return &BaselineTracker{
		baselines: make(map[string]*DeviceBaseline),
		minFlows:  minFlows,
	}
}

// UpdateBaseline folds one finalized flow into the device's profile,
// creating the profile on first sight.
func (bt *BaselineTracker) UpdateBaseline(deviceMAC string, flow *models.Flow) {
	if flow == nil || deviceMAC == "" {
		return
	}

	bt.mu.Lock()
	defer bt.mu.Unlock()

	baseline, ok := bt.baselines[deviceMAC]
	if !ok {
		baseline = &DeviceBaseline{
			DeviceMAC:             deviceMAC,
			FirstSeen:             flow.FirstSeen,
			TypicalApps:           make(map[string]int),
			TypicalDestinations:   make(map[string]int),
			TypicalTrafficClasses: make(map[string]int),
			TypicalCountries:      make(map[string]int),
		}
		bt.baselines[deviceMAC] = baseline
	}

	baseline.LastUpdated = time.Now()
	baseline.FlowCount++
	baseline.TotalBytes += flow.TotalBytes()
	baseline.TotalPackets += flow.TotalPackets()

	if flow.Application != "" {
		baseline.TypicalApps[flow.Application]++
	}
	switch {
	case flow.DstDomain != "":
		baseline.TypicalDestinations[flow.DstDomain]++
	case flow.Key.DstIP != "":
		baseline.TypicalDestinations[flow.Key.DstIP]++
	}
	if flow.TrafficClass != "" {
		baseline.TypicalTrafficClasses[flow.TrafficClass]++
	}
	if flow.DstCountry != "" {
		baseline.TypicalCountries[flow.DstCountry]++
	}
	baseline.TypicalHourlyActivity[flow.LastSeen.Hour()]++
}

// GetBaseline returns the device's profile, or nil before any flow has
// been recorded for it.
func (bt *BaselineTracker) GetBaseline(deviceMAC string) *DeviceBaseline {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.baselines[deviceMAC]
}

// IsEstablished reports whether the device has accumulated enough
// history for anomaly comparisons to mean anything.
func (bt *BaselineTracker) IsEstablished(deviceMAC string) bool {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	baseline, ok := bt.baselines[deviceMAC]
	return ok && baseline.FlowCount >= bt.minFlows
}

// HasApp reports whether the device has used this application before.
func (baseline *DeviceBaseline) HasApp(app string) bool {
	if baseline == nil || app == "" {
		return false
	}
	_, ok := baseline.TypicalApps[app]
	return ok
}

// HasDestination reports whether the device has talked to this
// domain/IP before.
func (baseline *DeviceBaseline) HasDestination(dest string) bool {
	if baseline == nil || dest == "" {
		return false
	}
	_, ok := baseline.TypicalDestinations[dest]
	return ok
}

// HasCountry reports whether the device has reached this country before.
func (baseline *DeviceBaseline) HasCountry(country string) bool {
	if baseline == nil || country == "" {
		return false
	}
	_, ok := baseline.TypicalCountries[country]
	return ok
}

// GetAverageHourlyActivity returns the mean per-hour traffic volume,
// the reference point for volume-spike detection.
func (baseline *DeviceBaseline) GetAverageHourlyActivity() float64 {
	if baseline == nil || baseline.FlowCount == 0 {
		return 0
	}
	total := 0
	for _, count := range baseline.TypicalHourlyActivity {
		total += count
	}
	return float64(total) / 24.0
}
