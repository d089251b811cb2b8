/**
 * SQLite Storage Tests.
 *
 * Verifies the full persistence API (Devices, Flows, Threats) against a
 * temporary SQLite database file.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kleaSCM/sentinel/internal/models"
)

func openTestStore(t *testing.T) (*SQLiteStorage, context.Context) {
	t.Helper()
	dbPath := "test_sentinel_" + t.Name() + ".db"
	t.Cleanup(func() { os.Remove(dbPath) })

	ctx := context.Background()
	store, err := NewSQLiteStorage(ctx, dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, ctx
}

func TestSQLiteStorage_DeviceRoundTrip(t *testing.T) {
	store, ctx := openTestStore(t)

	device := &models.Device{
		Name:       "test-device",
		MACAddress: "AA:BB:CC:DD:EE:FF",
		IPAddress:  "192.168.1.100",
		Vendor:     "Test Vendor",
		Type:       models.DeviceLaptop,
		FirstSeen:  time.Now(),
		LastSeen:   time.Now(),
	}
	if err := store.SaveDevice(ctx, device); err != nil {
		t.Fatalf("save device: %v", err)
	}
	if device.ID == "" {
		t.Fatal("expected device ID to be assigned")
	}

	fetched, err := store.GetDeviceByMAC(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if fetched == nil || fetched.Name != "test-device" {
		t.Fatalf("expected round-tripped device, got %+v", fetched)
	}
}

func TestSQLiteStorage_FlowRoundTrip(t *testing.T) {
	store, ctx := openTestStore(t)

	device := &models.Device{MACAddress: "11:22:33:44:55:66", Name: "d1", FirstSeen: time.Now(), LastSeen: time.Now()}
	if err := store.SaveDevice(ctx, device); err != nil {
		t.Fatalf("save device: %v", err)
	}

	flow := &models.Flow{
		DeviceID:  device.ID,
		Key:       models.FlowKey{SrcIP: "192.168.1.100", DstIP: "8.8.8.8", SrcPort: 12345, DstPort: 53, Protocol: "UDP"},
		FirstSeen: time.Now(),
		LastSeen:  time.Now(),
		BytesOut:  100,
		State:     models.FlowClosed,
		DNSQuery:  "google.com",
	}
	if err := store.SaveFlow(ctx, flow); err != nil {
		t.Fatalf("save flow: %v", err)
	}
	if flow.ID == "" {
		t.Fatal("expected flow ID to be assigned")
	}

	got, err := store.GetFlows(ctx, FlowFilter{Page: Page{Limit: 10}})
	if err != nil {
		t.Fatalf("get flows: %v", err)
	}
	if len(got) != 1 || got[0].Key.SrcIP != "192.168.1.100" {
		t.Fatalf("unexpected flows: %+v", got)
	}
}

func TestSQLiteStorage_GetFlowsLimitZeroYieldsEmpty(t *testing.T) {
	store, ctx := openTestStore(t)

	got, err := store.GetFlows(ctx, FlowFilter{Page: Page{Limit: 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result for limit=0, got %d rows", len(got))
	}
}

func TestSQLiteStorage_GetFlowsRejectsInvertedTimeRange(t *testing.T) {
	store, ctx := openTestStore(t)

	_, err := store.GetFlows(ctx, FlowFilter{Page: Page{Limit: 10}, Time: TimeRange{Start: 200, End: 100}})
	if err == nil {
		t.Fatal("expected error for start > end time range")
	}
}

func TestSQLiteStorage_DismissThreatIsIdempotent(t *testing.T) {
	store, ctx := openTestStore(t)

	device := &models.Device{MACAddress: "AA:11:22:33:44:55", Name: "d1", FirstSeen: time.Now(), LastSeen: time.Now()}
	if err := store.SaveDevice(ctx, device); err != nil {
		t.Fatalf("save device: %v", err)
	}
	flow := &models.Flow{
		DeviceID:  device.ID,
		Key:       models.FlowKey{SrcIP: "10.0.0.5", DstIP: "10.0.0.9", SrcPort: 1, DstPort: 2, Protocol: "TCP"},
		FirstSeen: time.Now(),
		LastSeen:  time.Now(),
		State:     models.FlowClosed,
	}
	if err := store.SaveFlow(ctx, flow); err != nil {
		t.Fatalf("save flow: %v", err)
	}

	threat := &models.Threat{Timestamp: time.Now(), Type: models.ThreatTypeAnomaly, Severity: models.ThreatLow, DeviceID: device.ID, FlowID: flow.ID, Description: "x", Recommendation: "y"}
	if err := store.SaveThreat(ctx, threat); err != nil {
		t.Fatalf("save threat: %v", err)
	}

	if err := store.DismissThreat(ctx, threat.ID); err != nil {
		t.Fatalf("first dismiss: %v", err)
	}
	if err := store.DismissThreat(ctx, threat.ID); err != nil {
		t.Fatalf("second dismiss should be a no-op, got: %v", err)
	}

	got, err := store.GetThreat(ctx, threat.ID)
	if err != nil {
		t.Fatalf("get threat: %v", err)
	}
	if got == nil || !got.Dismissed {
		t.Fatalf("expected dismissed threat, got %+v", got)
	}
}

func TestSQLiteStorage_CleanupOldData(t *testing.T) {
	store, ctx := openTestStore(t)

	device := &models.Device{MACAddress: "AA:11:22:33:44:66", Name: "d1", FirstSeen: time.Now(), LastSeen: time.Now()}
	if err := store.SaveDevice(ctx, device); err != nil {
		t.Fatalf("save device: %v", err)
	}

	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now()

	for i := 0; i < 5; i++ {
		flow := &models.Flow{DeviceID: device.ID, Key: models.FlowKey{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: "TCP"}, FirstSeen: old, LastSeen: old, State: models.FlowClosed}
		if err := store.SaveFlow(ctx, flow); err != nil {
			t.Fatalf("save old flow: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		flow := &models.Flow{DeviceID: device.ID, Key: models.FlowKey{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: "TCP"}, FirstSeen: recent, LastSeen: recent, State: models.FlowClosed}
		if err := store.SaveFlow(ctx, flow); err != nil {
			t.Fatalf("save recent flow: %v", err)
		}
	}

	flowsDeleted, _, err := store.CleanupOldData(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if flowsDeleted != 5 {
		t.Fatalf("expected 5 flows deleted, got %d", flowsDeleted)
	}

	remaining, err := store.GetFlows(ctx, FlowFilter{Page: Page{Limit: 1000}})
	if err != nil {
		t.Fatalf("get flows: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("expected 3 flows remaining, got %d", len(remaining))
	}
}

func TestSQLiteStorage_CleanupRetainsFlowsPinnedByLiveThreats(t *testing.T) {
	store, ctx := openTestStore(t)

	device := &models.Device{MACAddress: "AA:11:22:33:44:77", Name: "d1", FirstSeen: time.Now(), LastSeen: time.Now()}
	if err := store.SaveDevice(ctx, device); err != nil {
		t.Fatalf("save device: %v", err)
	}

	old := time.Now().AddDate(0, 0, -40)

	pinned := &models.Flow{DeviceID: device.ID, Key: models.FlowKey{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: "TCP"}, FirstSeen: old, LastSeen: old, State: models.FlowClosed}
	if err := store.SaveFlow(ctx, pinned); err != nil {
		t.Fatalf("save pinned flow: %v", err)
	}
	plain := &models.Flow{DeviceID: device.ID, Key: models.FlowKey{SrcIP: "10.0.0.3", DstIP: "10.0.0.4", Protocol: "TCP"}, FirstSeen: old, LastSeen: old, State: models.FlowClosed}
	if err := store.SaveFlow(ctx, plain); err != nil {
		t.Fatalf("save plain flow: %v", err)
	}

	threat := &models.Threat{Timestamp: old, Type: models.ThreatTypeScan, Severity: models.ThreatLow, DeviceID: device.ID, FlowID: pinned.ID, Description: "x", Recommendation: "y"}
	if err := store.SaveThreat(ctx, threat); err != nil {
		t.Fatalf("save threat: %v", err)
	}

	// The undismissed threat holds a foreign key into its flow: the
	// purge must delete the unpinned flow and keep the pinned one
	// rather than failing wholesale.
	flowsDeleted, threatsDeleted, err := store.CleanupOldData(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup with live threat: %v", err)
	}
	if flowsDeleted != 1 {
		t.Fatalf("expected 1 flow deleted around the pinned one, got %d", flowsDeleted)
	}
	if threatsDeleted != 0 {
		t.Fatalf("expected the undismissed threat retained, got %d deleted", threatsDeleted)
	}
	if got, err := store.GetFlow(ctx, pinned.ID); err != nil || got == nil {
		t.Fatalf("expected pinned flow retained, got %+v err=%v", got, err)
	}

	// Dismissal releases the pin: the next run purges threat and flow
	// together.
	if err := store.DismissThreat(ctx, threat.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	flowsDeleted, threatsDeleted, err = store.CleanupOldData(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup after dismissal: %v", err)
	}
	if flowsDeleted != 1 || threatsDeleted != 1 {
		t.Fatalf("expected the pinned flow and its dismissed threat purged, got flows=%d threats=%d", flowsDeleted, threatsDeleted)
	}
}

func TestSQLiteStorage_MigrateTwiceIsNoOp(t *testing.T) {
	store, ctx := openTestStore(t)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate run should be a no-op, got: %v", err)
	}
}
