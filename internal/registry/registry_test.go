/**
 * Device Registry Tests.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package registry

import (
	"context"
	"testing"

	"github.com/kleaSCM/sentinel/internal/eventbus"
	"github.com/kleaSCM/sentinel/internal/models"
	"github.com/kleaSCM/sentinel/internal/storage"
	"go.uber.org/zap"
)

type memStorage struct {
	devices map[string]*models.Device
}

func newMemStorage() *memStorage {
	return &memStorage{devices: make(map[string]*models.Device)}
}

func (m *memStorage) Close() error                     { return nil }
func (m *memStorage) Migrate(ctx context.Context) error { return nil }

func (m *memStorage) SaveDevice(ctx context.Context, d *models.Device) error {
	m.devices[d.ID] = d
	return nil
}
func (m *memStorage) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return m.devices[id], nil
}
func (m *memStorage) GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error) {
	for _, d := range m.devices {
		if d.MACAddress == mac {
			return d, nil
		}
	}
	return nil, nil
}
func (m *memStorage) ListDevices(ctx context.Context) ([]*models.Device, error) {
	out := make([]*models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}
func (m *memStorage) SearchDevices(ctx context.Context, nameLike string) ([]*models.Device, error) {
	return nil, nil
}
func (m *memStorage) SaveFlow(ctx context.Context, f *models.Flow) error         { return nil }
func (m *memStorage) SaveFlowsBatch(ctx context.Context, f []*models.Flow) error { return nil }
func (m *memStorage) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	return nil, nil
}
func (m *memStorage) GetFlows(ctx context.Context, f storage.FlowFilter) ([]*models.Flow, error) {
	return nil, nil
}
func (m *memStorage) SaveThreat(ctx context.Context, t *models.Threat) error { return nil }
func (m *memStorage) GetThreat(ctx context.Context, id string) (*models.Threat, error) {
	return nil, nil
}
func (m *memStorage) GetThreats(ctx context.Context, f storage.ThreatFilter) ([]*models.Threat, error) {
	return nil, nil
}
func (m *memStorage) DismissThreat(ctx context.Context, id string) error { return nil }
func (m *memStorage) CleanupOldData(ctx context.Context, days int) (int64, int64, error) {
	return 0, 0, nil
}
func (m *memStorage) GetDatabaseStats(ctx context.Context) (storage.Stats, error) {
	return storage.Stats{}, nil
}

func newTestRegistry() (*Registry, *memStorage) {
	store := newMemStorage()
	bus := eventbus.New(zap.NewNop())
	reg := New(store, bus, nil, zap.NewNop())
	return reg, store
}

func TestRegistry_GetOrCreateNewDeviceByMAC(t *testing.T) {
	reg, store := newTestRegistry()
	ctx := context.Background()

	d := reg.GetOrCreate(ctx, "192.168.1.50", "00:03:93:AA:BB:CC", nil)
	if d.Vendor != "Apple" {
		t.Fatalf("expected vendor Apple, got %q", d.Vendor)
	}
	if d.MACAddress != "00:03:93:AA:BB:CC" {
		t.Fatalf("expected MAC to be set, got %q", d.MACAddress)
	}
	if _, ok := store.devices[d.ID]; !ok {
		t.Fatal("expected device to be persisted")
	}
}

func TestRegistry_GetOrCreateReturnsSameDeviceOnRepeatSighting(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	first := reg.GetOrCreate(ctx, "192.168.1.50", "00:03:93:AA:BB:CC", nil)
	second := reg.GetOrCreate(ctx, "192.168.1.50", "00:03:93:AA:BB:CC", nil)

	if first.ID != second.ID {
		t.Fatalf("expected same device ID across sightings, got %q vs %q", first.ID, second.ID)
	}
}

func TestRegistry_UnknownMACUsesSyntheticKey(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	d := reg.GetOrCreate(ctx, "10.0.0.5", "", nil)
	if d.MACAddress != "" {
		t.Fatalf("expected no MAC, got %q", d.MACAddress)
	}
	if d.Name == "" {
		t.Fatal("expected a fallback name to be assigned")
	}
}

func TestRegistry_DotOneIPClassifiedAsServer(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	d := reg.GetOrCreate(ctx, "192.168.1.1", "", nil)
	if d.Type != models.DeviceServer {
		t.Fatalf("expected server type for .1 address, got %q", d.Type)
	}
}

func TestRegistry_RecordFlowUpdatesBehavioral(t *testing.T) {
	reg, store := newTestRegistry()
	ctx := context.Background()

	d := reg.GetOrCreate(ctx, "192.168.1.50", "00:03:93:AA:BB:CC", nil)

	flow := &models.Flow{
		ID:         "flow-1",
		DeviceID:   d.ID,
		Key:        models.FlowKey{SrcIP: "192.168.1.50", DstIP: "93.184.216.34", DstPort: 443, Protocol: "TCP"},
		BytesOut:   1000,
		BytesIn:    2000,
		DstDomain:  "example.com",
		LastSeen:   d.FirstSeen,
	}

	reg.RecordFlow(ctx, flow)

	updated, ok := store.devices[d.ID]
	if !ok {
		t.Fatal("expected device to remain persisted after RecordFlow")
	}
	if updated.BytesTotal != 3000 {
		t.Fatalf("expected BytesTotal 3000, got %d", updated.BytesTotal)
	}
	if updated.ConnectionsCount != 1 {
		t.Fatalf("expected ConnectionsCount 1, got %d", updated.ConnectionsCount)
	}
}
