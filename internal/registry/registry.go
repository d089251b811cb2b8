/**
 * Device Registry.
 *
 * Tracks every device observed on the network, keyed by MAC address
 * (falling back to an "unknown"+IP synthetic key when no MAC is
 * known). Identity is looked up through a short-TTL IP cache and
 * persisted through Storage, and updates publish to the event bus
 * rather than calling back into capture code.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/uuid"
	"github.com/kleaSCM/sentinel/internal/analyzer"
	"github.com/kleaSCM/sentinel/internal/cache"
	"github.com/kleaSCM/sentinel/internal/enricher"
	"github.com/kleaSCM/sentinel/internal/eventbus"
	"github.com/kleaSCM/sentinel/internal/models"
	"github.com/kleaSCM/sentinel/internal/parser"
	"github.com/kleaSCM/sentinel/internal/storage"
	"go.uber.org/zap"
)

const (
	deviceIPCacheCapacity = 1000
	deviceIPCacheTTL      = 5 * time.Minute

	// minFlowsForBaseline is how many finalized flows a device needs
	// before its behavioral baseline is trusted for anomaly detection.
	minFlowsForBaseline = 20
)

// Registry tracks device identity (lookup by MAC, synthetic key when
// none is known) and ARP-driven discovery. It also folds finalized
// flows into each device's behavioral summary, keeping identity and
// learned behavior behind one owner.
type Registry struct {
	store    storage.Storage
	bus      *eventbus.Bus
	vendors  *enricher.VendorLookup
	resolver *enricher.DNSResolver
	log      *zap.Logger

	baselines *analyzer.BaselineTracker
	anomalies *analyzer.AnomalyDetector

	ipCache *cache.TTLCache[string, string] // IP -> natural key, 5 min TTL

	mu         sync.Mutex
	devices    map[string]*models.Device // natural key -> device
	devicesByID map[string]*models.Device // id -> device
}

func New(store storage.Storage, bus *eventbus.Bus, resolver *enricher.DNSResolver, log *zap.Logger) *Registry {
	return &Registry{
		store:       store,
		bus:         bus,
		vendors:     enricher.NewVendorLookup(),
		resolver:    resolver,
		log:         log,
		baselines:   analyzer.NewBaselineTracker(minFlowsForBaseline),
		anomalies:   analyzer.NewAnomalyDetector(),
		ipCache:     cache.NewTTLCache[string, string](deviceIPCacheCapacity, deviceIPCacheTTL),
		devices:     make(map[string]*models.Device),
		devicesByID: make(map[string]*models.Device),
	}
}

// GetOrCreate returns the device for (ip, mac), creating and
// persisting one on first sighting. packet, if non-nil, is used for
// passive OS fingerprinting.
func (r *Registry) GetOrCreate(ctx context.Context, ip, mac string, packet gopacket.Packet) *models.Device {
	key := naturalKey(mac, ip)
	now := time.Now()

	r.mu.Lock()
	if d, ok := r.devices[key]; ok {
		d.LastSeen = now
		if ip != "" {
			d.IPAddress = ip
		}
		r.mu.Unlock()
		r.ipCache.Set(ip, key)
		r.notePassiveOS(d, packet)
		return d
	}
	r.mu.Unlock()

	device := r.create(ctx, key, ip, mac, now, packet)

	r.mu.Lock()
	r.devices[key] = device
	r.devicesByID[device.ID] = device
	r.mu.Unlock()
	r.ipCache.Set(ip, key)

	if err := r.store.SaveDevice(ctx, device); err != nil {
		r.log.Warn("save new device", zap.String("key", key), zap.Error(err))
	}
	r.bus.Publish(eventbus.Event{Kind: eventbus.DeviceUpdate, Payload: device})

	return device
}

func (r *Registry) create(ctx context.Context, key, ip, mac string, now time.Time, packet gopacket.Packet) *models.Device {
	vendor := ""
	if mac != "" {
		vendor = r.vendors.Lookup(mac)
	}

	d := &models.Device{
		ID:         uuid.NewString(),
		IPAddress:  ip,
		MACAddress: mac,
		Vendor:     vendor,
		Type:       classifyType(ip, vendor),
		FirstSeen:  now,
		LastSeen:   now,
	}

	if packet != nil {
		if os := parser.GuessOS(packet); os != "" && os != "Unknown" {
			d.Behavioral.AddNote(os)
		}
	}

	d.Name = r.resolveName(ctx, d)
	return d
}

// classifyType applies the type heuristics: IPs ending in .1 and
// Raspberry Pi vendors are assumed to be infrastructure ("server");
// everything else starts unknown pending behavioral observation.
func classifyType(ip, vendor string) models.DeviceType {
	if vendor == "Raspberry Pi" {
		return models.DeviceServer
	}
	if strings.HasSuffix(ip, ".1") {
		return models.DeviceServer
	}
	return models.DeviceUnknown
}

// resolveName picks the best-effort display name: reverse DNS first
// label, else "<vendor> <type>", else "Device <last-octet>".
func (r *Registry) resolveName(ctx context.Context, d *models.Device) string {
	if r.resolver != nil && d.IPAddress != "" {
		if host := r.resolver.Resolve(ctx, d.IPAddress); host != "" {
			return strings.SplitN(host, ".", 2)[0]
		}
	}
	if d.Vendor != "" {
		return fmt.Sprintf("%s %s", d.Vendor, d.Type)
	}
	return fmt.Sprintf("Device %s", lastOctet(d.IPAddress))
}

func lastOctet(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) == 0 {
		return ip
	}
	return parts[len(parts)-1]
}

// notePassiveOS refines an existing device's OS guess the first time a
// confident fingerprint becomes available.
func (r *Registry) notePassiveOS(d *models.Device, packet gopacket.Packet) {
	if packet == nil {
		return
	}
	os := parser.GuessOS(packet)
	if os == "" || os == "Unknown" {
		return
	}
	r.mu.Lock()
	d.Behavioral.AddNote(os)
	r.mu.Unlock()
}

// ProcessARP implements the ARP half of DeviceRegistry: requests carry
// no new identity and are ignored, replies trigger get_or_create on
// the sender's address pair.
func (r *Registry) ProcessARP(ctx context.Context, packet gopacket.Packet) {
	arp := parser.ParseARP(packet)
	if arp == nil || arp.Operation != parser.ARPReply {
		return
	}
	r.GetOrCreate(ctx, arp.SrcIP, arp.SrcMAC, packet)
}

// DeviceForIP returns the natural key cached for ip, if any device has
// been seen from it within the last 5 minutes.
func (r *Registry) DeviceForIP(ip string) (*models.Device, bool) {
	key, ok := r.ipCache.Get(ip)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[key]
	return d, ok
}

// RecordFlow folds one finalized flow into the owning device's
// counters and behavioral summary: byte/connection totals, the
// hourly-activity/port/domain frequency tables behind
// Device.Behavioral, and a baseline-relative anomaly pass once the
// device has accumulated enough history to trust a baseline. Anomalies
// found here are distinct from the threat scorer's policy score: they
// land on the device's behavioral record, never as a Threat.
func (r *Registry) RecordFlow(ctx context.Context, flow *models.Flow) {
	if flow == nil || flow.DeviceID == "" {
		return
	}

	r.mu.Lock()
	device, ok := r.devicesByID[flow.DeviceID]
	r.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	device.BytesTotal += flow.TotalBytes()
	device.ConnectionsCount++
	device.Behavioral.Observe(flow.LastSeen.Hour(), int(flow.Key.DstPort), flow.DstDomain)
	r.mu.Unlock()

	mac := device.MACAddress
	if mac == "" {
		mac = device.NaturalKey()
	}
	r.baselines.UpdateBaseline(mac, flow)
	if r.baselines.IsEstablished(mac) {
		baseline := r.baselines.GetBaseline(mac)
		anomalies := r.anomalies.Detect(flow, baseline)
		if len(anomalies) > 0 {
			r.mu.Lock()
			device.Behavioral.AnomalyCount += len(anomalies)
			for _, a := range anomalies {
				device.Behavioral.AddNote(a.Description)
			}
			r.mu.Unlock()
		}
	}

	if err := r.store.SaveDevice(ctx, device); err != nil {
		r.log.Warn("save device after flow", zap.String("device_id", device.ID), zap.Error(err))
	}
	r.bus.Publish(eventbus.Event{Kind: eventbus.DeviceUpdate, Payload: device})
}

func naturalKey(mac, ip string) string {
	if mac != "" {
		return mac
	}
	return "unknown:" + ip
}
