/**
 * Flow Engine.
 *
 * The three-stage bounded pipeline: a non-blocking kernel->user packet
 * handler, a batched L7 classifier, and an idle sweeper/batch writer
 * that finalizes flows into storage. Every piece of cross-packet state
 * lives in a capacity-bounded cache so a traffic burst degrades into
 * eviction, never into unbounded memory growth.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package flowengine

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentinel/internal/capture"
	"github.com/kleaSCM/sentinel/internal/config"
	"github.com/kleaSCM/sentinel/internal/correlator"
	"github.com/kleaSCM/sentinel/internal/enricher"
	"github.com/kleaSCM/sentinel/internal/eventbus"
	"github.com/kleaSCM/sentinel/internal/models"
	"github.com/kleaSCM/sentinel/internal/parser"
	"github.com/kleaSCM/sentinel/internal/registry"
	"github.com/kleaSCM/sentinel/internal/scorer"
	"github.com/kleaSCM/sentinel/internal/storage"
)

const (
	classifierBatchSize     = 100
	classifierBatchInterval = 10 * time.Millisecond
	classifierConcurrency   = 4

	idleSweepInterval = 30 * time.Second
	writeBatchSize    = 50
	writeInterval     = 5 * time.Second
)

// Engine owns the capture handle and the three pipeline stages. One
// Engine runs against one interface for the life of a process.
type Engine struct {
	cfg      *config.Config
	store    storage.Storage
	bus      *eventbus.Bus
	devices  *registry.Registry
	ident    *enricher.EnhancedIdentifier
	geoIP    *enricher.GeoIPService
	scorer   *scorer.Scorer
	dedup    *correlator.DedupSet
	log      *zap.Logger

	handle *pcap.Handle
	table  *flowTable

	inbox chan gopacket.Packet

	writeQueue    chan pendingWrite
	idleTimeout   time.Duration
	batchSize     int
	batchInterval time.Duration
	running       atomic.Bool

	// Mirrors the Prometheus counters locally so Status() can answer
	// without scraping /metrics.
	packetsCaptured  uint64
	packetsDropped   uint64
	packetsDuplicate uint64
	flowsDetected    uint64
	packetsProcessed uint64
	processingNanos  int64
	sampleCounter    uint64
	// captureWG/sweepWG/writeWG are separate so Start can sequence
	// shutdown precisely: capture+classify must fully stop before the
	// flow table is drained (no in-flight packet may recreate a flow
	// after it's finalized), the idle sweeper must also stop before
	// drain iterates the table itself (else both could finalize the
	// same flow), and the write queue is only closed once both are
	// quiesced so writeLoop can be waited on last.
	captureWG sync.WaitGroup
	sweepWG   sync.WaitGroup
	writeWG   sync.WaitGroup
	cancel    context.CancelFunc
}

// pendingWrite pairs a finalized flow with its already-classified (but
// not yet persisted) threat, if any. The threat is carried alongside
// its flow through the write queue so writeBatch can persist it only
// after the flow's own row is durably committed — threats.flow_id is a
// foreign key into flows(id).
type pendingWrite struct {
	flow   *models.Flow
	threat *models.Threat
}

// Deps bundles the collaborators wired from outside this package (cmd
// wires these up at startup from a single Config/Storage/Bus/Logger).
type Deps struct {
	Store    storage.Storage
	Bus      *eventbus.Bus
	Devices  *registry.Registry
	Ident    *enricher.EnhancedIdentifier
	GeoIP    *enricher.GeoIPService // optional
	Scorer   *scorer.Scorer
	Log      *zap.Logger
}

// New prepares an Engine against cfg.Interface. It does not open the
// capture handle yet; call Start to begin capturing.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	idle := time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	if idle <= 0 {
		idle = idleSweepInterval * 2
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = writeBatchSize
	}
	batchInterval := time.Duration(cfg.BatchIntervalS) * time.Second
	if batchInterval <= 0 {
		batchInterval = writeInterval
	}

	return &Engine{
		cfg:           cfg,
		store:         deps.Store,
		bus:           deps.Bus,
		devices:       deps.Devices,
		ident:         deps.Ident,
		geoIP:         deps.GeoIP,
		scorer:        deps.Scorer,
		dedup:         correlator.NewDedupSet(),
		log:           log,
		table:         newFlowTable(),
		inbox:         make(chan gopacket.Packet, 4096),
		writeQueue:    make(chan pendingWrite, 2*batchSize),
		idleTimeout:   idle,
		batchSize:     batchSize,
		batchInterval: batchInterval,
	}, nil
}

// Start opens the capture handle (substituting the default interface
// with a warning if the configured one is missing, per the engine's
// failure semantics) and runs every pipeline stage until ctx is
// canceled. Start blocks until shutdown completes.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Load() {
		return fmt.Errorf("flowengine: already running")
	}

	ifaceName, err := e.resolveInterface()
	if err != nil {
		return fmt.Errorf("flowengine: no usable interface: %w", err)
	}

	if err := e.openHandle(ifaceName); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running.Store(true)

	e.captureWG.Add(2)
	go e.captureLoop(runCtx)
	go e.classifierLoop(runCtx)

	e.sweepWG.Add(1)
	go e.sweepLoop(runCtx)

	e.writeWG.Add(1)
	go e.writeLoop(runCtx)

	<-runCtx.Done()
	// Capture and classification must fully stop before the flow table
	// is drained, otherwise an in-flight packet could recreate a flow
	// after drain already finalized and removed it. The idle sweeper
	// must also be fully stopped first so it can't finalize the same
	// flow drain is about to finalize.
	e.captureWG.Wait()
	e.sweepWG.Wait()
	e.drain()
	e.writeWG.Wait()
	e.running.Store(false)
	return nil
}

// Stop cancels the running pipeline. Safe to call once; a second call
// is a no-op.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Status is a point-in-time snapshot of the engine: running flag,
// packet/flow counters, and a coarse performance counter.
type Status struct {
	Running           bool
	PacketsCaptured   uint64
	FlowsDetected     uint64
	PacketsDropped    uint64
	PacketsDuplicate  uint64
	AvgProcessingTime time.Duration
}

// Status reports the running flag alongside the capture, detection,
// drop/duplicate, and average-processing-time counters.
func (e *Engine) Status() Status {
	processed := atomic.LoadUint64(&e.packetsProcessed)
	var avg time.Duration
	if processed > 0 {
		avg = time.Duration(atomic.LoadInt64(&e.processingNanos) / int64(processed))
	}
	return Status{
		Running:           e.running.Load(),
		PacketsCaptured:   atomic.LoadUint64(&e.packetsCaptured),
		FlowsDetected:     atomic.LoadUint64(&e.flowsDetected),
		PacketsDropped:    atomic.LoadUint64(&e.packetsDropped),
		PacketsDuplicate:  atomic.LoadUint64(&e.packetsDuplicate),
		AvgProcessingTime: avg,
	}
}

func (e *Engine) resolveInterface() (string, error) {
	if e.cfg.Interface != "" {
		if _, err := capture.FindInterface(e.cfg.Interface); err == nil {
			return e.cfg.Interface, nil
		}
		e.log.Warn("configured interface unavailable, substituting default", zap.String("interface", e.cfg.Interface))
	}
	iface, err := capture.GetDefaultInterface()
	if err != nil {
		return "", err
	}
	return iface.Name, nil
}

// openHandle runs the inactive-handle lifecycle: configure every
// option on the inactive handle, activate, then apply the BPF filter
// on the live handle.
func (e *Engine) openHandle(ifaceName string) error {
	inactive, err := pcap.NewInactiveHandle(ifaceName)
	if err != nil {
		return fmt.Errorf("flowengine: inactive handle: %w", err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(65536); err != nil {
		return fmt.Errorf("flowengine: snaplen: %w", err)
	}
	if err := inactive.SetPromisc(true); err != nil {
		return fmt.Errorf("flowengine: promisc: %w", err)
	}
	if err := inactive.SetTimeout(time.Second); err != nil {
		return fmt.Errorf("flowengine: timeout: %w", err)
	}
	if err := inactive.SetBufferSize(32 * 1024 * 1024); err != nil {
		e.log.Warn("failed to set buffer size", zap.Error(err))
	}

	handle, err := inactive.Activate()
	if err != nil {
		return fmt.Errorf("flowengine: activate: %w", err)
	}

	if e.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(e.cfg.BPFFilter); err != nil {
			handle.Close()
			return fmt.Errorf("flowengine: bpf filter: %w", err)
		}
	}

	e.handle = handle
	return nil
}

// captureLoop is the kernel->user handler: non-blocking enqueue,
// sampling, and dedup, never anything that could block the packet
// source for longer than a channel send.
func (e *Engine) captureLoop(ctx context.Context) {
	defer e.captureWG.Done()
	defer close(e.inbox)

	source := gopacket.NewPacketSource(e.handle, e.handle.LinkType())
	packets := source.Packets()

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			metricPacketsCaptured.Inc()
			atomic.AddUint64(&e.packetsCaptured, 1)

			if !e.sample() {
				continue
			}

			if e.dedup.Seen(pkt.Metadata().Timestamp, pkt.Metadata().Length) {
				metricPacketsDuplicate.Inc()
				atomic.AddUint64(&e.packetsDuplicate, 1)
				continue
			}

			select {
			case e.inbox <- pkt:
			default:
				metricPacketsDropped.Inc()
				atomic.AddUint64(&e.packetsDropped, 1)
			}
		}
	}
}

// sample keeps every ceil(1/rate)-th packet, counted deterministically
// from capture start, so a given rate always thins the stream by the
// same stride rather than by coin flip.
func (e *Engine) sample() bool {
	rate := e.cfg.SamplingRate
	if rate <= 0 || rate >= 1 {
		return true
	}
	stride := uint64(math.Ceil(1 / rate))
	n := atomic.AddUint64(&e.sampleCounter, 1)
	return (n-1)%stride == 0
}

// classifierLoop batches inbox packets (<=100 or every 10ms) and fans
// them out to a bounded worker pool for L7 extraction and flow-table
// accumulation.
func (e *Engine) classifierLoop(ctx context.Context) {
	defer e.captureWG.Done()

	sem := make(chan struct{}, classifierConcurrency)
	var batchWG sync.WaitGroup

	batch := make([]gopacket.Packet, 0, classifierBatchSize)
	ticker := time.NewTicker(classifierBatchInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		toSend := batch
		batch = make([]gopacket.Packet, 0, classifierBatchSize)

		sem <- struct{}{}
		batchWG.Add(1)
		go func(pkts []gopacket.Packet) {
			defer batchWG.Done()
			defer func() { <-sem }()
			for _, p := range pkts {
				e.classifyOne(p)
			}
		}(toSend)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			batchWG.Wait()
			return
		case pkt, ok := <-e.inbox:
			if !ok {
				flush()
				batchWG.Wait()
				return
			}
			batch = append(batch, pkt)
			if len(batch) >= classifierBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// classifyOne folds one packet into its flow: counters, quality
// metrics, L7 extraction, and device/ARP tracking.
func (e *Engine) classifyOne(pkt gopacket.Packet) {
	start := time.Now()
	defer func() {
		atomic.AddUint64(&e.packetsProcessed, 1)
		atomic.AddInt64(&e.processingNanos, time.Since(start).Nanoseconds())
	}()

	key, l2, l3i, l4 := packetKey(pkt)
	if key == nil {
		e.trackNonIPPacket(pkt)
		return
	}

	if !e.cfg.EnableIPv6 && l3i.Version == "IPv6" {
		return
	}
	if e.cfg.SkipLocalTraffic && isLoopbackIP(l3i.SrcIP) && isLoopbackIP(l3i.DstIP) {
		return
	}

	now := pkt.Metadata().Timestamp
	flow, created := e.table.getOrCreate(*key, now)
	text := e.table.lookupKey(*key)

	if created {
		flow.ID = uuid.NewString()
		if e.devices != nil {
			dev := e.devices.GetOrCreate(context.Background(), key.SrcIP, l2.SrcMAC, pkt)
			flow.DeviceID = dev.ID
		}
	}

	e.accumulate(flow, key, l3i, l4, pkt.Metadata().Length)
	updateQualityMetrics(flow, pkt, l4)
	extractL7(flow, pkt, e.ident, e.cfg, e.log)
	flow.LastSeen = now

	e.table.touch(text, flow, now)
	metricActiveFlows.Set(float64(e.table.len()))

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Kind: eventbus.FlowUpdate, Payload: flow})
	}
}

// trackNonIPPacket handles ARP, which carries device identity but no
// flow 5-tuple.
func (e *Engine) trackNonIPPacket(pkt gopacket.Packet) {
	if e.devices != nil && pkt.Layer(layers.LayerTypeARP) != nil {
		e.devices.ProcessARP(context.Background(), pkt)
	}
}

// accumulate folds direction-aware byte/packet counters and TTL into
// flow. Direction is "in" when this packet's destination is the local
// host, "out" otherwise — never derived from flow.Key.SrcIP, since the
// table's lookup key can reorder src/dst relative to the packet's own
// fields and carries no notion of which side is local.
func (e *Engine) accumulate(flow *models.Flow, key *models.FlowKey, l3 *models.Layer3, l4 *models.Layer4, length int) {
	incoming := l3 != nil && isLocalIP(l3.DstIP)
	if incoming {
		flow.BytesIn += uint64(length)
		flow.PacketsIn++
	} else {
		flow.BytesOut += uint64(length)
		flow.PacketsOut++
	}
	if l3 != nil && l3.TTL > 0 {
		flow.TTL = l3.TTL
	}
	_ = l4
}

// isLocalIP reports whether ip falls in a private, loopback, or
// link-local range, the same test the device registry and flow
// direction logic use to tell "our network" traffic from the wider
// internet.
func isLocalIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast()
}

func isLoopbackIP(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

// packetKey builds the flow 5-tuple for an IP packet. TCP and UDP key
// on their real ports; ICMP keys on port 0 in both directions so an
// echo exchange folds into one flow. Returns a nil key for packets
// with no IP layer (ARP) or an unkeyable transport.
func packetKey(pkt gopacket.Packet) (*models.FlowKey, *models.Layer2, *models.Layer3, *models.Layer4) {
	l2 := parser.ParseEthernet(pkt)
	if l2 == nil {
		l2 = &models.Layer2{}
	}

	l3 := parser.ParseIP(pkt)
	if l3 == nil {
		return nil, l2, nil, nil
	}

	l4 := parser.ParseTransport(pkt)
	if l4 == nil {
		if pkt.Layer(layers.LayerTypeICMPv4) == nil && pkt.Layer(layers.LayerTypeICMPv6) == nil {
			return nil, l2, l3, nil
		}
		l4 = &models.Layer4{Protocol: "ICMP"}
	}

	key := models.FlowKey{
		SrcIP:    l3.SrcIP,
		DstIP:    l3.DstIP,
		SrcPort:  uint16(l4.SrcPort),
		DstPort:  uint16(l4.DstPort),
		Protocol: l4.Protocol,
	}
	return &key, l2, l3, l4
}

// sweepLoop removes flows idle past the configured timeout, scores
// them, and enqueues them for the batch writer.
func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.sweepWG.Done()
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepOnce(time.Now())
		}
	}
}

func (e *Engine) sweepOnce(now time.Time) {
	for text, flow := range e.table.snapshot() {
		if now.Sub(flow.LastSeen) < e.idleTimeout {
			continue
		}
		e.finalize(flow)
		e.table.remove(text)
	}
	metricActiveFlows.Set(float64(e.table.len()))
}

// finalize enriches a flow leaving the active table (geolocation,
// threat classification) and hands it to the write queue. Classifying
// here keeps ThreatLevel and the resulting Threat record a pure
// function of the flow's final state; persisting the threat is left to
// writeBatch, which only does so once the flow itself is committed.
func (e *Engine) finalize(flow *models.Flow) {
	flow.State = models.FlowClosed

	if e.geoIP != nil {
		if geo, err := e.geoIP.Lookup(flow.Key.DstIP); err == nil && geo != nil {
			flow.DstCountry = geo.Country
			flow.DstCity = geo.City
			flow.DstASN = geo.ASN
		}
	}

	var threat *models.Threat
	if e.scorer != nil {
		_, threat = e.scorer.Classify(flow)
	}

	if e.devices != nil {
		e.devices.RecordFlow(context.Background(), flow)
	}

	metricFlowsFinalized.Inc()
	atomic.AddUint64(&e.flowsDetected, 1)

	select {
	case e.writeQueue <- pendingWrite{flow: flow, threat: threat}:
	default:
		e.log.Warn("write queue full, flow dropped from batch", zap.String("flow_id", flow.ID))
	}
}

// writeLoop batches finalized flows (<=50 or every 5s) into storage.
// A batch that fails to write once is retried once immediately; a
// second failure is logged and the batch is dropped rather than
// blocking the pipeline indefinitely. writeLoop terminates only when
// writeQueue is closed, so drain can push every remaining flow through
// before the final flush runs.
func (e *Engine) writeLoop(ctx context.Context) {
	defer e.writeWG.Done()

	batch := make([]pendingWrite, 0, e.batchSize)
	ticker := time.NewTicker(e.batchInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.writeBatch(batch)
		batch = make([]pendingWrite, 0, e.batchSize)
	}

	for {
		select {
		case pw, ok := <-e.writeQueue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, pw)
			if len(batch) >= e.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// writeBatch persists a batch of finalized flows, then persists each
// flow's pending threat — strictly in that order, since threats.flow_id
// is a foreign key into flows(id). A threat whose flow failed to write
// is never persisted either; it would violate the same constraint.
func (e *Engine) writeBatch(batch []pendingWrite) {
	start := time.Now()
	defer func() { metricBatchWriteDuration.Observe(time.Since(start).Seconds()) }()

	flows := make([]*models.Flow, len(batch))
	for i, pw := range batch {
		flows[i] = pw.flow
	}

	ctx := context.Background()
	if err := e.store.SaveFlowsBatch(ctx, flows); err != nil {
		e.log.Warn("batch write failed, retrying once", zap.Int("size", len(flows)), zap.Error(err))
		if err := e.store.SaveFlowsBatch(ctx, flows); err != nil {
			e.log.Error("batch write failed twice, dropping batch", zap.Int("size", len(flows)), zap.Error(err))
			return
		}
	}

	if e.scorer == nil {
		return
	}
	for _, pw := range batch {
		if pw.threat == nil {
			continue
		}
		if err := e.scorer.Persist(pw.threat); err != nil {
			e.log.Warn("threat persist failed", zap.String("flow_id", pw.flow.ID), zap.Error(err))
		}
	}
}

// drain runs the shutdown sequence: stop accepting new packets, flush
// every remaining active flow through finalize, and flush the write
// queue synchronously so no accumulated state is lost on exit.
func (e *Engine) drain() {
	if e.handle != nil {
		e.handle.Close()
	}

	for text, flow := range e.table.snapshot() {
		e.finalize(flow)
		e.table.remove(text)
	}
	close(e.writeQueue)
}
