/**
 * Active Flow Table.
 *
 * Wraps the bounded caches the FlowEngine needs to hold state across
 * packets without growing without limit: the active flow table itself
 * (evicted oldest-last_seen-first) and the flow-key string cache
 * that avoids re-formatting the same FlowKey.String() on every packet.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package flowengine

import (
	"time"

	"github.com/kleaSCM/sentinel/internal/cache"
	"github.com/kleaSCM/sentinel/internal/models"
)

const (
	activeFlowTableCapacity = 10000
	activeFlowEvictFrac     = 0.20
	flowKeyCacheCapacity    = 5000
)

// flowTable holds every flow currently accumulating state, keyed by
// its canonical string key.
type flowTable struct {
	active  *cache.ActivityCache[string, *models.Flow]
	keyText *cache.LRUCache[models.FlowKey, string]
}

func newFlowTable() *flowTable {
	return &flowTable{
		active:  cache.NewActivityCache[string, *models.Flow](activeFlowTableCapacity, activeFlowEvictFrac),
		keyText: cache.NewLRUCache[models.FlowKey, string](flowKeyCacheCapacity),
	}
}

// canonicalKey returns the table-slot string for a given 5-tuple,
// normalizing direction so A->B and B->A hash to the same slot: the
// string-smaller (srcIP, srcPort) pair is always treated as the
// canonical source for lookup purposes only. This reordering is never
// exposed as a flow's identity — flow.Key keeps the first-seen
// packet's true src/dst orientation, since direction-sensitive logic
// (accumulate's in/out byte counters, the threat scorer's dst_port
// checks) needs the initiator's real source and the true destination,
// not an arbitrary string ordering.
func canonicalKey(k models.FlowKey) string {
	if !less(k.SrcIP, k.SrcPort, k.DstIP, k.DstPort) {
		k = models.FlowKey{SrcIP: k.DstIP, DstIP: k.SrcIP, SrcPort: k.DstPort, DstPort: k.SrcPort, Protocol: k.Protocol}
	}
	return k.String()
}

func less(ip1 string, port1 uint16, ip2 string, port2 uint16) bool {
	if ip1 != ip2 {
		return ip1 < ip2
	}
	return port1 < port2
}

// getOrCreate returns the flow for this packet's 5-tuple, creating one
// if this is the first packet seen for it. A newly created flow keeps
// k's own orientation (the first packet's true src/dst), not the
// canonicalized lookup key.
func (t *flowTable) getOrCreate(k models.FlowKey, now time.Time) (*models.Flow, bool) {
	text := t.lookupKey(k)

	if f, ok := t.active.Get(text); ok {
		return f, false
	}

	f := &models.Flow{
		Key:       k,
		FirstSeen: now,
		LastSeen:  now,
		State:     models.FlowActive,
		Protocol:  k.Protocol,
	}
	t.active.Touch(text, f, now)
	return f, true
}

func (t *flowTable) lookupKey(k models.FlowKey) string {
	if text, ok := t.keyText.Get(k); ok {
		return text
	}
	text := canonicalKey(k)
	t.keyText.Add(k, text)
	return text
}

func (t *flowTable) touch(text string, f *models.Flow, now time.Time) {
	t.active.Touch(text, f, now)
}

func (t *flowTable) remove(text string) {
	t.active.Delete(text)
}

// snapshot returns every active flow's key and value, for the idle
// sweeper to scan under one lock acquisition.
func (t *flowTable) snapshot() map[string]*models.Flow {
	return t.active.Snapshot()
}

func (t *flowTable) len() int {
	return t.active.Len()
}
