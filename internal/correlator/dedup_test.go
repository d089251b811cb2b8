/**
 * Duplicate Suppression Tests.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package correlator

import (
	"testing"
	"time"
)

func TestDedupSet_SameTimestampAndLengthIsDuplicate(t *testing.T) {
	d := NewDedupSet()
	ts := time.Now()

	if d.Seen(ts, 64) {
		t.Fatal("first sighting must not be reported as duplicate")
	}
	if !d.Seen(ts, 64) {
		t.Fatal("second identical sighting within the window must be a duplicate")
	}
}

func TestDedupSet_OutsideWindowIsNotDuplicate(t *testing.T) {
	d := NewDedupSet()
	ts := time.Now()

	d.Seen(ts, 64)
	if d.Seen(ts.Add(2*time.Millisecond), 64) {
		t.Fatal("sighting outside the dedup window must not be flagged a duplicate")
	}
}

func TestDedupSet_EvictsOverCapacity(t *testing.T) {
	d := NewDedupSet()
	base := time.Now()
	for i := 0; i < dedupCapacity+500; i++ {
		d.Seen(base.Add(time.Duration(i)*time.Second), i)
	}
	if d.Len() > dedupCapacity {
		t.Fatalf("expected len <= %d after overflow, got %d", dedupCapacity, d.Len())
	}
}
