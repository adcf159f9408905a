package ring

import (
	"testing"

	"github.com/ssrecorder/capturecore/internal/shmlayout"
	"github.com/stretchr/testify/assert"
)

func newTestRegion(t *testing.T, n, maxBytes uint32) *shmlayout.Region {
	t.Helper()
	buf := make([]byte, shmlayout.MainSegmentSize(n))
	// Poke ring_buffer_size/max_bytes in directly before handing to
	// NewRegion, mirroring how the consumer initializes the segment
	// before the grabber ever attaches.
	r, err := shmlayout.NewRegionForTest(buf, n, maxBytes)
	if err != nil {
		t.Fatalf("NewRegionForTest: %v", err)
	}
	return r
}

func TestRingRoundTrip(t *testing.T) {
	// Scenario 1 from spec §8: N=4, 10 writes/reads in lockstep.
	region := newTestRegion(t, 4, 64)
	c := New(region)

	for i := 0; i < 10; i++ {
		slot, ok := c.TryReserveWrite()
		assert.True(t, ok, "write %d should succeed", i)
		assert.Equal(t, uint32(i%4), slot)
		c.CommitWrite()

		rslot, ok := c.TryReserveRead()
		assert.True(t, ok, "read %d should succeed", i)
		assert.Equal(t, slot, rslot)
		c.CommitRead()
	}

	// Both indices wrap modulo 2N = 8, so 10 advances leave them at 2.
	assert.EqualValues(t, 10%(2*4), region.WritePos())
	assert.EqualValues(t, 10%(2*4), region.ReadPos())
	assert.Equal(t, uint32(0), c.Occupancy())
}

func TestRingOverflow(t *testing.T) {
	// Scenario 2 from spec §8: N=2, 5 writes with no consumer.
	region := newTestRegion(t, 2, 64)
	c := New(region)

	successes := 0
	for i := 0; i < 5; i++ {
		if _, ok := c.TryReserveWrite(); ok {
			c.CommitWrite()
			successes++
		}
	}

	assert.Equal(t, 2, successes)
	assert.EqualValues(t, 2, region.WritePos())
	assert.EqualValues(t, 0, region.ReadPos())
	assert.Equal(t, uint32(2), c.Occupancy())
}

func TestOccupancyNeverHoldsSlotForBothSides(t *testing.T) {
	// P1: across this interleaving, occupancy stays in [0,N]. Occupancy
	// never exceeding N is what keeps the writer from reserving a slot
	// the reader still holds.
	region := newTestRegion(t, 4, 64)
	c := New(region)

	ops := []bool{true, true, false, true, false, false, true, true, false, false}
	for _, isWrite := range ops {
		occBefore := c.Occupancy()
		assert.LessOrEqual(t, occBefore, uint32(4))
		if isWrite {
			if _, ok := c.TryReserveWrite(); ok {
				c.CommitWrite()
			}
		} else {
			if _, ok := c.TryReserveRead(); ok {
				c.CommitRead()
			}
		}
	}
	assert.LessOrEqual(t, c.Occupancy(), uint32(4))
}

func TestEmptyRingReadIsNone(t *testing.T) {
	region := newTestRegion(t, 4, 64)
	c := New(region)

	_, ok := c.TryReserveRead()
	assert.False(t, ok)
}

func TestWrapAroundPastDoubledModulus(t *testing.T) {
	// Drive write_pos/read_pos past 2N to confirm wraparound arithmetic
	// holds (doubled-modulus trick, spec §9).
	region := newTestRegion(t, 3, 64)
	c := New(region)

	for i := 0; i < 50; i++ {
		if _, ok := c.TryReserveWrite(); ok {
			c.CommitWrite()
		}
		if _, ok := c.TryReserveRead(); ok {
			c.CommitRead()
		}
		assert.LessOrEqual(t, c.Occupancy(), uint32(3))
	}
}
