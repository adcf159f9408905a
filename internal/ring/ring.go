// Package ring implements the lock-free SPSC ring-index arithmetic shared
// by GrabberCore (producer) and the out-of-process consumer (reader).
// Occupancy is computed with the doubled-modulus trick described in
// spec §4.1/§9: indices increase monotonically modulo 2N, which lets the
// ring tell full from empty without an auxiliary flag or a CAS.
package ring

import "github.com/ssrecorder/capturecore/internal/shmlayout"

// Control provides the four ring operations over a shmlayout.Region's
// read_pos/write_pos fields. Exactly one Control should be used from the
// producer side and one from the consumer side — it is not itself
// synchronized beyond the acquire/release discipline of the underlying
// atomics, matching the SPSC contract.
type Control struct {
	region *shmlayout.Region
	n      uint32
}

// New returns a Control bound to region's ring of region.RingSize() slots.
func New(region *shmlayout.Region) *Control {
	return &Control{region: region, n: region.RingSize()}
}

// Occupancy returns (write_pos - read_pos) mod 2N, in [0, N].
func (c *Control) Occupancy() uint32 {
	write := c.region.WritePos()
	read := c.region.ReadPos()
	return positiveMod(int64(write)-int64(read), int64(c.n)*2)
}

func positiveMod(v, m int64) uint32 {
	r := v % m
	if r < 0 {
		r += m
	}
	return uint32(r)
}

// TryReserveWrite returns the slot index to write into, or false if the
// ring is full (occupancy == N). The full-ring policy is silent drop:
// the caller simply does not get a slot and must not advance write_pos.
func (c *Control) TryReserveWrite() (slot uint32, ok bool) {
	write := c.region.WritePos()
	if c.Occupancy() >= c.n {
		return 0, false
	}
	return write % c.n, true
}

// CommitWrite advances write_pos modulo 2N, with release ordering so that
// the slot's descriptor and payload writes are visible before the reader
// observes the new write_pos.
func (c *Control) CommitWrite() {
	write := c.region.WritePos()
	c.region.StoreWritePos((write + 1) % (c.n * 2))
}

// TryReserveRead returns the slot index to read from, or false if the
// ring is empty (write_pos == read_pos).
func (c *Control) TryReserveRead() (slot uint32, ok bool) {
	read := c.region.ReadPos()
	if c.Occupancy() == 0 {
		return 0, false
	}
	return read % c.n, true
}

// CommitRead advances read_pos modulo 2N, with release ordering so that
// slot payload reads complete before the writer observes the new
// read_pos.
func (c *Control) CommitRead() {
	read := c.region.ReadPos()
	c.region.StoreReadPos((read + 1) % (c.n * 2))
}
