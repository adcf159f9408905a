package muxer

import "sync"

// sharedStats is Shared from spec §4.5: cumulative output size and a
// periodically recomputed instantaneous bit rate, guarded by its own
// short-held mutex, disjoint from any per-stream queue lock.
type sharedStats struct {
	mu sync.Mutex

	totalBytes int64
	bitRate    float64

	havePrevious  bool
	previousPTS   float64
	previousBytes int64
}

// update recomputes totalBytes from the writer's current position and
// buffered bytes, then recomputes bitRate once at least ~1 second of
// presentation time has elapsed since the last anchor, per spec §4.5
// step 7's `0.999999` threshold.
func (s *sharedStats) update(filePos, bufferedBytes int64, pts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalBytes = filePos + bufferedBytes

	if !s.havePrevious {
		s.previousPTS = pts
		s.previousBytes = s.totalBytes
		s.havePrevious = true
		return
	}

	if dt := pts - s.previousPTS; dt > 0.999999 {
		s.bitRate = float64(s.totalBytes-s.previousBytes) * 8 / dt
		s.previousPTS = pts
		s.previousBytes = s.totalBytes
	}
}

// Snapshot returns a point-in-time copy of the shared statistics.
func (s *sharedStats) Snapshot() (totalBytes int64, bitRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes, s.bitRate
}
