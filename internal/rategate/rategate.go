// Package rategate implements the frame-rate admission gate used by
// GrabberCore: admit, throttle-and-admit, or drop a grab attempt
// depending on target_fps and the LIMIT_FPS flag.
package rategate

import "time"

// Clock abstracts time.Now/time.Sleep so tests can drive the gate
// without real wall-clock delay.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// realClock is the default Clock, backed by the time package.
type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Gate admits frames at a target rate, either by dropping late attempts
// or by sleeping to catch up, per spec §4.2.
type Gate struct {
	clock         Clock
	targetFPS     uint32
	limitFPS      bool
	nextFrameTime int64 // microseconds
}

// New constructs a Gate for targetFPS (0 = unthrottled) and limitFPS
// (true = sleep to hit the target rate rather than dropping late
// frames). next_frame_time is initialized to "now".
func New(targetFPS uint32, limitFPS bool) *Gate {
	return newWithClock(targetFPS, limitFPS, realClock{})
}

func newWithClock(targetFPS uint32, limitFPS bool, clock Clock) *Gate {
	return &Gate{
		clock:         clock,
		targetFPS:     targetFPS,
		limitFPS:      limitFPS,
		nextFrameTime: micros(clock.Now()),
	}
}

func micros(t time.Time) int64 {
	return t.UnixNano() / int64(time.Microsecond)
}

// Admit evaluates one grab attempt and returns whether it is admitted,
// and the timestamp (microseconds) to record for it if so.
func (g *Gate) Admit() (timestampMicros int64, admitted bool) {
	if g.targetFPS == 0 {
		return micros(g.clock.Now()), true
	}

	deltaMicros := int64(1_000_000) / int64(g.targetFPS)
	t := micros(g.clock.Now())

	if t < g.nextFrameTime {
		if g.limitFPS {
			g.clock.Sleep(time.Duration(g.nextFrameTime-t) * time.Microsecond)
			t = micros(g.clock.Now())
		} else {
			return 0, false
		}
	}

	if g.nextFrameTime+deltaMicros > t {
		g.nextFrameTime = g.nextFrameTime + deltaMicros
	} else {
		g.nextFrameTime = t
	}
	return t, true
}
