package grabber

import (
	"github.com/ssrecorder/capturecore/internal/rategate"
	"github.com/ssrecorder/capturecore/internal/shmlayout"
)

// newRateGateFromHeader builds a rategate.Gate configured from the
// region's target_fps and LIMIT_FPS flag, per spec §4.2.
func newRateGateFromHeader(region *shmlayout.Region) *rategate.Gate {
	limitFPS := region.Flags()&shmlayout.FlagLimitFPS != 0
	return rategate.New(region.TargetFPS(), limitFPS)
}
