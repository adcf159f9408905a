// Package gcfake implements a deterministic grabber.GraphicsContext for
// tests and examples, so GrabberCore's own logic (rate gating, ring
// publish, state save/restore ordering) can be exercised without a real
// GL context or window system, the same way internal/pipeline's tests
// exercise Pipeline against a fake Broadcaster instead of a live relay.
package gcfake

import (
	"errors"
	"sync"

	"github.com/ssrecorder/capturecore/grabber/gcontext"
	"github.com/ssrecorder/capturecore/internal/cursor"
)

// ErrReadPixels is returned by ReadPixelsBGRA when ReadErr is armed,
// simulating a single transient glReadPixels failure.
var ErrReadPixels = errors.New("gcfake: simulated read pixels failure")

// GraphicsContext is a fake implementing grabber.GraphicsContext. Every
// field is safe to set before use; SurfaceSize, ReadPixelsBGRA and the
// cursor methods are driven by its exported fields/functions so tests can
// script arbitrary sequences (size changes, transient errors, cursor
// visibility) deterministically.
type GraphicsContext struct {
	mu sync.Mutex

	VersionString string

	Width, Height uint32
	SizeErr       error

	// FillByte is written into every byte ReadPixelsBGRA produces,
	// incremented after each call so consecutive frames are
	// distinguishable in assertions.
	FillByte byte

	// ReadErr, if non-nil, is returned by ReadPixelsBGRA once and then
	// cleared, simulating a single transient glReadPixels failure.
	ReadErr error

	HasCursorExt bool
	Cursor       *cursor.Image
	CursorOK     bool
	RootX, RootY int
	TranslateOK  bool

	lastErr error

	saveCount, restoreCount, applyCount int
}

// New returns a fake sized to width x height, with no cursor extension.
func New(width, height uint32) *GraphicsContext {
	return &GraphicsContext{
		VersionString: "gcfake 1.0 (fake GL 4.6)",
		Width:         width,
		Height:        height,
		FillByte:      1,
	}
}

func (g *GraphicsContext) Version() string { return g.VersionString }

func (g *GraphicsContext) SurfaceSize() (width, height uint32, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SizeErr != nil {
		return 0, 0, g.SizeErr
	}
	return g.Width, g.Height, nil
}

// SaveState/RestoreState don't need a real pixel-store snapshot for the
// fake: GrabberCore only depends on save/apply/restore being observably
// ordered (spec §4.4 step 6), not on the snapshot's contents, so the
// generation counter doubles as the PackState payload.
func (g *GraphicsContext) SaveState() gcontext.PackState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveCount++
	return gcontext.PackState{PixelPackBuffer: g.saveCount}
}

func (g *GraphicsContext) ApplyCaptureState(stride uint32, front bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applyCount++
}

func (g *GraphicsContext) RestoreState(s gcontext.PackState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.restoreCount++
}

func (g *GraphicsContext) ReadPixelsBGRA(dst []byte, width, height, stride uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ReadErr != nil {
		err := g.ReadErr
		g.ReadErr = nil
		g.lastErr = err
		return err
	}
	for i := range dst {
		dst[i] = g.FillByte
	}
	g.FillByte++
	return nil
}

func (g *GraphicsContext) CursorExtensionAvailable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.HasCursorExt
}

func (g *GraphicsContext) CursorImage() (*cursor.Image, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Cursor, g.CursorOK
}

func (g *GraphicsContext) TranslateToRoot(x, y int) (rootX, rootY int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.RootX, g.RootY, g.TranslateOK
}

func (g *GraphicsContext) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.lastErr
	g.lastErr = nil
	return err
}

// Counts returns how many times SaveState/RestoreState/ApplyCaptureState
// have been called, for tests asserting GrabFrame's save/apply/restore
// ordering (spec §4.4 step 6).
func (g *GraphicsContext) Counts() (saves, applies, restores int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saveCount, g.applyCount, g.restoreCount
}
