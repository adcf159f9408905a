// Package gcontext holds the GrabberCore/GraphicsContext boundary types
// in their own leaf package so that fakes implementing GraphicsContext
// (e.g. grabber/gcfake) can depend on them without importing the
// grabber package itself, avoiding an import cycle with grabber's
// in-package tests.
package gcontext

import "github.com/ssrecorder/capturecore/internal/cursor"

// PackState snapshots every piece of pixel-pack state that ReadPixelsBGRA
// may observe, per spec §4.4 step 6. GrabberCore saves this before
// applying its own capture state and restores it on every exit path.
type PackState struct {
	PixelPackBuffer int
	DrawFramebuffer int
	ReadFramebuffer int
	SwapBytes       bool
	RowLength       int
	ImageHeight     int
	SkipPixels      int
	SkipRows        int
	SkipImages      int
	PackAlignment   int
	ReadBuffer      int
}

// GraphicsContext is the boundary between GrabberCore and the graphics
// API / window system it runs inside. The host process, its GL context,
// and X11/XFixes are external collaborators (spec §1); this interface
// captures exactly the operations spec §4.4 enumerates so GrabberCore's
// own logic (state save/restore ordering, rate gating, ring publish) can
// be exercised without a real GL context, the same way
// internal/pipeline.Pipeline is decoupled from distribution.Relay by its
// Broadcaster interface.
type GraphicsContext interface {
	// Version returns a diagnostic graphics-API version string. Called
	// lazily, once, per spec §4.4 step 1.
	Version() string

	// SurfaceSize queries current surface geometry.
	SurfaceSize() (width, height uint32, err error)

	// SaveState snapshots pixel-pack state that capture will disturb.
	SaveState() PackState

	// ApplyCaptureState neutralizes pixel-pack state for a readback of
	// the given stride (in bytes), reading from the front buffer
	// instead of back when front is true.
	ApplyCaptureState(stride uint32, front bool)

	// RestoreState restores exactly what SaveState returned.
	RestoreState(PackState)

	// ReadPixelsBGRA reads the current framebuffer into dst as BGRA
	// bytes, bottom-row-first, at the given stride.
	ReadPixelsBGRA(dst []byte, width, height, stride uint32) error

	// CursorExtensionAvailable reports whether the cursor-query
	// extension (e.g. XFixes) is usable. GrabberCore calls it at
	// construction (to warn once) and again on every frame before
	// compositing the cursor.
	CursorExtensionAvailable() bool

	// CursorImage fetches the current cursor bitmap. A false return
	// means "no overlay, no error" (spec §4.3/§9): fetch failure is
	// non-fatal.
	CursorImage() (*cursor.Image, bool)

	// TranslateToRoot converts window-relative coordinates to root
	// coordinates. A false return means the translation failed and the
	// cursor overlay for this frame should be skipped.
	TranslateToRoot(x, y int) (rootX, rootY int, ok bool)

	// LastError returns and clears any graphics-API error observed
	// since the last call, used only when debug logging is enabled
	// (spec §4.4 step 11: "logged when debug enabled but not fatal").
	LastError() error
}
