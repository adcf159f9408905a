package grabber

import "github.com/ssrecorder/capturecore/grabber/gcontext"

// PackState snapshots every piece of pixel-pack state that ReadPixelsBGRA
// may observe, per spec §4.4 step 6. GrabberCore saves this before
// applying its own capture state and restores it on every exit path.
type PackState = gcontext.PackState

// GraphicsContext is the boundary between GrabberCore and the graphics
// API / window system it runs inside. See gcontext.GraphicsContext for
// the full contract; it lives in its own package so fakes implementing
// it don't need to import grabber.
type GraphicsContext = gcontext.GraphicsContext
