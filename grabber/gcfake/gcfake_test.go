package gcfake

import (
	"testing"

	"github.com/ssrecorder/capturecore/grabber"
)

var _ grabber.GraphicsContext = (*GraphicsContext)(nil)

func TestReadPixelsBGRAFillsAndAdvances(t *testing.T) {
	gc := New(4, 2)
	dst := make([]byte, 4*4*2)
	if err := gc.ReadPixelsBGRA(dst, 4, 2, 16); err != nil {
		t.Fatalf("ReadPixelsBGRA: %v", err)
	}
	for i, b := range dst {
		if b != 1 {
			t.Fatalf("byte %d = %d, want 1", i, b)
		}
	}
	if err := gc.ReadPixelsBGRA(dst, 4, 2, 16); err != nil {
		t.Fatalf("ReadPixelsBGRA (second call): %v", err)
	}
	for i, b := range dst {
		if b != 2 {
			t.Fatalf("byte %d on second call = %d, want 2", i, b)
		}
	}
}

func TestReadPixelsBGRAErrorFiresOnce(t *testing.T) {
	gc := New(2, 2)
	gc.ReadErr = ErrReadPixels
	dst := make([]byte, 16)

	if err := gc.ReadPixelsBGRA(dst, 2, 2, 8); err != ErrReadPixels {
		t.Fatalf("first call err = %v, want ErrReadPixels", err)
	}
	if err := gc.ReadPixelsBGRA(dst, 2, 2, 8); err != nil {
		t.Fatalf("second call err = %v, want nil (ReadErr is one-shot)", err)
	}
	if got := gc.LastError(); got != ErrReadPixels {
		t.Errorf("LastError() = %v, want ErrReadPixels", got)
	}
	if got := gc.LastError(); got != nil {
		t.Errorf("LastError() after clear = %v, want nil", got)
	}
}

func TestSaveApplyRestoreCounted(t *testing.T) {
	gc := New(2, 2)
	saved := gc.SaveState()
	gc.ApplyCaptureState(8, false)
	gc.RestoreState(saved)

	saves, applies, restores := gc.Counts()
	if saves != 1 || applies != 1 || restores != 1 {
		t.Errorf("Counts() = (%d, %d, %d), want (1, 1, 1)", saves, applies, restores)
	}
}

func TestCursorUnavailableByDefault(t *testing.T) {
	gc := New(2, 2)
	if gc.CursorExtensionAvailable() {
		t.Error("CursorExtensionAvailable() = true, want false by default")
	}
	if img, ok := gc.CursorImage(); img != nil || ok {
		t.Errorf("CursorImage() = (%v, %v), want (nil, false) by default", img, ok)
	}
}
