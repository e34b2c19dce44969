package drmsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mkMode(w, h uint16) drmModeModeInfo {
	return drmModeModeInfo{Hdisplay: w, Vdisplay: h}
}

func TestPickModePrefersExactMatch(t *testing.T) {
	modes := []drmModeModeInfo{mkMode(1920, 1080), mkMode(1280, 720), mkMode(640, 480)}
	got := pickMode(modes, 1280, 720)
	assert.EqualValues(t, 1280, got.Hdisplay)
	assert.EqualValues(t, 720, got.Vdisplay)
}

func TestPickModeFallsBackToEqualWidthSmallerHeight(t *testing.T) {
	modes := []drmModeModeInfo{mkMode(1920, 1080), mkMode(1920, 1200)}
	got := pickMode(modes, 1920, 900)
	assert.EqualValues(t, 1920, got.Hdisplay)
	assert.EqualValues(t, 1080, got.Vdisplay, "should pick the tallest mode still under the requested height")
}

func TestPickModeFallsBackToFirstMode(t *testing.T) {
	modes := []drmModeModeInfo{mkMode(3840, 2160), mkMode(1920, 1080)}
	got := pickMode(modes, 100, 100)
	assert.EqualValues(t, 3840, got.Hdisplay)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OK", StateOK.String())
	assert.Equal(t, "NO_DISPLAY", StateNoDisplay.String())
}

func TestDrawBannerPaintsWithinBounds(t *testing.T) {
	width, height, pitch := 64, 16, 64*4
	buf := make([]byte, pitch*height)
	drawBanner(buf, width, height, pitch, "NO SIGNAL")

	var lit int
	for i := 0; i < len(buf); i += 4 {
		if buf[i] != 0 {
			lit++
		}
	}
	assert.Greater(t, lit, 0, "banner should paint at least some pixels")
}

func TestDrawBannerIgnoresUnknownGlyphs(t *testing.T) {
	buf := make([]byte, 4*4*4)
	assert.NotPanics(t, func() {
		drawBanner(buf, 4, 4, 16, "?!")
	})
}
