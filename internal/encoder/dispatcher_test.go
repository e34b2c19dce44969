package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ustreamer-go/ustreamer/internal/frame"
	"github.com/ustreamer-go/ustreamer/v4l2"
)

func TestParseBackendCaseInsensitive(t *testing.T) {
	b, err := ParseBackend("cpu")
	require.NoError(t, err)
	assert.Equal(t, CPUJPEG, b)

	b, err = ParseBackend("M2M-Video")
	require.NoError(t, err)
	assert.Equal(t, M2MH264, b)

	_, err = ParseBackend("bogus")
	assert.Error(t, err)
}

func TestPrepareIsIdempotent(t *testing.T) {
	d := New(CPUJPEG, 85, H264Options{})
	tuple := PrepareTuple{Width: 640, Height: 480, Format: v4l2.PixelFmtYUYV, Stride: 1280}

	require.NoError(t, d.Prepare(tuple))
	first := d.prepared

	require.NoError(t, d.Prepare(tuple))
	assert.Equal(t, first, d.prepared)

	tuple.Width = 1280
	require.NoError(t, d.Prepare(tuple))
	assert.Equal(t, tuple, d.prepared)
}

func TestCompressCPUJPEGFromYUYV(t *testing.T) {
	d := New(CPUJPEG, 85, H264Options{})
	src := &frame.Frame{Width: 4, Height: 2, Format: v4l2.PixelFmtYUYV, Stride: 8}
	src.Set(make([]byte, 4*2*2))

	dest := frame.New()
	require.NoError(t, d.Compress(0, src, dest, false))
	assert.Equal(t, v4l2.PixelFmtJPEG, dest.Format)
	assert.True(t, dest.Key)
	assert.NotEmpty(t, dest.Data)
}

func TestCompressPassesThroughMJPEG(t *testing.T) {
	d := New(CPUJPEG, 85, H264Options{})
	src := &frame.Frame{Width: 4, Height: 2, Format: v4l2.PixelFmtMJPEG}
	src.Set([]byte{0xff, 0xd8, 0x00, 0xff, 0xd9})

	dest := frame.New()
	require.NoError(t, d.Compress(0, src, dest, false))
	assert.Equal(t, src.Data, dest.Data)
}

func TestHardwareFailureFallsBackPermanently(t *testing.T) {
	d := New(HWJPEG, 85, H264Options{})
	src := &frame.Frame{Width: 4, Height: 2, Format: v4l2.PixelFmtYUYV, Stride: 8}
	src.Set(make([]byte, 4*2*2))
	dest := frame.New()

	require.NoError(t, d.Compress(0, src, dest, false))
	assert.Equal(t, CPUJPEG, d.Backend(), "a hw failure must permanently switch to CPU JPEG")

	// second call should not attempt hw again and should still succeed
	require.NoError(t, d.Compress(0, src, dest, false))
}

func TestNoopCopiesFrameVerbatim(t *testing.T) {
	d := New(NOOP, 0, H264Options{})
	src := &frame.Frame{Width: 2, Height: 2, Format: v4l2.PixelFmtYUYV}
	src.Set([]byte{1, 2, 3, 4})
	dest := frame.New()

	require.NoError(t, d.Compress(0, src, dest, true))
	assert.Equal(t, src.Data, dest.Data)
	assert.True(t, dest.Key)
}
