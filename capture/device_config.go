package capture

import (
	"github.com/ustreamer-go/ustreamer/v4l2"
)

// config holds device configuration parameters.
// This type is unexported and managed by functional options.
type config struct {
	ioType       v4l2.IOType
	pixFormat    v4l2.PixFormat
	bufSize      uint32
	fps          uint32
	bufType      uint32
	minFrameSize int
	persistent   bool
	dvTimings    bool
}

// Option is a functional option type for configuring a Device.
// It's a function that takes a pointer to a config struct and modifies it.
type Option func(*config)

// WithIOType creates an Option to set the I/O type for the device.
// Example: WithIOType(v4l2.IOTypeMMAP)
func WithIOType(ioType v4l2.IOType) Option {
	return func(o *config) {
		o.ioType = ioType
	}
}

// WithPixFormat creates an Option to set the pixel format for the device.
// This includes parameters like width, height, and pixel format code.
// Example: WithPixFormat(v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixelFmtMJPEG})
func WithPixFormat(pixFmt v4l2.PixFormat) Option {
	return func(o *config) {
		o.pixFormat = pixFmt
	}
}

// WithBufferSize creates an Option to set the number of buffers to be used for streaming.
// Example: WithBufferSize(4)
func WithBufferSize(size uint32) Option {
	return func(o *config) {
		o.bufSize = size
	}
}

// WithFPS creates an Option to set the desired frames per second (FPS) for the device.
// Example: WithFPS(30)
func WithFPS(fps uint32) Option {
	return func(o *config) {
		o.fps = fps
	}
}

// WithVideoCaptureEnabled creates an Option to configure the device for video capture.
// This sets the buffer type to v4l2.BufTypeVideoCapture.
func WithVideoCaptureEnabled() Option {
	return func(o *config) {
		o.bufType = v4l2.BufTypeVideoCapture
	}
}

// WithVideoOutputEnabled creates an Option to configure the device for video output.
// This sets the buffer type to v4l2.BufTypeVideoOutput.
func WithVideoOutputEnabled() Option {
	return func(o *config) {
		o.bufType = v4l2.BufTypeVideoOutput
	}
}

// WithMinFrameSize creates an Option setting the smallest buffer, in bytes,
// Grab will hand back instead of silently requeuing as invalid.
func WithMinFrameSize(size int) Option {
	return func(o *config) {
		o.minFrameSize = size
	}
}

// WithPersistent creates an Option that keeps a capture session alive across
// a no-data select timeout instead of treating it as restart-required.
func WithPersistent(persistent bool) Option {
	return func(o *config) {
		o.persistent = persistent
	}
}

// WithDVTimings creates an Option that negotiates DV timings during Open
// (VIDIOC_QUERY_DV_TIMINGS/VIDIOC_S_DV_TIMINGS, falling back to
// VIDIOC_QUERYSTD) and subscribes to V4L2_EVENT_SOURCE_CHANGE.
func WithDVTimings(enabled bool) Option {
	return func(o *config) {
		o.dvTimings = enabled
	}
}
