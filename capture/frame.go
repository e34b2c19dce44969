package capture

import (
	"time"

	"github.com/ustreamer-go/ustreamer/v4l2"
)

// Frame is a single captured buffer handed back by Device.Grab. Data aliases
// the driver's mapped buffer directly; it stays valid only until Release is
// called, at which point the buffer is requeued and the driver may overwrite
// it on the next capture.
type Frame struct {
	// Data is the raw frame payload in the device's configured pixel format.
	Data []byte

	// Timestamp is the capture time reported by the driver for this buffer.
	Timestamp time.Time

	// Sequence is the driver's monotonically increasing frame counter. Gaps
	// indicate buffers the driver dropped before userspace could dequeue them.
	Sequence uint32

	// Flags carries the v4l2.BufFlag* bits the driver set on this buffer.
	Flags uint32

	// Index is the driver buffer slot this frame occupies, needed to
	// requeue it on Release.
	Index uint32

	dev      *Device
	released bool
}

// Release returns the frame's buffer to the driver's queue. It is safe to
// call more than once; only the first call has effect. Data must not be
// read after Release returns.
func (f *Frame) Release() error {
	if f.released {
		return nil
	}
	f.released = true
	f.Data = nil
	if f.dev == nil {
		return nil
	}
	return f.dev.release(f.Index)
}

// IsKeyFrame reports whether the driver marked this buffer as a keyframe.
func (f *Frame) IsKeyFrame() bool {
	return f.Flags&v4l2.BufFlagKeyFrame != 0
}

// IsPFrame reports whether the driver marked this buffer as a P-frame.
func (f *Frame) IsPFrame() bool {
	return f.Flags&v4l2.BufFlagPFrame != 0
}

// IsBFrame reports whether the driver marked this buffer as a B-frame.
func (f *Frame) IsBFrame() bool {
	return f.Flags&v4l2.BufFlagBFrame != 0
}

// HasError reports whether the driver flagged this buffer as errored; its
// Data is empty in that case.
func (f *Frame) HasError() bool {
	return f.Flags&v4l2.BufFlagError != 0
}
