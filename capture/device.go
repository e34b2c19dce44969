package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sys "golang.org/x/sys/unix"

	"github.com/ustreamer-go/ustreamer/v4l2"
)

// ErrorRestartRequired signals that the current capture session can no
// longer make progress and must be reopened: a VIDIOC_DQEVENT reported
// SOURCE_CHANGE or EOS, or (outside persistent mode) the select wait timed
// out with no buffer ever becoming ready.
var ErrorRestartRequired = errors.New("capture: restart required")

// ErrorNoData signals that, in persistent mode, a grab's select wait timed
// out without a buffer becoming ready. Unlike ErrorRestartRequired this is
// not fatal to the session: the caller should simply grab again.
var ErrorNoData = errors.New("capture: no data")

// Device represents an opened V4L2 capture device streaming through
// memory-mapped buffers. Unlike a channel-fed reader, Device exposes a
// synchronous grab/release protocol: Grab blocks for the next frame and
// hands back a view directly onto the driver's mapped buffer; the caller
// must call Release once it is done so the buffer can be requeued.
type Device struct {
	mu sync.Mutex

	path   string
	fd     uintptr
	config config

	cap     v4l2.Capability
	cropCap v4l2.CropCapability

	buffers   [][]byte
	bufCount  uint32
	streaming bool
	grabbed   map[uint32]bool
	sequence  uint32

	sourceChangeSub *v4l2.EventSubscription
}

// Open opens the video device at path, queries its capabilities and applies
// the supplied options. It does not start streaming; call Start for that.
func Open(path string, options ...Option) (*Device, error) {
	fd, err := v4l2.OpenDevice(path, sys.O_RDWR|sys.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("device open: %w", err)
	}

	dev := &Device{path: path, fd: fd, grabbed: make(map[uint32]bool)}
	for _, o := range options {
		o(&dev.config)
	}

	cap, err := v4l2.GetCapability(fd)
	if err != nil {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device open: %s: %w", path, err)
	}
	dev.cap = cap

	if dev.config.bufSize == 0 {
		dev.config.bufSize = 4
	}

	if !cap.IsStreamingSupported() {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device open: %s: %w", path, v4l2.ErrorUnsupportedFeature)
	}
	if !cap.IsVideoCaptureSupported() {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device open: %s: %w", path, v4l2.ErrorUnsupportedFeature)
	}

	dev.config.ioType = v4l2.IOTypeMMAP

	if cropcap, err := v4l2.GetCropCapability(fd, v4l2.BufTypeVideoCapture); err == nil {
		dev.cropCap = cropcap
		_ = v4l2.SetCropRect(fd, cropcap.DefaultRect)
	}

	if dev.config.dvTimings {
		if err := dev.negotiateDVTimings(); err != nil {
			_ = v4l2.CloseDevice(fd)
			return nil, fmt.Errorf("device open: %s: dv-timings: %w", path, err)
		}
	}

	if dev.config.pixFormat != (v4l2.PixFormat{}) {
		if err := dev.SetPixFormat(dev.config.pixFormat); err != nil {
			_ = v4l2.CloseDevice(fd)
			return nil, fmt.Errorf("device open: %s: set format: %w", path, err)
		}
	} else {
		pixFmt, err := v4l2.GetPixFormat(fd)
		if err != nil {
			_ = v4l2.CloseDevice(fd)
			return nil, fmt.Errorf("device open: %s: get default format: %w", path, err)
		}
		dev.config.pixFormat = pixFmt
	}

	if dev.config.fps != 0 {
		if err := dev.SetFrameRate(dev.config.fps); err != nil {
			_ = v4l2.CloseDevice(fd)
			return nil, fmt.Errorf("device open: %s: set fps: %w", path, err)
		}
	} else if fps, err := dev.GetFrameRate(); err == nil {
		dev.config.fps = fps
	}

	return dev, nil
}

// negotiateDVTimings implements the spec's --dv-timings open sequence:
// VIDIOC_QUERY_DV_TIMINGS autodetects the incoming signal and
// VIDIOC_S_DV_TIMINGS applies it; ENOLINK/ENOLCK report no signal or an
// unsettled source. Devices without DV-timings support fall back to
// VIDIOC_QUERYSTD/VIDIOC_S_STD for analog standard detection. Either path
// ends by subscribing to V4L2_EVENT_SOURCE_CHANGE so Grab notices when the
// source changes again.
func (d *Device) negotiateDVTimings() error {
	switch timings, err := v4l2.QueryDVTimings(d.fd); {
	case err == nil:
		if serr := v4l2.SetDVTimings(d.fd, timings); serr != nil {
			return fmt.Errorf("set dv timings: %w", serr)
		}
	case errors.Is(err, v4l2.ErrorNoSignal), errors.Is(err, v4l2.ErrorNoSync):
		return err
	default:
		stdID, qerr := v4l2.QueryStandardID(d.fd)
		if qerr != nil {
			return fmt.Errorf("query standard: %w", qerr)
		}
		if serr := v4l2.SetStandardID(d.fd, stdID); serr != nil {
			return fmt.Errorf("set standard: %w", serr)
		}
	}

	sub := v4l2.NewEventSubscription(v4l2.EventSourceChange)
	if err := v4l2.SubscribeEvent(d.fd, sub); err != nil {
		return fmt.Errorf("subscribe source change: %w", err)
	}
	d.sourceChangeSub = sub
	return nil
}

// Name returns the file system path of the device.
func (d *Device) Name() string { return d.path }

// Fd returns the file descriptor of the opened device.
func (d *Device) Fd() uintptr { return d.fd }

// Capability returns the capabilities of the video device.
func (d *Device) Capability() v4l2.Capability { return d.cap }

// BufferCount returns the number of driver buffers requested/allocated.
func (d *Device) BufferCount() uint32 { return d.bufCount }

// Streaming reports whether the device is currently streaming.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Start allocates and maps driver buffers, queues them, and turns streaming
// on. Start is idempotent: calling it while already streaming is a no-op.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming {
		return nil
	}

	bufReq, err := v4l2.InitBuffers(d.fd, d.config.bufSize)
	if err != nil {
		return fmt.Errorf("device: request buffers: %w", err)
	}
	d.bufCount = bufReq.Count

	buffers := make([][]byte, d.bufCount)
	for i := uint32(0); i < d.bufCount; i++ {
		buf, err := v4l2.GetBuffer(d.fd, i)
		if err != nil {
			unmapAll(buffers[:i])
			return fmt.Errorf("device: query buffer %d: %w", i, err)
		}
		mapped, err := v4l2.MapMemoryBuffer(d.fd, int64(buf.Info.Offset), int(buf.Length))
		if err != nil {
			unmapAll(buffers[:i])
			return fmt.Errorf("device: map buffer %d: %w", i, err)
		}
		buffers[i] = mapped
	}
	d.buffers = buffers

	for i := uint32(0); i < d.bufCount; i++ {
		if _, err := v4l2.QueueBuffer(d.fd, i); err != nil {
			return fmt.Errorf("device: queue buffer %d: %w", i, err)
		}
	}

	if err := v4l2.StreamOn(d.fd); err != nil {
		return fmt.Errorf("device: stream on: %w", err)
	}

	d.streaming = true
	d.grabbed = make(map[uint32]bool)
	return nil
}

func unmapAll(buffers [][]byte) {
	for _, b := range buffers {
		if b != nil {
			_ = v4l2.UnmapMemoryBuffer(b)
		}
	}
}

// Stop turns streaming off and unmaps all buffers. Any frame currently held
// by a caller (not yet Released) becomes invalid.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.streaming {
		return nil
	}

	err := v4l2.StreamOff(d.fd)
	unmapAll(d.buffers)
	d.buffers = nil
	d.streaming = false
	d.grabbed = make(map[uint32]bool)
	if err != nil {
		return fmt.Errorf("device: stream off: %w", err)
	}
	return nil
}

// Close stops the stream, if active, and closes the device file descriptor.
func (d *Device) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	return v4l2.CloseDevice(d.fd)
}

// Grab implements the spec's grab protocol: select on read_fds ∪ error_fds,
// react to a queued VIDIOC_DQEVENT on the error side, and on the read side
// repeatedly VIDIOC_DQBUF while the driver has more ready, keeping only the
// freshest valid buffer and requeuing every buffer it supersedes (skipped)
// or rejects (invalid) without ever surfacing them to the caller. The
// returned Frame's Data aliases the driver's mapped buffer directly (no
// copy); the caller MUST call Release once done reading it so the buffer
// can be requeued.
func (d *Device) Grab(ctx context.Context) (*Frame, error) {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return nil, fmt.Errorf("device: grab: %w", errors.New("device not streaming"))
	}
	fd := d.fd
	d.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		readReady, excReady, waitErr := v4l2.WaitForDeviceEvent(fd, 2*time.Second)
		if waitErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isTimeoutErr(waitErr) {
				if d.config.persistent {
					return nil, ErrorNoData
				}
				return nil, ErrorRestartRequired
			}
			return nil, fmt.Errorf("device: grab: wait: %w", waitErr)
		}

		if excReady {
			if restart := d.handleEvent(fd); restart {
				return nil, ErrorRestartRequired
			}
			continue
		}
		if !readReady {
			continue
		}

		buf, ok, err := d.drainBuffers(fd)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		d.mu.Lock()
		d.grabbed[buf.Index] = true
		var data []byte
		if buf.Flags&v4l2.BufFlagError == 0 && int(buf.Index) < len(d.buffers) {
			data = d.buffers[buf.Index][:buf.BytesUsed]
		}
		d.sequence++
		d.mu.Unlock()

		return &Frame{
			Data:      data,
			Timestamp: time.Unix(int64(buf.Timestamp.Sec), int64(buf.Timestamp.Usec)*1000),
			Sequence:  buf.Sequence,
			Flags:     buf.Flags,
			Index:     buf.Index,
			dev:       d,
		}, nil
	}
}

// handleEvent dequeues a pending event after select reports fd exceptional
// and reports whether it requires a session restart (SOURCE_CHANGE, EOS).
func (d *Device) handleEvent(fd uintptr) bool {
	ev, err := v4l2.DequeueEvent(fd)
	if err != nil {
		return false
	}
	switch ev.GetType() {
	case v4l2.EventSourceChange, v4l2.EventEOS:
		return true
	default:
		return false
	}
}

// drainBuffers repeatedly VIDIOC_DQBUFs while the driver has more ready,
// validating each and keeping only the freshest. Buffers it rejects
// (invalid) or supersedes (skipped) are requeued immediately and never
// returned to the caller. ok is false if every ready buffer was invalid.
func (d *Device) drainBuffers(fd uintptr) (kept v4l2.Buffer, ok bool, err error) {
	for {
		buf, derr := v4l2.DequeueBuffer(fd)
		if derr != nil {
			if errors.Is(derr, v4l2.ErrorTemporary) {
				return kept, ok, nil
			}
			return v4l2.Buffer{}, false, fmt.Errorf("device: grab: dequeue: %w", derr)
		}

		if !d.validBuffer(buf) {
			_, _ = v4l2.QueueBuffer(fd, buf.Index)
			continue
		}

		if ok {
			_, _ = v4l2.QueueBuffer(fd, kept.Index) // supersede: requeue the previous as skipped
		}
		kept, ok = buf, true
	}
}

// validBuffer applies the spec's per-buffer acceptance check: at least
// minFrameSize bytes, with a marker-validated JPEG payload for MJPEG/JPEG
// captures.
func (d *Device) validBuffer(buf v4l2.Buffer) bool {
	if buf.Flags&v4l2.BufFlagError != 0 {
		return false
	}
	if int(buf.Index) >= len(d.buffers) {
		return false
	}
	data := d.buffers[buf.Index][:buf.BytesUsed]
	return ValidateFrame(data, d.config.pixFormat.PixelFormat, d.config.minFrameSize)
}

func isTimeoutErr(err error) bool {
	return err != nil && err.Error() == "wait for device ready: timeout"
}

// release requeues a grabbed buffer back with the driver. It is called by
// Frame.Release and is a no-op if the buffer was already released or the
// device has since stopped streaming.
func (d *Device) release(index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.grabbed[index] {
		return nil
	}
	delete(d.grabbed, index)

	if !d.streaming {
		return nil
	}
	if _, err := v4l2.QueueBuffer(d.fd, index); err != nil {
		return fmt.Errorf("device: release buffer %d: %w", index, err)
	}
	return nil
}

// ExportBuffer exports the mapped buffer at index as a DMA-BUF file
// descriptor, for zero-copy handoff to a downstream consumer (an M2M
// encoder or the DRM sink). The caller owns the returned fd.
func (d *Device) ExportBuffer(index uint32) (int, error) {
	return v4l2.ExportDMABuffer(d.fd, index)
}
