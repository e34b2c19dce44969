// Package encoder implements the encoder dispatcher: a backend-selecting
// compress(src, dest, force_key) contract with per-frame fallback from a
// hardware backend to software JPEG on error.
package encoder

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ustreamer-go/ustreamer/internal/frame"
	"github.com/ustreamer-go/ustreamer/v4l2"
)

// Backend identifies an encoder back-end.
type Backend int

const (
	CPUJPEG Backend = iota
	HWJPEG
	M2MH264
	NOOP
)

// String renders the backend the way it is accepted on the CLI.
func (b Backend) String() string {
	switch b {
	case CPUJPEG:
		return "CPU"
	case HWJPEG:
		return "HW"
	case M2MH264:
		return "M2M-VIDEO"
	case NOOP:
		return "NOOP"
	default:
		return "unknown"
	}
}

// ParseBackend maps a case-insensitive CLI name to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CPU", "CPU-JPEG", "CPUJPEG":
		return CPUJPEG, nil
	case "HW", "HW-JPEG", "HWJPEG", "M2M-IMAGE":
		return HWJPEG, nil
	case "M2M-VIDEO", "M2M", "M2M-H264", "M2MH264":
		return M2MH264, nil
	case "NOOP":
		return NOOP, nil
	default:
		return 0, fmt.Errorf("encoder: unknown backend %q", name)
	}
}

// H264Options configures the M2M-H264 backend.
type H264Options struct {
	Bitrate int
	GOP     int

	// ForceSPSPPSOnKeyframe re-injects SPS/PPS on every keyframe instead of
	// relying on the encoder's own extradata reporting. A compatibility
	// knob for decoders (some Android MediaCodec builds) that mishandle
	// missing parameter sets; not needed by a spec-clean encoder. No code
	// reads this field: the M2M-H264 backend is a stub whose every Compress
	// falls back to CPUJPEG.
	ForceSPSPPSOnKeyframe bool
}

// PrepareTuple is the (width, height, format, stride, dma) tuple whose
// equality determines whether Prepare must redo work.
type PrepareTuple struct {
	Width  uint32
	Height uint32
	Format uint32
	Stride uint32
	DMA    bool
}

// Dispatcher selects a back-end, tracks its prepared tuple, and exposes the
// uniform compress contract. Once a hardware backend fails, Dispatcher
// permanently falls back to CPUJPEG for the rest of its own lifetime —
// the backend field is never mutated while a worker might be mid-encode;
// Compress reads and sets the atomic fallenBack flag instead.
type Dispatcher struct {
	backend Backend
	quality int
	h264    H264Options

	fallenBack atomic.Bool

	prepared   PrepareTuple
	isPrepared bool
}

// New returns a Dispatcher bound to the given backend and JPEG quality
// (1-100, only meaningful for CPUJPEG/HWJPEG).
func New(backend Backend, quality int, h264 H264Options) *Dispatcher {
	return &Dispatcher{backend: backend, quality: quality, h264: h264}
}

// Backend returns the backend currently in effect, accounting for a
// permanent fallback to CPUJPEG.
func (d *Dispatcher) Backend() Backend {
	if d.fallenBack.Load() {
		return CPUJPEG
	}
	return d.backend
}

// Prepare readies the dispatcher for the given tuple. It is idempotent:
// calling it twice with an equal tuple performs only the first preparation.
func (d *Dispatcher) Prepare(tuple PrepareTuple) error {
	if d.isPrepared && d.prepared == tuple {
		return nil
	}
	d.prepared = tuple
	d.isPrepared = true
	return nil
}

// Compress encodes src into dest using the active backend. forceKey, when
// true, requires the M2M-H264 backend to emit an I-frame regardless of GOP
// position. A hardware-backend failure permanently switches the dispatcher
// to CPUJPEG and the same call is retried once against it, so a single
// bad frame doesn't surface as a stream error.
func (d *Dispatcher) Compress(workerIndex int, src *frame.Frame, dest *frame.Frame, forceKey bool) error {
	backend := d.Backend()

	switch backend {
	case NOOP:
		dest.CopyFrom(src)
		dest.Key = forceKey || src.Key
		return nil

	case CPUJPEG:
		return d.compressCPUJPEG(src, dest, forceKey)

	case HWJPEG:
		if err := d.compressHWJPEG(src, dest, forceKey); err != nil {
			d.fallenBack.Store(true)
			return d.compressCPUJPEG(src, dest, forceKey)
		}
		return nil

	case M2MH264:
		if err := d.compressM2MH264(src, dest, forceKey); err != nil {
			d.fallenBack.Store(true)
			return d.compressCPUJPEG(src, dest, forceKey)
		}
		return nil

	default:
		return fmt.Errorf("encoder: worker %d: unknown backend %v", workerIndex, backend)
	}
}

func (d *Dispatcher) compressCPUJPEG(src *frame.Frame, dest *frame.Frame, forceKey bool) error {
	begin := time.Now()

	var data []byte
	var err error
	switch src.Format {
	case v4l2.PixelFmtMJPEG, v4l2.PixelFmtJPEG:
		data = src.Data
	default:
		data, err = convertToJPEG(src.Format, int(src.Width), int(src.Height), src.Data, d.quality)
		if err != nil {
			return fmt.Errorf("encoder: cpu jpeg: %w", err)
		}
	}

	dest.Set(data)
	dest.Width, dest.Height, dest.Stride = src.Width, src.Height, src.Stride
	dest.Format = v4l2.PixelFmtJPEG
	dest.Online = src.Online
	dest.Key = true // every JPEG frame is independently decodable
	dest.GrabTimestamp = src.GrabTimestamp
	dest.EncodeBeginTimestamp = begin
	dest.EncodeEndTimestamp = time.Now()
	return nil
}

// compressHWJPEG is a stub for a hardware JPEG pass-through encoder. Real
// hardware back-ends (OMX/MMAL/V4L2-M2M) are external collaborators
// described only through this contract; returning an error here is
// equivalent to "hardware unavailable" and triggers the CPU fallback path.
func (d *Dispatcher) compressHWJPEG(src *frame.Frame, dest *frame.Frame, forceKey bool) error {
	return fmt.Errorf("encoder: hw jpeg backend not available on this host")
}

// compressM2MH264 is a stub for a V4L2 M2M hardware H.264 encoder. Real
// M2M back-ends are external collaborators described only through this
// contract; returning an error triggers the permanent CPU-JPEG fallback.
func (d *Dispatcher) compressM2MH264(src *frame.Frame, dest *frame.Frame, forceKey bool) error {
	return fmt.Errorf("encoder: m2m h264 backend not available on this host")
}
