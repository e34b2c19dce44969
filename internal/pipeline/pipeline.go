// Package pipeline orchestrates capture → worker pool → exposed frame, the
// stream pipeline from spec §4.5: it runs the capture loop, schedules
// encode jobs, applies fluency admission, and publishes the most recently
// completed frame for the HTTP server, memory sink and DRM output to read.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ustreamer-go/ustreamer/capture"
	"github.com/ustreamer-go/ustreamer/internal/encoder"
	"github.com/ustreamer-go/ustreamer/internal/frame"
	"github.com/ustreamer-go/ustreamer/internal/workerpool"
)

// Options configures a Pipeline.
type Options struct {
	DevicePath string
	DeviceOpts []capture.Option

	Workers    int
	NewBackend func(workerIndex int) *encoder.Dispatcher

	ErrorDelay   time.Duration // pause before reopening the device after a fatal capture error
	GrabTimeout  time.Duration // deadline of the context passed to each Grab call
	EveryFrame   int           // encode 1 out of every N grabbed frames; 0/1 means every frame
	MinFrameSize int

	// FallbackWidth/FallbackHeight size the blank frame published while the
	// source is offline, before any real frame has ever set lastWidth/lastHeight.
	FallbackWidth  uint32
	FallbackHeight uint32

	Slowdown   bool   // drop capture to 1 fps while no client is attached
	DesiredFPS uint32 // capture rate to resume to when a client reconnects

	Logger zerolog.Logger
}

// ExposedFrame is the single published frame slot from spec §3: guarded by
// a mutex, written only by the pipeline, read by HTTP/sink/DRM callbacks.
type ExposedFrame struct {
	mu           sync.Mutex
	current      *frame.Frame
	online       bool
	capturedFPS  float64
	droppedCount uint64
	exposedAt    time.Time
}

// Get returns the currently exposed frame and its publication metadata.
// The returned *frame.Frame must be treated as read-only by the caller.
func (e *ExposedFrame) Get() (f *frame.Frame, online bool, fps float64, dropped uint64, exposedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.online, e.capturedFPS, e.droppedCount, e.exposedAt
}

func (e *ExposedFrame) set(f *frame.Frame, online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = f
	e.online = online
	e.exposedAt = time.Now()
}

func (e *ExposedFrame) bumpDropped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.droppedCount++
}

func (e *ExposedFrame) setFPS(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capturedFPS = fps
}

// Pipeline runs the capture→encode→expose loop described in spec §4.5.
type Pipeline struct {
	opts Options
	log  zerolog.Logger

	dev  *capture.Device
	pool *workerpool.Pool

	exposed     *ExposedFrame
	clientCount atomic.Int64

	wasOnline atomic.Bool
	grabCount atomic.Uint64

	lastWidth  atomic.Uint32
	lastHeight atomic.Uint32
}

// New constructs a Pipeline. The capture device is not opened until Run is
// called.
func New(opts Options) *Pipeline {
	if opts.GrabTimeout == 0 {
		opts.GrabTimeout = 2 * time.Second
	}
	if opts.ErrorDelay == 0 {
		opts.ErrorDelay = time.Second
	}
	if opts.EveryFrame < 1 {
		opts.EveryFrame = 1
	}
	return &Pipeline{
		opts:    opts,
		log:     opts.Logger.With().Str("component", "pipeline").Logger(),
		exposed: &ExposedFrame{online: false},
	}
}

// Exposed returns the pipeline's published frame slot.
func (p *Pipeline) Exposed() *ExposedFrame { return p.exposed }

// SetClientCount informs the pipeline how many HTTP/sink clients are
// currently attached, driving the slowdown behavior from spec §4.5.
func (p *Pipeline) SetClientCount(n int64) { p.clientCount.Store(n) }

// Run drives the outer/inner loop from spec §4.5 until ctx is cancelled.
// A capture failure reopens the device after ErrorDelay rather than
// returning; Run only returns once ctx is done, and then returns ctx.Err().
func (p *Pipeline) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := p.openCapture(); err != nil {
			p.log.Error().Err(err).Msg("capture open failed, retrying after error delay")
			p.goOffline()
			if !sleepCtx(ctx, p.opts.ErrorDelay) {
				return ctx.Err()
			}
			continue
		}

		err := p.runSession(ctx)
		p.closeCapture()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("capture session ended, reopening")
			p.goOffline()
			if !sleepCtx(ctx, p.opts.ErrorDelay) {
				return ctx.Err()
			}
		}
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) openCapture() error {
	dev, err := capture.Open(p.opts.DevicePath, p.opts.DeviceOpts...)
	if err != nil {
		return fmt.Errorf("pipeline: open device: %w", err)
	}
	if err := dev.Start(); err != nil {
		_ = dev.Close()
		return fmt.Errorf("pipeline: start device: %w", err)
	}

	n := p.opts.Workers
	if n < 1 {
		n = 1
	}
	if bc := int(dev.BufferCount()); bc > 0 && bc < n {
		n = bc
	}
	p.pool = workerpool.New(n, p.opts.NewBackend)
	p.dev = dev
	return nil
}

func (p *Pipeline) closeCapture() {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	if p.dev != nil {
		_ = p.dev.Close()
		p.dev = nil
	}
}

// runSession runs the inner loop of spec §4.5 against one opened capture
// session. It returns nil only when ctx is cancelled; any other return is
// a fatal capture error that should trigger a reopen.
func (p *Pipeline) runSession(ctx context.Context) error {
	pixFmt, err := p.dev.GetPixFormat()
	if err != nil {
		return fmt.Errorf("pipeline: pix format: %w", err)
	}

	tuple := encoder.PrepareTuple{Width: pixFmt.Width, Height: pixFmt.Height, Format: pixFmt.PixelFormat, Stride: pixFmt.BytesPerLine}
	if err := p.pool.PrepareAll(tuple); err != nil {
		return fmt.Errorf("pipeline: prepare encoders: %w", err)
	}
	p.lastWidth.Store(pixFmt.Width)
	p.lastHeight.Store(pixFmt.Height)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	frameCounter := 0

	for {
		p.applySlowdown()

		if res, ok := p.pool.TryConsumeOldest(); ok {
			p.expose(res)
		}

		select {
		case <-ctx.Done():
			p.drain(ctx)
			return nil
		case <-ticker.C:
			p.setFPS(frameCounter)
			frameCounter = 0
			continue
		default:
		}

		grabCtx, cancel := context.WithTimeout(ctx, p.opts.GrabTimeout)
		f, err := p.dev.Grab(grabCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				p.drain(ctx)
				return nil
			}
			if isGrabTimeout(err) || errors.Is(err, capture.ErrorNoData) {
				continue
			}
			return fmt.Errorf("pipeline: grab: %w", err)
		}

		p.grabCount.Add(1)
		if err := p.handleGrabbed(ctx, f, tuple, &frameCounter); err != nil {
			return err
		}
	}
}

func isGrabTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func (p *Pipeline) handleGrabbed(ctx context.Context, f *capture.Frame, tuple encoder.PrepareTuple, frameCounter *int) error {
	if p.opts.EveryFrame > 1 && int(p.grabCount.Load())%p.opts.EveryFrame != 0 {
		_ = f.Release()
		return nil
	}

	if !capture.ValidateFrame(f.Data, tuple.Format, p.opts.MinFrameSize) {
		p.exposed.bumpDropped()
		_ = f.Release()
		return nil
	}

	if !p.pool.Fluency().Admit(time.Now()) {
		p.exposed.bumpDropped()
		_ = f.Release()
		return nil
	}

	wentOnline := !p.wasOnline.Swap(true)

	src := frame.New()
	src.Set(f.Data)
	src.Width, src.Height, src.Format, src.Stride = tuple.Width, tuple.Height, tuple.Format, tuple.Stride
	src.Online = true
	src.Key = f.IsKeyFrame()
	src.GrabTimestamp = f.Timestamp

	if err := f.Release(); err != nil {
		return fmt.Errorf("pipeline: release buffer: %w", err)
	}

	job := workerpool.Job{Src: src, ForceKey: wentOnline}
	if err := p.pool.Submit(ctx, job); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("pipeline: submit: %w", err)
	}
	*frameCounter++
	return nil
}

// goOffline publishes a blank stand-in frame and flags the exposed slot
// offline the first time the source is lost, mirroring wentOnline's
// edge-triggered publication in handleGrabbed. It is a no-op on repeated
// calls while already offline, so reopen retries don't keep re-encoding
// the same blank frame.
func (p *Pipeline) goOffline() {
	if !p.wasOnline.Swap(false) {
		return
	}

	width := p.lastWidth.Load()
	height := p.lastHeight.Load()
	if width == 0 || height == 0 {
		width, height = p.opts.FallbackWidth, p.opts.FallbackHeight
	}
	if width == 0 || height == 0 {
		return
	}

	blank, err := buildBlankFrame(width, height)
	if err != nil {
		p.log.Warn().Err(err).Msg("build blank frame failed")
		return
	}
	p.exposed.set(blank, false)
}

func (p *Pipeline) expose(res workerpool.Result) {
	if res.Err != nil {
		p.log.Warn().Err(res.Err).Int("worker", res.WorkerIndex).Msg("encode failed, dropping frame")
		return
	}
	p.exposed.set(res.Dest, res.Dest.Online)
}

func (p *Pipeline) setFPS(n int) {
	p.exposed.setFPS(float64(n))
}

// applySlowdown drops the capture device to 1 fps while no client is
// attached, per spec §4.5; it resumes full rate on the next client
// connect. Slowdown is advisory — a device that ignores VIDIOC_S_PARM must
// still work, so failures here are logged, not fatal.
func (p *Pipeline) applySlowdown() {
	if !p.opts.Slowdown || p.dev == nil {
		return
	}
	if p.clientCount.Load() > 0 {
		if fps, err := p.dev.GetFrameRate(); err == nil && fps == 1 && p.opts.DesiredFPS > 1 {
			_ = p.dev.SetFrameRate(p.opts.DesiredFPS)
		}
		return
	}
	if fps, err := p.dev.GetFrameRate(); err == nil && fps != 1 {
		_ = p.dev.SetFrameRate(1)
	}
}

// drain consumes any jobs still in flight so the pool's mailboxes don't
// leak a goroutine waiting to send on a full doneCh.
func (p *Pipeline) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for p.pool.Pending() > 0 {
		if _, err := p.pool.ConsumeOldest(drainCtx); err != nil {
			return
		}
	}
}
